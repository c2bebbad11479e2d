// Package mixer blends a narration track with background music and effects
// through FFmpeg. Filter graphs vary wildly in what a given FFmpeg build
// accepts, so mixing runs as a cascade of strictly simpler strategies: each
// drops one fragile filter relative to the one before, and the first strategy
// that produces a plausible output wins.
package mixer

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strings"

	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
)

// mixByteFloor rejects outputs that are too small to hold real audio;
// FFmpeg can exit zero and still write a header-only file.
const mixByteFloor = 1000

// maxTracks bounds the secondary inputs per mix.
const maxTracks = 2

// Track is a secondary audio input with its mix-in gain.
type Track struct {
	Path   string
	Volume float64
}

// Job describes one mixing operation.
type Job struct {
	// Narration is the primary voice track. The mix duration follows it.
	Narration string
	// NarrationVolume scales the voice, default 1.0.
	NarrationVolume float64
	// Tracks are background inputs, at most maxTracks are used.
	Tracks []Track
	// OutputPath receives the mixed MP3.
	OutputPath string
}

// Runner executes an external command and returns its combined output.
// Swappable for tests.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Mixer runs the strategy cascade.
type Mixer struct {
	binary string
	run    Runner
	log    logger.Logger
	// tempo returns the playback-rate jitter applied to each background
	// track by the richer strategies. Drawn fresh per track.
	tempo func() float64
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithBinary overrides the ffmpeg binary path.
func WithBinary(binary string) Option {
	return func(m *Mixer) { m.binary = binary }
}

// WithRunner swaps the command runner, for tests.
func WithRunner(run Runner) Option {
	return func(m *Mixer) { m.run = run }
}

// WithTempo pins the track tempo jitter, for tests.
func WithTempo(tempo float64) Option {
	return func(m *Mixer) { m.tempo = func() float64 { return tempo } }
}

// New creates a Mixer.
func New(log logger.Logger, opts ...Option) *Mixer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &Mixer{
		binary: "ffmpeg",
		run:    execRunner,
		log:    log,
		tempo:  func() float64 { return 0.9 + rand.Float64()*0.2 },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type strategy struct {
	name  string
	build func(m *Mixer, job Job) []string
}

// Ordered richest first. Each later entry drops a filter the previous one
// used, so a mix that fails on an exotic filter still lands on something.
var strategies = []strategy{
	{"full", buildFull},
	{"no-loudnorm", buildNoLoudnorm},
	{"volume-only", buildVolumeOnly},
	{"amerge", buildAmerge},
}

// Mix runs the cascade and returns the path of the mixed file. Every
// strategy failing returns a MixError whose details name each strategy's
// outcome; no partial output file survives a failed run.
func (m *Mixer) Mix(ctx context.Context, job Job) (string, error) {
	if job.Narration == "" || job.OutputPath == "" {
		return "", errors.New(errors.MixError, "narration and output paths are required", "", errors.ErrMixMissingInput)
	}
	if _, err := os.Stat(job.Narration); err != nil {
		return "", errors.Wrap(err, errors.MixError, "narration file missing", errors.ErrMixMissingInput)
	}
	if job.NarrationVolume == 0 {
		job.NarrationVolume = 1.0
	}
	if len(job.Tracks) > maxTracks {
		job.Tracks = job.Tracks[:maxTracks]
	}
	for i := range job.Tracks {
		if job.Tracks[i].Volume == 0 {
			job.Tracks[i].Volume = 0.2
		}
	}

	var failures []string
	for _, s := range strategies {
		args := s.build(m, job)
		out, err := m.run(ctx, m.binary, args...)
		if err == nil && m.plausibleOutput(job.OutputPath) {
			m.log.Info("audio mixed", "mixer", map[string]interface{}{
				"strategy": s.name,
				"output":   job.OutputPath,
			})
			return job.OutputPath, nil
		}

		os.Remove(job.OutputPath)
		detail := "undersized output"
		if err != nil {
			detail = tail(string(out), 160)
			if detail == "" {
				detail = err.Error()
			}
		}
		failures = append(failures, fmt.Sprintf("%s: %s", s.name, detail))
		m.log.Warn("mix strategy failed, trying simpler", "mixer", map[string]interface{}{
			"strategy": s.name,
			"detail":   detail,
		})

		if ctx.Err() != nil {
			break
		}
	}

	return "", errors.New(errors.MixError, "all mix strategies failed",
		strings.Join(failures, "; "), errors.ErrMixAllStrategiesFailed)
}

func (m *Mixer) plausibleOutput(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > mixByteFloor
}

// inputArgs lists -i flags for the narration plus every track.
func inputArgs(job Job) []string {
	args := []string{"-y", "-i", job.Narration}
	for _, t := range job.Tracks {
		args = append(args, "-i", t.Path)
	}
	return args
}

func outputArgs(job Job) []string {
	return []string{"-c:a", "libmp3lame", "-b:a", "192k", job.OutputPath}
}

func mixArgs(job Job, filter string) []string {
	args := inputArgs(job)
	args = append(args, "-filter_complex", filter, "-map", "[out]")
	return append(args, outputArgs(job)...)
}

// buildFull applies tempo jitter, gain, and broadcast loudness normalization
// to each background track, then mixes with the narration governing duration.
// The voice leg stays clean apart from its gain: pitch-shifting the narration
// would be audible in the deliverable.
func buildFull(m *Mixer, job Job) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "[0:a]volume=%.2f[voice];", job.NarrationVolume)
	labels := "[voice]"
	for i, t := range job.Tracks {
		fmt.Fprintf(&b, "[%d:a]atempo=%.3f,volume=%.2f,loudnorm=I=-16:LRA=11:TP=-1.5[bg%d];", i+1, m.tempo(), t.Volume, i)
		labels += fmt.Sprintf("[bg%d]", i)
	}
	fmt.Fprintf(&b, "%samix=inputs=%d:duration=first:normalize=0[out]", labels, len(job.Tracks)+1)
	return mixArgs(job, b.String())
}

// buildNoLoudnorm is buildFull minus loudnorm, the filter most often absent
// from slim FFmpeg builds.
func buildNoLoudnorm(m *Mixer, job Job) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "[0:a]volume=%.2f[voice];", job.NarrationVolume)
	labels := "[voice]"
	for i, t := range job.Tracks {
		fmt.Fprintf(&b, "[%d:a]atempo=%.3f,volume=%.2f[bg%d];", i+1, m.tempo(), t.Volume, i)
		labels += fmt.Sprintf("[bg%d]", i)
	}
	fmt.Fprintf(&b, "%samix=inputs=%d:duration=first:normalize=0[out]", labels, len(job.Tracks)+1)
	return mixArgs(job, b.String())
}

// buildVolumeOnly drops atempo too; gains and a plain amix.
func buildVolumeOnly(m *Mixer, job Job) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "[0:a]volume=%.2f[voice];", job.NarrationVolume)
	labels := "[voice]"
	for i, t := range job.Tracks {
		fmt.Fprintf(&b, "[%d:a]volume=%.2f[bg%d];", i+1, t.Volume, i)
		labels += fmt.Sprintf("[bg%d]", i)
	}
	fmt.Fprintf(&b, "%samix=inputs=%d:duration=first[out]", labels, len(job.Tracks)+1)
	return mixArgs(job, b.String())
}

// buildAmerge is the last resort: raw channel merge with a pan fold-down,
// no per-input filters at all.
func buildAmerge(m *Mixer, job Job) []string {
	n := len(job.Tracks) + 1
	var filter string
	switch n {
	case 1:
		filter = "[0:a]acopy[out]"
	case 2:
		filter = "[0:a][1:a]amerge=inputs=2,pan=stereo|c0<c0+c2|c1<c1+c3[out]"
	default:
		filter = "[0:a][1:a][2:a]amerge=inputs=3,pan=stereo|c0<c0+c2+c4|c1<c1+c3+c5[out]"
	}
	return mixArgs(job, filter)
}

// tail returns at most n trailing characters of s, trimmed. FFmpeg puts the
// useful error on the last lines.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
