package mixer

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/kilatlabs/kilatclip/pkg/errors"
)

// sfxByteFloor rejects synthesized effects too small to be audible audio.
const sfxByteFloor = 500

// Effect is a procedurally synthesized sound: an aevalsrc expression and a
// duration, rendered entirely inside FFmpeg with no network dependency.
type Effect struct {
	Expr     string
	Duration float64
}

// catalog maps effect names to their synthesis recipes.
var catalog = map[string]Effect{
	"whoosh": {"0.4*random(0)*exp(-3*t)", 0.7},
	"pop":    {"0.8*sin(880*2*PI*t)*exp(-20*t)", 0.3},
	"ding":   {"0.5*sin(1760*2*PI*t)*exp(-4*t)", 1.0},
	"riser":  {"0.4*sin(2*PI*(200+600*t)*t)", 1.5},
	"boom":   {"0.9*sin(60*2*PI*t)*exp(-2*t)", 1.2},
}

// Effects returns the catalog names, sorted.
func Effects() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Synthesize renders the named effect to dest as an MP3. Unknown names fail
// immediately; a rendered file below the byte floor is removed and reported
// as a failure.
func (m *Mixer) Synthesize(ctx context.Context, name, dest string) (string, error) {
	effect, ok := catalog[name]
	if !ok {
		return "", errors.New(errors.MixError, "unknown sound effect",
			fmt.Sprintf("%q not in [%v]", name, Effects()), errors.ErrSFXUnknownEffect)
	}

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("aevalsrc=%s:d=%.2f", effect.Expr, effect.Duration),
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		dest,
	}
	out, err := m.run(ctx, m.binary, args...)
	if err != nil {
		os.Remove(dest)
		return "", errors.New(errors.MixError, "effect synthesis failed",
			fmt.Sprintf("%s: %s", name, tail(string(out), 160)), errors.ErrMixAllStrategiesFailed)
	}

	info, statErr := os.Stat(dest)
	if statErr != nil || info.Size() <= sfxByteFloor {
		os.Remove(dest)
		return "", errors.New(errors.MixError, "synthesized effect undersized", name, errors.ErrMixUndersizedOutput)
	}

	m.log.Debug("effect synthesized", "mixer", map[string]interface{}{
		"effect": name,
		"output": dest,
	})
	return dest, nil
}
