package acquire

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
	"github.com/kilatlabs/kilatclip/pkg/media"
)

// RejectReason identifies why the gate refused an artifact.
type RejectReason string

const (
	// TooSmall means the artifact fell below the per-kind byte floor.
	TooSmall RejectReason = "too_small"
	// WrongOrientation means the artifact's frame shape does not match the
	// requested orientation.
	WrongOrientation RejectReason = "wrong_orientation"
	// Undecodable means the artifact could not be structurally decoded.
	Undecodable RejectReason = "undecodable"
	// PlaceholderDetected means the artifact matches a known sample shape
	// served by a provider instead of the real generated asset.
	PlaceholderDetected RejectReason = "placeholder_detected"
)

// Byte floors below which an artifact is treated as noise. Free providers
// answer rate-limit pages and HTML error bodies with 200s; anything this
// small is never a real asset.
const (
	imageByteFloor = 1000
	audioByteFloor = 1000
	videoByteFloor = 10000
)

// Gate decides whether a produced artifact is acceptable, independent of
// which provider produced it. Rejected artifacts are deleted immediately and
// never returned to the caller: a structurally wrong artifact silently
// corrupts downstream steps.
type Gate struct {
	// Probe inspects media structure. Required for video requests in
	// production; when nil, structural checks that need a probe are skipped.
	Probe func(ctx context.Context, path string) (*media.Info, error)
	// Log receives per-rejection diagnostics.
	Log logger.Logger
}

// NewGate builds a Gate backed by the given prober.
func NewGate(prober *media.Prober, log logger.Logger) *Gate {
	g := &Gate{Log: log}
	if prober != nil {
		g.Probe = prober.Probe
	}
	if g.Log == nil {
		g.Log = logger.NewNopLogger()
	}
	return g
}

// Accept validates the artifact at path against the request's constraints.
// It returns nil on acceptance, or a ValidationError carrying the reject
// reason. On rejection the file is removed.
func (g *Gate) Accept(ctx context.Context, path string, req Request) error {
	if err := g.check(ctx, path, req); err != nil {
		g.Log.Debug("artifact rejected", "gate", map[string]interface{}{
			"path":   path,
			"kind":   string(req.Kind),
			"reason": string(ReasonOf(err)),
		})
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			g.Log.Warn("could not delete rejected artifact", "gate", map[string]interface{}{
				"path":  path,
				"error": rmErr.Error(),
			})
		}
		return err
	}
	return nil
}

func (g *Gate) check(ctx context.Context, path string, req Request) error {
	stat, err := os.Stat(path)
	if err != nil {
		return reject(TooSmall, "artifact missing: "+path, errors.ErrArtifactMissing)
	}

	floor := req.Constraints.MinBytes
	if floor <= 0 {
		floor = defaultFloor(req.Kind)
	}
	if stat.Size() < floor {
		return reject(TooSmall,
			fmt.Sprintf("artifact is %d bytes, floor is %d", stat.Size(), floor),
			errors.ErrArtifactTooSmall)
	}

	switch req.Kind {
	case Image:
		return g.checkImage(path, req.Constraints)
	case VideoClip:
		return g.checkVideo(ctx, path, req.Constraints)
	case Narration, MixedAudio:
		return g.checkAudio(ctx, path, req.Constraints)
	}
	return nil
}

func (g *Gate) checkImage(path string, c Constraints) error {
	f, err := os.Open(path)
	if err != nil {
		return reject(Undecodable, "cannot open image: "+err.Error(), errors.ErrArtifactUndecodable)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return reject(Undecodable, "cannot decode image: "+err.Error(), errors.ErrArtifactUndecodable)
	}
	if cfg.Width <= 1 || cfg.Height <= 1 {
		return reject(Undecodable,
			fmt.Sprintf("degenerate %s dimensions %dx%d", format, cfg.Width, cfg.Height),
			errors.ErrArtifactUndecodable)
	}
	return checkShape(cfg.Width, cfg.Height, c)
}

func (g *Gate) checkVideo(ctx context.Context, path string, c Constraints) error {
	if g.Probe == nil {
		return nil
	}
	info, err := g.Probe(ctx, path)
	if err != nil {
		return reject(Undecodable, "cannot probe video: "+err.Error(), errors.ErrArtifactUndecodable)
	}
	if !info.HasVideo {
		return reject(Undecodable, "no video stream in "+path, errors.ErrArtifactUndecodable)
	}
	if c.MaxDuration > 0 && info.Duration > c.MaxDuration.Seconds() {
		return reject(Undecodable,
			fmt.Sprintf("duration %.1fs exceeds maximum %.1fs", info.Duration, c.MaxDuration.Seconds()),
			errors.ErrArtifactUndecodable)
	}
	return checkShape(info.Width, info.Height, c)
}

func (g *Gate) checkAudio(ctx context.Context, path string, c Constraints) error {
	if g.Probe == nil {
		return nil
	}
	info, err := g.Probe(ctx, path)
	if err != nil {
		return reject(Undecodable, "cannot probe audio: "+err.Error(), errors.ErrArtifactUndecodable)
	}
	if !info.HasAudio {
		return reject(Undecodable, "no audio stream in "+path, errors.ErrArtifactUndecodable)
	}
	if c.MaxDuration > 0 && info.Duration > c.MaxDuration.Seconds() {
		return reject(Undecodable,
			fmt.Sprintf("duration %.1fs exceeds maximum %.1fs", info.Duration, c.MaxDuration.Seconds()),
			errors.ErrArtifactUndecodable)
	}
	return nil
}

// checkShape compares actual dimensions against the requested orientation
// and the known placeholder shapes. The placeholder heuristic is one example
// structural rule; new providers may need new predicates.
func checkShape(width, height int, c Constraints) error {
	for _, ph := range c.PlaceholderShapes {
		if ph.Width == width && ph.Height == height {
			return reject(PlaceholderDetected,
				fmt.Sprintf("%dx%d matches a known sample shape", width, height),
				errors.ErrPlaceholderShape)
		}
	}
	if c.Orientation != "" && c.Orientation != media.Any {
		if got := media.OrientationOf(width, height); got != c.Orientation {
			return reject(WrongOrientation,
				fmt.Sprintf("got %s %dx%d, want %s", got, width, height, c.Orientation),
				errors.ErrWrongOrientation)
		}
	}
	return nil
}

func defaultFloor(kind Kind) int64 {
	switch kind {
	case VideoClip:
		return videoByteFloor
	case Image:
		return imageByteFloor
	default:
		return audioByteFloor
	}
}

func reject(reason RejectReason, detail string, code int) error {
	return errors.New(errors.ValidationError, string(reason), detail, code)
}

// ReasonOf extracts the RejectReason from a gate error, or empty when err is
// not a validation rejection.
func ReasonOf(err error) RejectReason {
	var se *errors.StructuredError
	if stderrors.As(err, &se) && se.Type == errors.ValidationError {
		return RejectReason(se.Message)
	}
	return ""
}
