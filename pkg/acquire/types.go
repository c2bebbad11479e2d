package acquire

import (
	"time"

	"github.com/kilatlabs/kilatclip/pkg/media"
)

// Kind identifies the category of artifact a Request asks for.
type Kind string

const (
	// Image is a single generated still (scene illustration).
	Image Kind = "image"
	// Narration is a synthesized voice-over line.
	Narration Kind = "narration"
	// VideoClip is a short generated video segment.
	VideoClip Kind = "video_clip"
	// MixedAudio is a narration track mixed with sound effects.
	MixedAudio Kind = "mixed_audio"
)

// Payload carries the provider-facing parameters of a request. Individual
// adapters read only the fields relevant to them.
type Payload struct {
	// Prompt is the text description sent to generative providers.
	Prompt string
	// SourcePath points at local input media, for requests derived from an
	// existing file (image-to-video, narration mixing).
	SourcePath string
	// Width and Height are the requested output dimensions in pixels.
	Width  int
	Height int
	// Seed pins generation for reproducibility where the provider supports
	// it. Zero or negative means "let the provider choose".
	Seed int64
	// Model optionally selects a provider-specific model name.
	Model string
	// Voice optionally selects a synthesis voice for narration requests.
	Voice string
}

// Shape is a known width/height pair, used to describe placeholder outputs
// that some providers serve instead of the real generated asset.
type Shape struct {
	Width  int
	Height int
}

// Constraints are the acceptance criteria an artifact must meet before it is
// returned to the caller.
type Constraints struct {
	// MinBytes is the noise floor below which an artifact is rejected
	// outright. Zero applies the per-kind default.
	MinBytes int64
	// Orientation, when not Any, requires the artifact's actual frame shape
	// to match (portrait vs landscape vs square).
	Orientation media.Orientation
	// PlaceholderShapes lists known sample/placeholder dimensions to reject
	// even when the orientation happens to match.
	PlaceholderShapes []Shape
	// MaxDuration, when positive, bounds the artifact's playing time.
	MaxDuration time.Duration
}

// Request is a logical ask for one artifact. It is created once per pipeline
// step, never mutated, and discarded when the session completes.
type Request struct {
	Kind        Kind
	Payload     Payload
	Constraints Constraints
	// OutputPath is where the accepted artifact must land on disk.
	OutputPath string
}

// Artifact is the produced result. It is only handed to the caller after
// passing the validation gate.
type Artifact struct {
	// Path is the location of the generated content on disk.
	Path string
	// Provider names the adapter that produced it, for observability and
	// caller-visible diagnostics ("generated via Provider X").
	Provider string
	// Size is the artifact's byte length.
	Size int64
	// Width and Height hold the validated dimensions, when applicable.
	Width  int
	Height int
	// Duration holds the validated playing time in seconds, when applicable.
	Duration float64
}

// Outcome classifies one provider attempt for logging and backoff decisions.
type Outcome string

const (
	// OutcomeSuccess means the provider produced an artifact that passed
	// validation.
	OutcomeSuccess Outcome = "success"
	// OutcomeTransient means the provider failed in a way expected to heal
	// on a later round.
	OutcomeTransient Outcome = "transient"
	// OutcomeHard means the provider failed in a way that needs a
	// configuration change. The provider is still retried on later rounds;
	// most observed rejections are bursty rather than permanent.
	OutcomeHard Outcome = "hard"
	// OutcomeRejected means the provider produced an artifact that failed
	// the validation gate.
	OutcomeRejected Outcome = "rejected"
)

// Attempt records a single provider invocation within a round. Attempt logs
// are kept for the session's lifetime only; they are never persisted.
type Attempt struct {
	Provider string
	Round    int
	Outcome  Outcome
	Elapsed  time.Duration
	Detail   string
}
