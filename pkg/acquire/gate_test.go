package acquire

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilatlabs/kilatclip/pkg/logger"
	"github.com/kilatlabs/kilatclip/pkg/media"
)

func TestGateRejectsMissingArtifact(t *testing.T) {
	g := NewGate(nil, nil)
	err := g.Accept(context.Background(), filepath.Join(t.TempDir(), "nope.png"), Request{Kind: Image})
	require.Error(t, err)
	assert.Equal(t, TooSmall, ReasonOf(err))
}

func TestGateRejectsTooSmallAndDeletesFile(t *testing.T) {
	g := NewGate(nil, nil)
	path := filepath.Join(t.TempDir(), "noise.mp3")
	writeBytes(t, path, 200)

	err := g.Accept(context.Background(), path, Request{
		Kind:        Narration,
		Constraints: Constraints{MinBytes: 1000},
	})

	require.Error(t, err)
	assert.Equal(t, TooSmall, ReasonOf(err))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "rejected artifact must be deleted")
}

func TestGateRejectsUndecodableImage(t *testing.T) {
	g := NewGate(nil, nil)
	path := filepath.Join(t.TempDir(), "junk.png")
	writeBytes(t, path, 4096) // big enough, but not a PNG

	err := g.Accept(context.Background(), path, Request{Kind: Image})

	require.Error(t, err)
	assert.Equal(t, Undecodable, ReasonOf(err))
}

// P4: a landscape artifact against a portrait request is rejected with
// WrongOrientation, and the scheduler moves on to the next provider.
func TestGateRejectsWrongOrientationImage(t *testing.T) {
	g := NewGate(nil, nil)
	path := filepath.Join(t.TempDir(), "wide.png")
	encodePNG(t, path, 640, 360)

	err := g.Accept(context.Background(), path, Request{
		Kind:        Image,
		Constraints: Constraints{Orientation: media.Portrait},
	})

	require.Error(t, err)
	assert.Equal(t, WrongOrientation, ReasonOf(err))
}

func TestGateAcceptsPortraitImage(t *testing.T) {
	g := NewGate(nil, nil)
	path := filepath.Join(t.TempDir(), "tall.png")
	encodePNG(t, path, 360, 640)

	err := g.Accept(context.Background(), path, Request{
		Kind:        Image,
		Constraints: Constraints{Orientation: media.Portrait},
	})

	assert.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "accepted artifact must survive")
}

func TestGateVideoOrientationViaProbe(t *testing.T) {
	g := &Gate{Log: logger.NewNopLogger(), Probe: func(context.Context, string) (*media.Info, error) {
		return &media.Info{Width: 1920, Height: 1080, HasVideo: true}, nil
	}}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	writeBytes(t, path, 20_000)

	err := g.Accept(context.Background(), path, Request{
		Kind:        VideoClip,
		Constraints: Constraints{Orientation: media.Portrait},
	})

	require.Error(t, err)
	assert.Equal(t, WrongOrientation, ReasonOf(err))
}

// A video matching a provider's known sample shape is a placeholder, not the
// generated deliverable, even if its orientation happens to be acceptable.
func TestGateRejectsPlaceholderShape(t *testing.T) {
	g := &Gate{Log: logger.NewNopLogger(), Probe: func(context.Context, string) (*media.Info, error) {
		return &media.Info{Width: 1280, Height: 720, HasVideo: true}, nil
	}}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	writeBytes(t, path, 20_000)

	err := g.Accept(context.Background(), path, Request{
		Kind: VideoClip,
		Constraints: Constraints{
			Orientation:       media.Landscape,
			PlaceholderShapes: []Shape{{Width: 1280, Height: 720}},
		},
	})

	require.Error(t, err)
	assert.Equal(t, PlaceholderDetected, ReasonOf(err))
}

func TestGateVideoUndecodable(t *testing.T) {
	g := &Gate{Log: logger.NewNopLogger(), Probe: func(context.Context, string) (*media.Info, error) {
		return nil, assert.AnError
	}}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	writeBytes(t, path, 20_000)

	err := g.Accept(context.Background(), path, Request{Kind: VideoClip})

	require.Error(t, err)
	assert.Equal(t, Undecodable, ReasonOf(err))
}

func TestReasonOfNonValidationError(t *testing.T) {
	assert.Equal(t, RejectReason(""), ReasonOf(assert.AnError))
	assert.Equal(t, RejectReason(""), ReasonOf(nil))
}
