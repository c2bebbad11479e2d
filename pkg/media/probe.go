package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Orientation classifies a frame shape by its aspect.
type Orientation string

const (
	// Any accepts every shape.
	Any Orientation = "any"
	// Portrait means height strictly greater than width (vertical output,
	// e.g. 1080x1920 for Shorts/TikTok).
	Portrait Orientation = "portrait"
	// Landscape means width strictly greater than height.
	Landscape Orientation = "landscape"
	// Square means width equal to height.
	Square Orientation = "square"
)

// OrientationOf returns the Orientation for the given dimensions.
func OrientationOf(width, height int) Orientation {
	switch {
	case height > width:
		return Portrait
	case width > height:
		return Landscape
	default:
		return Square
	}
}

// Info holds the resolution and duration detected for a media file.
type Info struct {
	Width    int
	Height   int
	Duration float64
	HasVideo bool
	HasAudio bool
}

// Orientation returns the shape class of the probed video stream.
func (i *Info) Orientation() Orientation {
	return OrientationOf(i.Width, i.Height)
}

// ffprobeOutput mirrors the JSON emitted by ffprobe -print_format json.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober wraps a resolved ffprobe binary. The binary path is supplied by the
// surrounding application; the zero value uses "ffprobe" from PATH.
type Prober struct {
	Binary string
}

// Probe runs ffprobe against the file and returns stream information.
// An error means the file could not be decoded at all.
func (p *Prober) Probe(ctx context.Context, inputPath string) (*Info, error) {
	binary := p.Binary
	if binary == "" {
		binary = "ffprobe"
	}

	cmd := exec.CommandContext(
		ctx,
		binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	var info Info
	for _, stream := range probeOutput.Streams {
		switch stream.CodecType {
		case "video":
			if !info.HasVideo {
				info.Width = stream.Width
				info.Height = stream.Height
				info.HasVideo = true
			}
		case "audio":
			info.HasAudio = true
		}
	}

	if !info.HasVideo && !info.HasAudio {
		return nil, fmt.Errorf("no decodable streams in %s", inputPath)
	}
	if info.HasVideo && (info.Width == 0 || info.Height == 0) {
		return nil, fmt.Errorf("could not detect video resolution of %s", inputPath)
	}

	if probeOutput.Format.Duration != "" {
		duration, err := strconv.ParseFloat(probeOutput.Format.Duration, 64)
		if err == nil {
			info.Duration = duration
		}
	}

	return &info, nil
}
