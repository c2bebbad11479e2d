package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrientationOf(t *testing.T) {
	assert.Equal(t, Portrait, OrientationOf(1080, 1920))
	assert.Equal(t, Landscape, OrientationOf(1920, 1080))
	assert.Equal(t, Square, OrientationOf(512, 512))
}

func TestInfoOrientation(t *testing.T) {
	info := &Info{Width: 720, Height: 1280, HasVideo: true}
	assert.Equal(t, Portrait, info.Orientation())
}
