package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFade(t *testing.T) {
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, Fade(White, 1))
	assert.Equal(t, color.NRGBA{255, 255, 255, 128}, Fade(White, 0.5))
	assert.Equal(t, uint8(0), Fade(Yellow, -3).A)
	assert.Equal(t, uint8(255), Fade(Yellow, 7).A)

	half := color.RGBA{10, 20, 30, 100}
	assert.Equal(t, color.NRGBA{10, 20, 30, 50}, Fade(half, 0.5))
}
