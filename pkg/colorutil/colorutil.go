// Package colorutil provides the overlay palette and alpha helpers.
package colorutil

import (
	"image/color"
	"math"
)

// Common overlay colors.
var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red    = color.RGBA{R: 230, G: 60, B: 60, A: 255}
	Green  = color.RGBA{R: 60, G: 200, B: 60, A: 255}
	Blue   = color.RGBA{R: 80, G: 120, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 220, B: 0, A: 255}
	Salmon = color.RGBA{R: 255, G: 64, B: 64, A: 255}
	Lilac  = color.RGBA{R: 200, G: 200, B: 255, A: 255}
)

// Fade returns c with its alpha scaled by opacity, clamped to [0, 1].
func Fade(c color.RGBA, opacity float64) color.NRGBA {
	opacity = math.Max(0, math.Min(1, opacity))
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(float64(c.A) * opacity))}
}
