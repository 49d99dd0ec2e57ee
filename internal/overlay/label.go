package overlay

import (
	"image"
	"image/color"
)

// glyphs are 3x5 bitmaps, one row per byte with the leftmost pixel in bit 2.
var glyphs = map[rune][5]uint8{
	'0': {0b111, 0b101, 0b101, 0b101, 0b111},
	'1': {0b010, 0b110, 0b010, 0b010, 0b111},
	'2': {0b111, 0b001, 0b111, 0b100, 0b111},
	'3': {0b111, 0b001, 0b111, 0b001, 0b111},
	'4': {0b101, 0b101, 0b111, 0b001, 0b001},
	'5': {0b111, 0b100, 0b111, 0b001, 0b111},
	'6': {0b111, 0b100, 0b111, 0b101, 0b111},
	'7': {0b111, 0b001, 0b001, 0b001, 0b001},
	'8': {0b111, 0b101, 0b111, 0b101, 0b111},
	'9': {0b111, 0b101, 0b111, 0b001, 0b111},
	'A': {0b010, 0b101, 0b111, 0b101, 0b101},
	'B': {0b110, 0b101, 0b110, 0b101, 0b110},
	'C': {0b011, 0b100, 0b100, 0b100, 0b011},
	'-': {0b000, 0b000, 0b111, 0b000, 0b000},
	' ': {0b000, 0b000, 0b000, 0b000, 0b000},
}

// labelWidth returns the width in pixels of label at scale.
func labelWidth(label string, scale int) int {
	n := len([]rune(label))
	if n == 0 {
		return 0
	}
	return n*3*scale + (n-1)*scale
}

// drawLabel draws label with its top-left corner at (x, y). Unknown
// characters leave a blank cell.
func drawLabel(dst *image.RGBA, label string, x, y int, col color.RGBA, scale int) {
	if scale < 1 {
		scale = 1
	}
	bounds := dst.Bounds()
	for i, ch := range []rune(label) {
		if ch >= 'a' && ch <= 'z' {
			ch = ch - 'a' + 'A'
		}
		pattern := glyphs[ch]
		charX := x + i*4*scale

		for row := 0; row < 5; row++ {
			for c := 0; c < 3; c++ {
				if pattern[row]&(1<<(2-c)) == 0 {
					continue
				}
				for dy := 0; dy < scale; dy++ {
					for dx := 0; dx < scale; dx++ {
						p := image.Pt(charX+c*scale+dx, y+row*scale+dy)
						if p.In(bounds) {
							dst.SetRGBA(p.X, p.Y, col)
						}
					}
				}
			}
		}
	}
}
