package image

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
)

// BlendMode specifies how a frame is combined with what is under it.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	case BlendDifference:
		return "Difference"
	default:
		return "Unknown"
	}
}

// ErrUnknownBlendMode is returned by ParseBlendMode for an unrecognised name.
var ErrUnknownBlendMode = errors.New("image: unknown blend mode")

// ParseBlendMode accepts a mode name in any case.
func ParseBlendMode(name string) (BlendMode, error) {
	for _, m := range []BlendMode{BlendNormal, BlendMultiply, BlendScreen, BlendDifference} {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return BlendNormal, fmt.Errorf("%w: %q", ErrUnknownBlendMode, name)
}

// Composite stacks frames onto a background, for example a dimmed frame
// under the predictions or two exposures compared by difference.
type Composite struct {
	Width      int
	Height     int
	Background color.Color
	layers     []compositeLayer
}

type compositeLayer struct {
	frame  *Frame
	mode   BlendMode
	offset image.Point
}

// NewComposite creates a Composite with the specified dimensions.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:      width,
		Height:     height,
		Background: color.RGBA{20, 20, 20, 255},
	}
}

// CompositeFor returns a composite sized to frame with frame as its only
// layer.
func CompositeFor(frame *Frame) *Composite {
	c := NewComposite(frame.Width(), frame.Height())
	c.Add(frame, BlendNormal, image.Point{})
	return c
}

// Add stacks frame on top, shifted by offset pixels.
func (c *Composite) Add(frame *Frame, mode BlendMode, offset image.Point) {
	c.layers = append(c.layers, compositeLayer{frame: frame, mode: mode, offset: offset})
}

// Render produces the final image.
func (c *Composite) Render() *image.RGBA {
	result := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(result, result.Bounds(), &image.Uniform{c.Background}, image.Point{}, draw.Src)

	for _, l := range c.layers {
		if l.frame == nil || l.frame.Image == nil || !l.frame.Visible {
			continue
		}
		c.renderLayer(result, l)
	}
	return result
}

func (c *Composite) renderLayer(dst *image.RGBA, l compositeLayer) {
	src := l.frame.Image
	sb := src.Bounds()
	target := image.Rectangle{Min: l.offset, Max: l.offset.Add(sb.Size())}.Intersect(dst.Bounds())
	if target.Empty() {
		return
	}

	if l.mode == BlendNormal && l.frame.Opacity >= 1 {
		draw.Draw(dst, target, src, sb.Min.Add(target.Min.Sub(l.offset)), draw.Over)
		return
	}

	for y := target.Min.Y; y < target.Max.Y; y++ {
		for x := target.Min.X; x < target.Max.X; x++ {
			s := src.At(sb.Min.X+x-l.offset.X, sb.Min.Y+y-l.offset.Y)
			dst.SetRGBA(x, y, blend(dst.RGBAAt(x, y), s, l.mode, l.frame.Opacity))
		}
	}
}

// blend combines src over dst with the given mode and opacity.
func blend(dst color.RGBA, src color.Color, mode BlendMode, opacity float64) color.RGBA {
	sr, sg, sb, sa := src.RGBA()
	s := [4]float64{float64(sr) / 0xffff, float64(sg) / 0xffff, float64(sb) / 0xffff, float64(sa) / 0xffff}
	d := [4]float64{float64(dst.R) / 0xff, float64(dst.G) / 0xff, float64(dst.B) / 0xff, float64(dst.A) / 0xff}

	var mixed [3]float64
	for i := 0; i < 3; i++ {
		switch mode {
		case BlendMultiply:
			mixed[i] = s[i] * d[i]
		case BlendScreen:
			mixed[i] = 1 - (1-s[i])*(1-d[i])
		case BlendDifference:
			mixed[i] = math.Abs(s[i] - d[i])
		default:
			mixed[i] = s[i]
		}
	}

	alpha := s[3] * opacity
	return color.RGBA{
		R: unit8(mixed[0]*alpha + d[0]*(1-alpha)),
		G: unit8(mixed[1]*alpha + d[1]*(1-alpha)),
		B: unit8(mixed[2]*alpha + d[2]*(1-alpha)),
		A: unit8(alpha + d[3]*(1-alpha)),
	}
}

// unit8 maps [0, 1] onto a byte, clamping.
func unit8(x float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, x)) * 255))
}
