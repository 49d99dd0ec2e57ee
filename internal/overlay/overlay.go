// Package overlay draws predicted reflections, the real-space axes and the
// fixed rotation axis over a detector frame.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"

	"mandexing/internal/crystal"
	"mandexing/pkg/colorutil"
	"mandexing/pkg/geometry"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// Options controls what Render draws and how.
type Options struct {
	SpotRadius   float64 // ring radius in pixels
	RingWidth    float64 // ring stroke in pixels
	SpotColor    color.RGBA
	WatchedColor color.RGBA

	// Labels writes "h k l" next to each spot using LabelScale-sized glyphs.
	Labels     bool
	LabelScale int
	LabelColor color.RGBA

	// Axes holds the real-space a, b, c axes as rows in the lab frame.
	// Nil draws none.
	Axes       *geometry.Mat3
	AxisLength float64 // pixels for the longest axis
	AxisWidth  float64

	// FixedAxis draws the fixed rotation axis through the beam centre.
	FixedAxis  *geometry.Vec3
	FixedColor color.RGBA
}

// DefaultOptions returns the viewer's default styling.
func DefaultOptions() Options {
	return Options{
		SpotRadius:   6,
		RingWidth:    1.5,
		SpotColor:    colorutil.White,
		WatchedColor: colorutil.Salmon,
		LabelScale:   1,
		LabelColor:   colorutil.Lilac,
		AxisLength:   150,
		AxisWidth:    2,
		FixedColor:   colorutil.Yellow,
	}
}

// axisColors are the a, b and c axis colours.
var axisColors = [3]color.RGBA{colorutil.Red, colorutil.Green, colorutil.Blue}

// Render draws onto dst and returns how many spots were drawn. beam gives
// the beam centre in absolute pixels; reflection screen positions are
// relative to it. Only reflections that are on image and hit the detector
// are drawn. Each ring's opacity is 1 - weight; watched reflections are
// filled.
func Render(dst *image.RGBA, preds []crystal.Reflection, beam geometry.Vec3, opts Options) int {
	p := &painter{dst: dst, z: vector.NewRasterizer(0, 0)}

	if opts.FixedAxis != nil {
		p.fixedAxis(*opts.FixedAxis, beam, opts)
	}
	if opts.Axes != nil {
		p.axes(*opts.Axes, beam, opts)
	}

	drawn := 0
	for _, r := range preds {
		if !r.OnImage || !r.Projected {
			continue
		}
		x := r.Screen.X + beam.X
		y := r.Screen.Y + beam.Y

		if r.Watched {
			p.disc(x, y, opts.SpotRadius, opts.WatchedColor)
		} else {
			col := colorutil.Fade(opts.SpotColor, 1-r.Weight)
			if col.A == 0 {
				continue
			}
			p.ring(x, y, opts.SpotRadius, opts.RingWidth, col)
		}
		drawn++

		if opts.Labels && r.HKL != [3]int{} {
			label := fmt.Sprintf("%d %d %d", r.HKL[0], r.HKL[1], r.HKL[2])
			lx := int(x + opts.SpotRadius + 2)
			// flip to the left of the spot at the right edge
			if w := labelWidth(label, opts.LabelScale); lx+w > dst.Bounds().Max.X {
				lx = int(x-opts.SpotRadius-2) - w
			}
			drawLabel(dst, label, lx, int(y-2.5*float64(opts.LabelScale)), opts.LabelColor, opts.LabelScale)
		}
	}
	return drawn
}

// painter fills vector paths clipped to their bounding box, reusing one
// rasterizer.
type painter struct {
	dst *image.RGBA
	z   *vector.Rasterizer
}

// fill rasterizes the path built by build inside box. build receives the
// box origin so it can translate absolute pixels into rasterizer space.
func (p *painter) fill(box image.Rectangle, col color.Color, build func(z *vector.Rasterizer, ox, oy float64)) {
	clip := box.Intersect(p.dst.Bounds())
	if clip.Empty() {
		return
	}
	p.z.Reset(clip.Dx(), clip.Dy())
	build(p.z, float64(clip.Min.X), float64(clip.Min.Y))
	p.z.Draw(p.dst, clip, image.NewUniform(col), image.Point{})
}

func boxAround(x, y, r float64) image.Rectangle {
	return image.Rect(int(math.Floor(x-r))-1, int(math.Floor(y-r))-1, int(math.Ceil(x+r))+1, int(math.Ceil(y+r))+1)
}

// circle appends a closed circle; reverse flips the winding so an inner
// circle cuts a hole.
func circle(z *vector.Rasterizer, cx, cy, r float64, reverse bool) {
	k := r * kappa
	s := 1.0
	if reverse {
		s = -1
	}
	f := func(v float64) float32 { return float32(v) }

	z.MoveTo(f(cx+r), f(cy))
	z.CubeTo(f(cx+r), f(cy+s*k), f(cx+k), f(cy+s*r), f(cx), f(cy+s*r))
	z.CubeTo(f(cx-k), f(cy+s*r), f(cx-r), f(cy+s*k), f(cx-r), f(cy))
	z.CubeTo(f(cx-r), f(cy-s*k), f(cx-k), f(cy-s*r), f(cx), f(cy-s*r))
	z.CubeTo(f(cx+k), f(cy-s*r), f(cx+r), f(cy-s*k), f(cx+r), f(cy))
	z.ClosePath()
}

func (p *painter) disc(x, y, r float64, col color.Color) {
	p.fill(boxAround(x, y, r), col, func(z *vector.Rasterizer, ox, oy float64) {
		circle(z, x-ox, y-oy, r, false)
	})
}

func (p *painter) ring(x, y, r, width float64, col color.Color) {
	inner := r - width
	p.fill(boxAround(x, y, r), col, func(z *vector.Rasterizer, ox, oy float64) {
		circle(z, x-ox, y-oy, r, false)
		if inner > 0 {
			circle(z, x-ox, y-oy, inner, true)
		}
	})
}

// line strokes the segment (x0, y0)-(x1, y1) as a quad of the given width.
func (p *painter) line(x0, y0, x1, y1, width float64, col color.Color) {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2

	box := image.Rect(
		int(math.Floor(math.Min(x0, x1)-width))-1, int(math.Floor(math.Min(y0, y1)-width))-1,
		int(math.Ceil(math.Max(x0, x1)+width))+1, int(math.Ceil(math.Max(y0, y1)+width))+1,
	)
	p.fill(box, col, func(z *vector.Rasterizer, ox, oy float64) {
		z.MoveTo(float32(x0+nx-ox), float32(y0+ny-oy))
		z.LineTo(float32(x1+nx-ox), float32(y1+ny-oy))
		z.LineTo(float32(x1-nx-ox), float32(y1-ny-oy))
		z.LineTo(float32(x0-nx-ox), float32(y0-ny-oy))
		z.ClosePath()
	})
}

// axes draws each real-space axis from the beam centre along its
// projection onto the detector, scaled relative to the longest axis.
func (p *painter) axes(axes geometry.Mat3, beam geometry.Vec3, opts Options) {
	longest := 0.0
	for i := 0; i < 3; i++ {
		longest = math.Max(longest, axes.Row(i).Length())
	}
	if longest == 0 {
		return
	}
	scale := opts.AxisLength / longest

	for i := 0; i < 3; i++ {
		a := axes.Row(i)
		ex, ey := beam.X+a.X*scale, beam.Y+a.Y*scale
		p.line(beam.X, beam.Y, ex, ey, opts.AxisWidth, axisColors[i])
		drawLabel(p.dst, string(rune('A'+i)), int(ex)+3, int(ey)+3, axisColors[i], 2)
	}
}

// fixedAxis draws a line across the whole frame through the beam centre.
func (p *painter) fixedAxis(axis, beam geometry.Vec3, opts Options) {
	dir := math.Hypot(axis.X, axis.Y)
	if dir == 0 {
		return
	}
	b := p.dst.Bounds()
	reach := math.Hypot(float64(b.Dx()), float64(b.Dy()))
	ux, uy := axis.X/dir*reach, axis.Y/dir*reach
	p.line(beam.X-ux, beam.Y-uy, beam.X+ux, beam.Y+uy, 1, opts.FixedColor)
}
