// Package geometry provides the vector, matrix and rectangle value types used
// throughout the application.
package geometry

import (
	"math"
)

// Point2D represents a 2D point on the detector plane, in pixels.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Rect represents an axis-aligned rectangle with floating-point coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewRect creates a new Rect.
func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// Contains returns true if the point is inside the rectangle (edges included).
func (r Rect) Contains(p Point2D) bool {
	return p.X >= r.X && p.X <= r.X+r.Width &&
		p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point2D {
	return Point2D{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Quadrant returns the rectangle for quadrant q (0 top-left, 1 top-right,
// 2 bottom-left, 3 bottom-right), split at the center.
func (r Rect) Quadrant(q int) Rect {
	hw, hh := r.Width/2, r.Height/2
	switch q {
	case 0:
		return Rect{X: r.X, Y: r.Y, Width: hw, Height: hh}
	case 1:
		return Rect{X: r.X + hw, Y: r.Y, Width: r.Width - hw, Height: hh}
	case 2:
		return Rect{X: r.X, Y: r.Y + hh, Width: hw, Height: r.Height - hh}
	default:
		return Rect{X: r.X + hw, Y: r.Y + hh, Width: r.Width - hw, Height: r.Height - hh}
	}
}

// QuadrantOf returns the quadrant index of p using the same split as
// Quadrant: points on a mid-line belong to the right or bottom half.
func (r Rect) QuadrantOf(p Point2D) int {
	c := r.Center()
	q := 0
	if p.X >= c.X {
		q |= 1
	}
	if p.Y >= c.Y {
		q |= 2
	}
	return q
}

// Degenerate reports whether the rectangle has no area.
func (r Rect) Degenerate() bool {
	return r.Width <= 0 || r.Height <= 0
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point2D) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
