package geometry

import (
	"fmt"
	"math"
)

// Vec3 is a 3D vector. Reciprocal-space positions are in Å⁻¹, detector
// positions in pixels.
type Vec3 struct{ X, Y, Z float64 }

// NewVec3 creates a new Vec3.
func NewVec3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Add returns the sum of two vectors.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns the difference between two vectors.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Mul scales a vector by a scalar.
func (v Vec3) Mul(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product of two vectors.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// SqLength returns the squared Euclidean length.
func (v Vec3) SqLength() float64 { return v.Dot(v) }

// Length returns the Euclidean length.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Unit returns a unit vector in the same direction, or ErrZeroVector.
func (v Vec3) Unit() (Vec3, error) {
	l := v.Length()
	if l < 1e-12 || math.IsNaN(l) {
		return Vec3{}, ErrZeroVector
	}
	return v.Mul(1 / l), nil
}

// Angle returns the angle between two vectors in radians. Zero-length
// vectors yield ErrZeroVector.
func (v Vec3) Angle(o Vec3) (float64, error) {
	lv, lo := v.Length(), o.Length()
	if lv < 1e-12 || lo < 1e-12 {
		return 0, ErrZeroVector
	}
	c := v.Dot(o) / (lv * lo)
	// rounding can push the cosine just outside [-1, 1]
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c), nil
}

// XY returns the detector-plane part of the vector.
func (v Vec3) XY() Point2D { return Point2D{X: v.X, Y: v.Y} }

// String formats the vector for log output.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", v.X, v.Y, v.Z)
}
