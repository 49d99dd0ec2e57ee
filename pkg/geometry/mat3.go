package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Mat3 is a 3×3 matrix stored row-major: [r0c0, r0c1, r0c2, r1c0, ...].
// It is a value type; every operation returns a new matrix.
type Mat3 [9]float64

// Identity returns the identity matrix.
func Identity() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Diag returns a diagonal matrix.
func Diag(x, y, z float64) Mat3 {
	return Mat3{x, 0, 0, 0, y, 0, 0, 0, z}
}

// Mul returns m × o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = m[i*3]*o[j] + m[i*3+1]*o[3+j] + m[i*3+2]*o[6+j]
		}
	}
	return r
}

// MulVec returns m × v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Transpose returns the transpose.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Det returns the determinant.
func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse returns the inverse of m. Singular or ill-conditioned matrices
// yield ErrSingular instead of a matrix full of Inf/NaN.
func (m Mat3) Inverse() (Mat3, error) {
	data := make([]float64, 9)
	copy(data, m[:])
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Mat3{}, fmt.Errorf("%w: non-finite element", ErrSingular)
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, data)); err != nil {
		return Mat3{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = inv.At(i, j)
		}
	}
	return r, nil
}

// Row returns row i as a vector.
func (m Mat3) Row(i int) Vec3 {
	return Vec3{m[i*3], m[i*3+1], m[i*3+2]}
}

// Column returns column i as a vector.
func (m Mat3) Column(i int) Vec3 {
	return Vec3{m[i], m[3+i], m[6+i]}
}

// ApproxEqual reports whether every element differs by at most tol.
func (m Mat3) ApproxEqual(o Mat3, tol float64) bool {
	for i := range m {
		if !(math.Abs(m[i]-o[i]) <= tol) {
			return false
		}
	}
	return true
}

// String formats the matrix for log output.
func (m Mat3) String() string {
	return fmt.Sprintf("[%.5g %.5g %.5g; %.5g %.5g %.5g; %.5g %.5g %.5g]",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}

// Rotation returns the right-handed rotation by radians about axis.
// The axis need not be normalised but must have length.
func Rotation(axis Vec3, radians float64) (Mat3, error) {
	k, err := axis.Unit()
	if err != nil {
		return Mat3{}, err
	}
	return UnitRotation(k, radians), nil
}

// UnitRotation is Rodrigues' formula; k must already be a unit vector.
func UnitRotation(k Vec3, radians float64) Mat3 {
	c := math.Cos(radians)
	s := math.Sin(radians)
	t := 1 - c
	return Mat3{
		c + k.X*k.X*t, k.X*k.Y*t - k.Z*s, k.X*k.Z*t + k.Y*s,
		k.Y*k.X*t + k.Z*s, c + k.Y*k.Y*t, k.Y*k.Z*t - k.X*s,
		k.Z*k.X*t - k.Y*s, k.Z*k.Y*t + k.X*s, c + k.Z*k.Z*t,
	}
}

// MapVecToVec returns the smallest rotation taking the direction of from
// onto the direction of to.
func MapVecToVec(from, to Vec3) (Mat3, error) {
	a, err := from.Unit()
	if err != nil {
		return Mat3{}, err
	}
	b, err := to.Unit()
	if err != nil {
		return Mat3{}, err
	}

	cross := a.Cross(b)
	s := cross.Length()
	c := a.Dot(b)
	if s < 1e-12 {
		if c > 0 {
			return Identity(), nil
		}
		// antiparallel: half turn about any perpendicular
		perp := a.Cross(Vec3{X: 1})
		if perp.Length() < 1e-6 {
			perp = a.Cross(Vec3{Y: 1})
		}
		return Rotation(perp, math.Pi)
	}
	return UnitRotation(cross.Mul(1/s), math.Atan2(s, c)), nil
}

// TwistAbout returns the rotation about axis that brings v angularly
// closest to target. Both vectors must have a component perpendicular to
// the axis, otherwise every twist is equally good and ErrZeroVector is
// returned.
func TwistAbout(axis, v, target Vec3) (Mat3, float64, error) {
	k, err := axis.Unit()
	if err != nil {
		return Mat3{}, 0, err
	}
	vp := v.Sub(k.Mul(v.Dot(k)))
	tp := target.Sub(k.Mul(target.Dot(k)))
	if vp.Length() < 1e-9 || tp.Length() < 1e-9 {
		return Mat3{}, 0, ErrZeroVector
	}
	angle := math.Atan2(k.Dot(vp.Cross(tp)), vp.Dot(tp))
	return UnitRotation(k, angle), angle, nil
}

// IsRotation reports whether m is orthonormal with determinant +1 within tol.
func (m Mat3) IsRotation(tol float64) bool {
	if !(math.Abs(m.Det()-1) <= tol) {
		return false
	}
	return m.Mul(m.Transpose()).ApproxEqual(Identity(), tol)
}
