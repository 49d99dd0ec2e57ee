package geometry

import (
	"fmt"
	"math"
)

// CellParams holds a, b, c in Å and α, β, γ in degrees.
type CellParams [6]float64

// Basis returns the matrix whose rows are the real-space cell axes, with a
// along x and b in the xy plane.
func (p CellParams) Basis() (Mat3, error) {
	a, b, c := p[0], p[1], p[2]
	if a <= 0 || b <= 0 || c <= 0 {
		return Mat3{}, fmt.Errorf("%w: lengths %g %g %g", ErrInvalidCell, a, b, c)
	}
	for _, ang := range p[3:] {
		if ang <= 0 || ang >= 180 {
			return Mat3{}, fmt.Errorf("%w: angle %g", ErrInvalidCell, ang)
		}
	}

	ca := math.Cos(p[3] * math.Pi / 180)
	cb := math.Cos(p[4] * math.Pi / 180)
	cg := math.Cos(p[5] * math.Pi / 180)
	sg := math.Sin(p[5] * math.Pi / 180)

	vol := 1 - ca*ca - cb*cb - cg*cg + 2*ca*cb*cg
	if vol <= 1e-12 {
		return Mat3{}, fmt.Errorf("%w: angles %g %g %g enclose no volume", ErrInvalidCell, p[3], p[4], p[5])
	}

	return Mat3{
		a, 0, 0,
		b * cg, b * sg, 0,
		c * cb, c * (ca - cb*cg) / sg, c * math.Sqrt(vol) / sg,
	}, nil
}

// Reciprocal returns the reciprocal basis: the inverse of Basis. Its columns
// are a*, b*, c*, so Reciprocal · (h, k, l) is the reciprocal-lattice vector.
func (p CellParams) Reciprocal() (Mat3, error) {
	basis, err := p.Basis()
	if err != nil {
		return Mat3{}, err
	}
	return basis.Inverse()
}

// AxisLengths returns the real-space axis lengths |a|, |b|, |c| for a
// reciprocal basis.
func AxisLengths(reciprocal Mat3) ([3]float64, error) {
	basis, err := reciprocal.Inverse()
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{basis.Row(0).Length(), basis.Row(1).Length(), basis.Row(2).Length()}, nil
}
