package crystal

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"mandexing/pkg/geometry"
)

// samplePosition returns the Ewald sphere centre, (0, 0, -1/λ).
func (c *Crystal) samplePosition() geometry.Vec3 {
	return geometry.Vec3{Z: -1 / c.wavelength}
}

// shell returns the squared radii of the sphere shell r ± width.
func shell(r, width float64) (minSq, maxSq float64) {
	lo := r - width
	hi := r + width
	if lo < 0 {
		lo = 0
	}
	return lo * lo, hi * hi
}

// Populate regenerates the reflection list from the cell, lattice,
// resolution and committed rotation, then rescores it. Watched flags are
// lost. An empty result is not an error.
func (c *Crystal) Populate() error {
	lengths, err := geometry.AxisLengths(c.unitCell)
	if err != nil {
		return fmt.Errorf("%w: unit cell: %v", ErrInvalidParameter, err)
	}

	var max [3]int
	volume := 1
	for i, l := range lengths {
		max[i] = int(math.Floor(l / c.resolution))
		volume *= 2*max[i] + 1
	}
	if c.maxVolume > 0 && volume > c.maxVolume {
		return fmt.Errorf("%w: %d triples for limits %v", ErrSearchTooLarge, volume, max)
	}

	c.logger.Debug("populating reflections",
		zap.Ints("limits", max[:]),
		zap.Stringer("lattice", c.lattice))

	sample := c.samplePosition()
	maxRecipSq := 1 / (c.resolution * c.resolution)
	minBuffer, maxBuffer := shell(1/c.wavelength, c.rlpHalfWidth*(1+c.bufferFactor))
	transform := c.rotation.Mul(c.unitCell)

	c.reflections = c.reflections[:0]
	for h := -max[0]; h <= max[0]; h++ {
		for k := -max[1]; k <= max[1]; k++ {
			for l := -max[2]; l <= max[2]; l++ {
				if c.lattice.Absent(h, k, l) {
					continue
				}

				hkl := geometry.Vec3{X: float64(h), Y: float64(k), Z: float64(l)}
				if c.unitCell.MulVec(hkl).SqLength() > maxRecipSq {
					continue
				}

				pos := transform.MulVec(hkl)
				sq := pos.Sub(sample).SqLength()
				if sq < minBuffer || sq > maxBuffer {
					continue
				}

				c.reflections = append(c.reflections, Reflection{
					HKL:    [3]int{h, k, l},
					Miller: pos,
				})
			}
		}
	}

	c.Rescore()

	c.logger.Info("found reflections", zap.Int("count", len(c.reflections)))
	return nil
}

// Rescore recomputes every stored reflection's reciprocal position under
// the current rotation and nudge, and its weight against the scoring shell.
// It never adds or removes reflections and is idempotent.
func (c *Crystal) Rescore() {
	sample := c.samplePosition()
	radius := 1 / c.wavelength
	minSq, maxSq := shell(radius, c.rlpHalfWidth)
	transform := c.Nudge(c.horizontal, c.vertical, 0).Mul(c.rotation).Mul(c.unitCell)

	for i := range c.reflections {
		r := &c.reflections[i]
		hkl := geometry.Vec3{X: float64(r.HKL[0]), Y: float64(r.HKL[1]), Z: float64(r.HKL[2])}
		r.Miller = transform.MulVec(hkl)

		sq := r.Miller.Sub(sample).SqLength()
		if sq < minSq || sq > maxSq {
			r.OnImage = false
			r.Weight = 1
			continue
		}

		r.OnImage = true
		r.Weight = closeness(math.Sqrt(sq), radius, c.rlpHalfWidth)
	}
}

// closeness maps the distance from the sphere surface onto [0, 1].
func closeness(length, radius, width float64) float64 {
	d := math.Abs(radius - length)
	if width <= 0 {
		if d == 0 {
			return 0
		}
		return 1
	}
	w := d / width
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
