package crystal

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"mandexing/pkg/geometry"
)

var (
	screenX  = geometry.Vec3{X: 1}
	screenY  = geometry.Vec3{Y: 1}
	beamAxis = geometry.Vec3{Z: 1}
)

// Nudge builds the rotation for small angles (radians): diffX turns about
// the vertical axis, diffY about the horizontal axis and diffZ about the
// beam. With a fixed axis f, diffY turns about f and diffX about f × beam.
// The result is Rz(diffZ) · Rx(diffY) · Ry(diffX).
func (c *Crystal) Nudge(diffX, diffY, diffZ float64) geometry.Mat3 {
	xAxis, yAxis := screenX, screenY
	if c.hasFixedAxis {
		xAxis = c.fixedAxis
		// SetFixedAxis rejects axes along the beam, so the cross has length
		yAxis, _ = c.fixedAxis.Cross(beamAxis).Unit()
	}

	xRot := geometry.UnitRotation(yAxis, diffX)
	yRot := geometry.UnitRotation(xAxis, diffY)
	zRot := geometry.UnitRotation(beamAxis, diffZ)

	return zRot.Mul(yRot.Mul(xRot))
}

// ApplyRotation composes a nudge into the committed rotation and rescores.
// This is the interactive path and never regenerates the hkl set.
func (c *Crystal) ApplyRotation(diffX, diffY, diffZ float64) {
	c.rotation = c.Nudge(diffX, diffY, diffZ).Mul(c.rotation)
	c.Rescore()
	c.logger.Debug("rotation applied", zap.Stringer("rotation", c.rotation))
}

// Horizontal returns the in-progress horizontal nudge in radians.
func (c *Crystal) Horizontal() float64 { return c.horizontal }

// Vertical returns the in-progress vertical nudge in radians.
func (c *Crystal) Vertical() float64 { return c.vertical }

// SetNudge sets the in-progress nudge. It takes effect on the next Rescore.
func (c *Crystal) SetNudge(horizontal, vertical float64) {
	c.horizontal = horizontal
	c.vertical = vertical
}

// ObjectiveScore rescores and returns the mean weight of the watched
// reflections, or 0 when none are watched. Smaller is better.
func (c *Crystal) ObjectiveScore() float64 {
	c.Rescore()

	var weights []float64
	for i := range c.reflections {
		if c.reflections[i].Watched {
			weights = append(weights, c.reflections[i].Weight)
		}
	}
	if len(weights) == 0 {
		return 0
	}

	score := stat.Mean(weights, nil)
	c.logger.Debug("objective",
		zap.Float64("score", score),
		zap.Int("watched", len(weights)))
	return score
}

// FoldNudge commits the in-progress nudge into the rotation, resets it and
// clears every watched flag. It ends a refinement session.
func (c *Crystal) FoldNudge() {
	c.rotation = c.Nudge(c.horizontal, c.vertical, 0).Mul(c.rotation)
	c.horizontal = 0
	c.vertical = 0
	c.ClearWatched()
	c.Rescore()
}

// BringAxisToScreen orients the crystal so the reciprocal direction of axis
// (an hkl triple) lies along screen x. With a second axis the remaining
// twist about screen x is chosen so the second direction lands as close as
// possible to the screen plane at its true angle from the first. The
// reflections are regenerated afterwards.
func (c *Crystal) BringAxisToScreen(axis [3]float64, second *[3]float64) error {
	first := c.unitCell.MulVec(geometry.Vec3{X: axis[0], Y: axis[1], Z: axis[2]})
	rot, err := geometry.MapVecToVec(first, screenX)
	if err != nil {
		return fmt.Errorf("%w: axis %v: %v", ErrDegenerateAxis, axis, err)
	}

	if second != nil {
		other := c.unitCell.MulVec(geometry.Vec3{X: second[0], Y: second[1], Z: second[2]})
		angle, err := first.Angle(other)
		if err != nil {
			return fmt.Errorf("%w: second axis %v: %v", ErrDegenerateAxis, *second, err)
		}
		if angle < 1e-6 || math.Pi-angle < 1e-6 {
			return fmt.Errorf("%w: axes %v and %v are parallel", ErrDegenerateAxis, axis, *second)
		}

		target := geometry.UnitRotation(beamAxis, angle).MulVec(screenX)
		twist, _, err := geometry.TwistAbout(screenX, rot.MulVec(other), target)
		if err != nil {
			return fmt.Errorf("%w: second axis %v: %v", ErrDegenerateAxis, *second, err)
		}
		rot = twist.Mul(rot)
	}

	c.logger.Info("axis brought to screen",
		zap.Float64s("axis", axis[:]),
		zap.Stringer("rotation", rot))

	c.rotation = rot
	c.horizontal = 0
	c.vertical = 0
	return c.Populate()
}
