// Package crystal holds the crystal model: unit cell, orientation, lattice
// centring and the predicted reflection list scored against the Ewald sphere.
//
// Two operations keep the reflection list current. Populate regenerates the
// hkl set from scratch and must run after the cell, lattice, resolution,
// wavelength or shell width change, or after the orientation moves far.
// Rescore is cheap and only recomputes positions and weights for the stored
// hkl set; it runs after every rotation or nudge. Populate keeps a buffer
// shell wider than the scoring shell so small rotations between Populate
// calls do not lose reflections.
//
// A Crystal is not safe for concurrent use.
package crystal

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"mandexing/pkg/geometry"
)

// Defaults for a freshly created crystal.
const (
	DefaultWavelength   = 1.0
	DefaultRlpHalfWidth = 0.0015
	DefaultResolution   = 2.0
	DefaultBufferFactor = 2.0

	// DefaultMaxSearchVolume caps the (2h+1)(2k+1)(2l+1) index box.
	DefaultMaxSearchVolume = 64_000_000
)

// Crystal is the single mutable crystal of an indexing session.
type Crystal struct {
	cell     geometry.CellParams
	unitCell geometry.Mat3
	rotation geometry.Mat3
	lattice  Lattice

	wavelength   float64
	rlpHalfWidth float64
	resolution   float64
	bufferFactor float64
	maxVolume    int

	fixedAxis    geometry.Vec3
	hasFixedAxis bool

	horizontal float64
	vertical   float64

	reflections []Reflection

	logger *zap.Logger
}

// Option configures a Crystal at construction.
type Option func(*Crystal)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Crystal) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBufferFactor sets how many shell half-widths Populate keeps on each
// side of the scoring shell.
func WithBufferFactor(f float64) Option {
	return func(c *Crystal) {
		if f >= 0 {
			c.bufferFactor = f
		}
	}
}

// WithMaxSearchVolume caps the number of index triples Populate may visit.
// Zero or negative means no cap.
func WithMaxSearchVolume(n int) Option {
	return func(c *Crystal) {
		c.maxVolume = n
	}
}

// New returns a crystal with a 1 Å cubic primitive cell and identity
// orientation. No reflections exist until Populate runs.
func New(opts ...Option) *Crystal {
	c := &Crystal{
		cell:         geometry.CellParams{1, 1, 1, 90, 90, 90},
		unitCell:     geometry.Identity(),
		rotation:     geometry.Identity(),
		lattice:      Primitive,
		wavelength:   DefaultWavelength,
		rlpHalfWidth: DefaultRlpHalfWidth,
		resolution:   DefaultResolution,
		bufferFactor: DefaultBufferFactor,
		maxVolume:    DefaultMaxSearchVolume,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetUnitCell sets the cell from a, b, c (Å) and α, β, γ (degrees) and
// regenerates the reflections.
func (c *Crystal) SetUnitCell(params geometry.CellParams) error {
	rec, err := params.Reciprocal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if err := c.replaceCell(params, rec); err != nil {
		return err
	}
	c.logger.Info("unit cell set",
		zap.Float64s("cell", params[:]),
		zap.Stringer("reciprocal", rec))
	return nil
}

// SetUnitCellMatrix sets the reciprocal basis directly, as stored in saved
// state, and regenerates the reflections.
func (c *Crystal) SetUnitCellMatrix(m geometry.Mat3) error {
	if _, err := m.Inverse(); err != nil {
		return fmt.Errorf("%w: unit cell matrix: %v", ErrInvalidParameter, err)
	}
	params := c.cell
	if lengths, err := geometry.AxisLengths(m); err == nil {
		params = geometry.CellParams{lengths[0], lengths[1], lengths[2], 0, 0, 0}
		params[3], params[4], params[5] = realAngles(m)
	}
	return c.replaceCell(params, m)
}

// replaceCell installs a new cell and regenerates. If generation fails the
// previous cell stays, so the reflections always match the cell.
func (c *Crystal) replaceCell(params geometry.CellParams, rec geometry.Mat3) error {
	prevCell, prevRec := c.cell, c.unitCell
	c.cell, c.unitCell = params, rec
	if err := c.Populate(); err != nil {
		c.cell, c.unitCell = prevCell, prevRec
		return err
	}
	return nil
}

// realAngles recovers α, β, γ from a reciprocal basis; errors yield zeros.
func realAngles(reciprocal geometry.Mat3) (float64, float64, float64) {
	basis, err := reciprocal.Inverse()
	if err != nil {
		return 0, 0, 0
	}
	deg := func(u, v geometry.Vec3) float64 {
		a, err := u.Angle(v)
		if err != nil {
			return 0
		}
		return a * 180 / math.Pi
	}
	return deg(basis.Row(1), basis.Row(2)), deg(basis.Row(0), basis.Row(2)), deg(basis.Row(0), basis.Row(1))
}

// SetLattice sets the centring. Call Populate to apply it.
func (c *Crystal) SetLattice(l Lattice) error {
	if l < Primitive || l > BaseCentred {
		return fmt.Errorf("%w: lattice %d", ErrInvalidParameter, int(l))
	}
	c.lattice = l
	return nil
}

// SetResolution sets the resolution limit in Å. Call Populate to apply it.
func (c *Crystal) SetResolution(d float64) error {
	if !(d > 0) || math.IsInf(d, 0) {
		return fmt.Errorf("%w: resolution %g must be positive", ErrInvalidParameter, d)
	}
	c.resolution = d
	return nil
}

// SetWavelength sets the wavelength in Å. Rescore or Populate to apply it.
func (c *Crystal) SetWavelength(lambda float64) error {
	if !(lambda > 0) || math.IsInf(lambda, 0) {
		return fmt.Errorf("%w: wavelength %g must be positive", ErrInvalidParameter, lambda)
	}
	c.wavelength = lambda
	return nil
}

// SetRlpHalfWidth sets the scoring shell half-thickness in Å⁻¹.
func (c *Crystal) SetRlpHalfWidth(w float64) error {
	if !(w >= 0) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: rlp size %g must not be negative", ErrInvalidParameter, w)
	}
	c.rlpHalfWidth = w
	return nil
}

// SetFixedAxis constrains nudges to rotate about axis instead of the screen
// axes. The axis must have length and must not lie along the beam.
func (c *Crystal) SetFixedAxis(axis geometry.Vec3) error {
	u, err := axis.Unit()
	if err != nil {
		return fmt.Errorf("%w: fixed axis: %v", ErrDegenerateAxis, err)
	}
	if u.Cross(beamAxis).Length() < 1e-9 {
		return fmt.Errorf("%w: fixed axis is parallel to the beam", ErrDegenerateAxis)
	}
	c.fixedAxis = u
	c.hasFixedAxis = true
	return nil
}

// ClearFixedAxis restores the default screen axes for nudges.
func (c *Crystal) ClearFixedAxis() {
	c.fixedAxis = geometry.Vec3{}
	c.hasFixedAxis = false
}

// FixedAxis returns the fixed axis and whether one is set.
func (c *Crystal) FixedAxis() (geometry.Vec3, bool) {
	return c.fixedAxis, c.hasFixedAxis
}

// RotationTolerance bounds how far a stored orientation may stray from
// orthonormal.
const RotationTolerance = 1e-6

// SetRotation replaces the orientation, e.g. from saved state. Call Populate
// afterwards if the change is large.
func (c *Crystal) SetRotation(m geometry.Mat3) error {
	if !m.IsRotation(RotationTolerance) {
		return fmt.Errorf("%w: orientation %v is not a rotation", ErrInvalidParameter, m)
	}
	c.rotation = m
	return nil
}

// Rotation returns the committed orientation.
func (c *Crystal) Rotation() geometry.Mat3 { return c.rotation }

// UnitCell returns the reciprocal basis matrix.
func (c *Crystal) UnitCell() geometry.Mat3 { return c.unitCell }

// CellParams returns the cell parameters last set or derived.
func (c *Crystal) CellParams() geometry.CellParams { return c.cell }

// Lattice returns the centring.
func (c *Crystal) Lattice() Lattice { return c.lattice }

// Wavelength returns the wavelength in Å.
func (c *Crystal) Wavelength() float64 { return c.wavelength }

// RlpHalfWidth returns the scoring shell half-thickness.
func (c *Crystal) RlpHalfWidth() float64 { return c.rlpHalfWidth }

// Resolution returns the resolution limit in Å.
func (c *Crystal) Resolution() float64 { return c.resolution }

// RealSpaceAxes returns inverse(rotation · unitCell): its rows are the
// rotated real-space axes, used to draw the cell on the detector.
func (c *Crystal) RealSpaceAxes() (geometry.Mat3, error) {
	return c.rotation.Mul(c.unitCell).Inverse()
}
