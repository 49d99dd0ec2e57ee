// Package detector projects predicted reflections onto the detector plane
// and answers "which reflection is under this pixel" queries through a
// quad-tree built over the projected positions.
package detector

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"mandexing/internal/crystal"
	"mandexing/pkg/geometry"
)

// Defaults for a freshly created detector.
const (
	DefaultDistance   = 1000.0 // pixels from the sample along the beam
	DefaultWavelength = crystal.DefaultWavelength
)

// ErrInvalidGeometry is returned for non-positive distances or wavelengths.
var ErrInvalidGeometry = errors.New("detector: invalid geometry")

// minRayZ is the smallest beam-axis travel a ray may have and still be
// considered to reach the plane.
const minRayZ = 1e-9

// Detector is a flat sensor normal to the beam. Screen positions are in
// pixels relative to the beam centre; absolute pixels add the centre back.
type Detector struct {
	beamX      float64
	beamY      float64
	distance   float64
	wavelength float64

	logger *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithBeamCentre sets the initial beam centre in absolute pixels.
func WithBeamCentre(x, y float64) Option {
	return func(d *Detector) {
		d.beamX, d.beamY = x, y
	}
}

// WithDistance sets the initial sample-to-detector distance in pixels.
func WithDistance(dist float64) Option {
	return func(d *Detector) {
		if dist > 0 {
			d.distance = dist
		}
	}
}

// New creates a detector with the beam centre at the origin.
func New(opts ...Option) *Detector {
	d := &Detector{
		distance:   DefaultDistance,
		wavelength: DefaultWavelength,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetBeamCentre moves the beam centre to (x, y) in absolute pixels.
func (d *Detector) SetBeamCentre(x, y float64) {
	d.beamX, d.beamY = x, y
}

// AdjustBeamCentre shifts the beam centre by (dx, dy) pixels.
func (d *Detector) AdjustBeamCentre(dx, dy float64) {
	d.beamX += dx
	d.beamY += dy
}

// SetDistance sets the sample-to-detector distance in pixels.
func (d *Detector) SetDistance(dist float64) error {
	if !(dist > 0) || math.IsInf(dist, 0) {
		return fmt.Errorf("%w: distance %g", ErrInvalidGeometry, dist)
	}
	d.distance = dist
	return nil
}

// SetWavelength sets the wavelength in Å used for the sample position.
func (d *Detector) SetWavelength(lambda float64) error {
	if !(lambda > 0) || math.IsInf(lambda, 0) {
		return fmt.Errorf("%w: wavelength %g", ErrInvalidGeometry, lambda)
	}
	d.wavelength = lambda
	return nil
}

// BeamCentre returns (beamX, beamY, distance), the form stored in saved state.
func (d *Detector) BeamCentre() geometry.Vec3 {
	return geometry.Vec3{X: d.beamX, Y: d.beamY, Z: d.distance}
}

// Distance returns the sample-to-detector distance in pixels.
func (d *Detector) Distance() float64 { return d.distance }

// Wavelength returns the wavelength in Å.
func (d *Detector) Wavelength() float64 { return d.wavelength }

// ToDetector converts beam-centred coordinates to absolute pixels.
func (d *Detector) ToDetector(x, y float64) geometry.Point2D {
	return geometry.Point2D{X: x + d.beamX, Y: y + d.beamY}
}

// FromDetector converts absolute pixels to beam-centred coordinates.
func (d *Detector) FromDetector(x, y float64) geometry.Point2D {
	return geometry.Point2D{X: x - d.beamX, Y: y - d.beamY}
}

// ProjectPoint intersects the ray from the sample point through a reciprocal
// position with the detector plane. ok is false when the ray runs parallel
// to the plane or away from it.
func (d *Detector) ProjectPoint(miller geometry.Vec3) (geometry.Vec3, bool) {
	sample := geometry.Vec3{Z: -1 / d.wavelength}
	diff := miller.Sub(sample)
	if diff.Z <= minRayZ {
		return geometry.Vec3{}, false
	}
	return diff.Mul(d.distance / diff.Z), true
}

// Project writes the beam-centred screen position of every reflection of
// xtal. Weights and on-image flags are left alone.
func (d *Detector) Project(xtal *crystal.Crystal) {
	missed := 0
	for i, r := range xtal.Reflections() {
		pos, ok := d.ProjectPoint(r.Miller)
		if !ok {
			missed++
		}
		// i comes from the same generation, so the index is always valid
		_ = xtal.SetScreenPosition(i, pos, ok)
	}
	if missed > 0 {
		d.logger.Debug("reflections miss the detector plane", zap.Int("count", missed))
	}
}
