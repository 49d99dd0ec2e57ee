// Package app ties the crystal model, detector and refiner into one
// interactive indexing session with the stage handling a viewer needs:
// keyboard and drag rotation, fixing a rotation axis from two clicks,
// picking reflections for refinement and identifying an hkl under the
// pointer.
package app

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mandexing/internal/config"
	"mandexing/internal/crystal"
	"mandexing/internal/detector"
	"mandexing/internal/refine"
	"mandexing/pkg/geometry"
)

var (
	// ErrWrongStage is returned when an input arrives outside the stage
	// that handles it.
	ErrWrongStage = errors.New("app: operation not valid in current stage")
	// ErrNotPredicted is returned for an hkl that is not in the current
	// reflection list.
	ErrNotPredicted = errors.New("app: reflection not predicted")
)

// Stage is the current pointer mode.
type Stage int

const (
	StageIdle Stage = iota
	StageFixAxis
	StageRefine
)

func (s Stage) String() string {
	switch s {
	case StageFixAxis:
		return "fix-axis"
	case StageRefine:
		return "refine"
	default:
		return "idle"
	}
}

// Session is one indexing session. All methods are safe for concurrent
// use; they are serialised on one lock.
type Session struct {
	mu sync.RWMutex

	xtal    *crystal.Crystal
	det     *detector.Detector
	refiner *refine.Refiner
	index   detector.IndexOptions

	// lookup is rebuilt lazily after anything moves the reflections.
	lookup *detector.Lookup

	stage     Stage
	fixPoints []geometry.Point2D

	degreeStep      float64
	repopulateEvery int
	keyPresses      int

	logger    *zap.Logger
	listeners map[EventType][]EventListener
}

// NewSession builds the crystal, detector and refiner from cfg and
// generates the first reflection list.
func NewSession(cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lattice, err := cfg.LatticeType()
	if err != nil {
		return nil, err
	}

	xtal := crystal.New(
		crystal.WithLogger(logger.Named("crystal")),
		crystal.WithBufferFactor(cfg.Crystal.BufferFactor),
		crystal.WithMaxSearchVolume(cfg.Crystal.MaxSearchVolume),
	)
	for _, set := range []error{
		xtal.SetLattice(lattice),
		xtal.SetWavelength(cfg.Crystal.Wavelength),
		xtal.SetRlpHalfWidth(cfg.Crystal.RlpSize),
		xtal.SetResolution(cfg.Crystal.Resolution),
	} {
		if set != nil {
			return nil, set
		}
	}
	if err := xtal.SetUnitCell(cfg.CellParams()); err != nil {
		return nil, err
	}

	det := detector.New(
		detector.WithLogger(logger.Named("detector")),
		detector.WithBeamCentre(cfg.Detector.BeamX, cfg.Detector.BeamY),
		detector.WithDistance(cfg.Detector.Distance),
	)
	if err := det.SetWavelength(cfg.Crystal.Wavelength); err != nil {
		return nil, err
	}

	return &Session{
		xtal: xtal,
		det:  det,
		refiner: newRefiner(cfg, logger),
		index: detector.IndexOptions{
			LeafSize:  cfg.Index.LeafSize,
			MaxDepth:  cfg.Index.MaxDepth,
			Tolerance: cfg.Index.Tolerance,
		},
		degreeStep:      cfg.Interaction.DegreeStep,
		repopulateEvery: cfg.Interaction.RepopulateEvery,
		logger:          logger,
		listeners:       make(map[EventType][]EventListener),
	}, nil
}

func newRefiner(cfg *config.Config, logger *zap.Logger) *refine.Refiner {
	return refine.New(
		refine.WithCycles(cfg.Refine.Cycles),
		refine.WithStep(cfg.Refine.Step),
		refine.WithBound(cfg.Refine.Bound),
		refine.WithLogger(logger.Named("refine")),
	)
}

// update runs fn under the lock, then emits the events on success.
func (s *Session) update(fn func() error, events ...EventType) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, e := range events {
		s.Emit(e, nil)
	}
	return nil
}

// moved drops the pick index after the reflections changed.
func (s *Session) moved() {
	s.lookup = nil
}

func (s *Session) populate() error {
	s.moved()
	return s.xtal.Populate()
}

// SetUnitCell sets the cell parameters and regenerates.
func (s *Session) SetUnitCell(params geometry.CellParams) error {
	return s.update(func() error {
		s.moved()
		return s.xtal.SetUnitCell(params)
	}, EventReflectionsChanged)
}

// SetLattice sets the centring and regenerates.
func (s *Session) SetLattice(l crystal.Lattice) error {
	return s.update(func() error {
		if err := s.xtal.SetLattice(l); err != nil {
			return err
		}
		return s.populate()
	}, EventReflectionsChanged)
}

// SetResolution sets the resolution limit and regenerates.
func (s *Session) SetResolution(d float64) error {
	return s.update(func() error {
		if err := s.xtal.SetResolution(d); err != nil {
			return err
		}
		return s.populate()
	}, EventReflectionsChanged)
}

// SetWavelength sets the wavelength on crystal and detector and regenerates.
func (s *Session) SetWavelength(lambda float64) error {
	return s.update(func() error {
		if err := s.xtal.SetWavelength(lambda); err != nil {
			return err
		}
		if err := s.det.SetWavelength(lambda); err != nil {
			return err
		}
		return s.populate()
	}, EventGeometryChanged, EventReflectionsChanged)
}

// SetRlpSize sets the shell half-width and regenerates.
func (s *Session) SetRlpSize(w float64) error {
	return s.update(func() error {
		if err := s.xtal.SetRlpHalfWidth(w); err != nil {
			return err
		}
		return s.populate()
	}, EventReflectionsChanged)
}

// ApplyConfig re-applies the settings a state file does not carry: lattice,
// resolution, pick index, refinement and interaction. The cell, wavelength,
// shell width and detector geometry are left as they are. On failure the
// session is unchanged.
func (s *Session) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	lattice, err := cfg.LatticeType()
	if err != nil {
		return err
	}
	return s.update(func() error {
		prevLattice, prevRes := s.xtal.Lattice(), s.xtal.Resolution()
		if err := s.xtal.SetLattice(lattice); err != nil {
			return err
		}
		if err := s.xtal.SetResolution(cfg.Crystal.Resolution); err != nil {
			_ = s.xtal.SetLattice(prevLattice)
			return err
		}
		if err := s.populate(); err != nil {
			_ = s.xtal.SetLattice(prevLattice)
			_ = s.xtal.SetResolution(prevRes)
			return err
		}

		s.index = detector.IndexOptions{
			LeafSize:  cfg.Index.LeafSize,
			MaxDepth:  cfg.Index.MaxDepth,
			Tolerance: cfg.Index.Tolerance,
		}
		s.refiner = newRefiner(cfg, s.logger)
		s.degreeStep = cfg.Interaction.DegreeStep
		s.repopulateEvery = cfg.Interaction.RepopulateEvery
		s.logger.Info("configuration applied",
			zap.Stringer("lattice", lattice),
			zap.Float64("resolution", cfg.Crystal.Resolution))
		return nil
	}, EventReflectionsChanged)
}

// SetBeamCentre moves the beam centre in absolute pixels.
func (s *Session) SetBeamCentre(x, y float64) {
	_ = s.update(func() error {
		s.det.SetBeamCentre(x, y)
		s.moved()
		return nil
	}, EventGeometryChanged)
}

// AdjustBeamCentre nudges the beam centre by whole pixels.
func (s *Session) AdjustBeamCentre(dx, dy float64) {
	_ = s.update(func() error {
		s.det.AdjustBeamCentre(dx, dy)
		s.moved()
		return nil
	}, EventGeometryChanged)
}

// SetDetectorDistance sets the sample-to-detector distance in pixels.
func (s *Session) SetDetectorDistance(d float64) error {
	return s.update(func() error {
		s.moved()
		return s.det.SetDistance(d)
	}, EventGeometryChanged)
}

// SetDegreeStep sets the key rotation step in radians.
func (s *Session) SetDegreeStep(rad float64) error {
	if !(rad > 0) || math.IsInf(rad, 0) {
		return fmt.Errorf("%w: degree step %g", crystal.ErrInvalidParameter, rad)
	}
	s.mu.Lock()
	s.degreeStep = rad
	s.mu.Unlock()
	return nil
}

// BringAxisToScreen orients the crystal so the hkl direction axis lies
// along screen x, optionally fixing the twist with a second direction.
func (s *Session) BringAxisToScreen(axis [3]float64, second *[3]float64) error {
	return s.update(func() error {
		s.moved()
		return s.xtal.BringAxisToScreen(axis, second)
	}, EventRotationChanged, EventReflectionsChanged)
}

// KeyRotate handles the W, A, S and D keys: A and D turn about the vertical
// axis, W and S about the horizontal one. Every few presses the reflection
// list is regenerated so spots rotating in from outside the buffer appear.
// It reports whether the key was handled.
func (s *Session) KeyRotate(key rune) (bool, error) {
	var handled bool
	err := s.update(func() error {
		var dx, dy float64
		switch strings.ToLower(string(key)) {
		case "a":
			dx = -s.degreeStep
		case "d":
			dx = s.degreeStep
		case "s":
			dy = s.degreeStep
		case "w":
			dy = -s.degreeStep
		default:
			return nil
		}
		handled = true

		s.xtal.ApplyRotation(dx, dy, 0)
		s.moved()
		s.keyPresses++
		if s.keyPresses >= s.repopulateEvery {
			s.keyPresses = 0
			return s.populate()
		}
		return nil
	})
	if err != nil || !handled {
		return handled, err
	}
	s.Emit(EventRotationChanged, nil)
	return true, nil
}

// dragAngle returns the signed angle turning the pointer vector from
// (lastX, lastY) to (newX, newY) about the centre.
func dragAngle(lastX, lastY, newX, newY, centreX, centreY float64) float64 {
	oldVec := geometry.Vec3{X: lastX - centreX, Y: lastY - centreY}
	newVec := geometry.Vec3{X: newX - centreX, Y: newY - centreY}
	angle, err := newVec.Angle(oldVec)
	if err != nil || math.IsNaN(angle) {
		return 0
	}
	if newVec.Cross(oldVec).Z > 0 {
		angle = -angle
	}
	return angle
}

// DragRotate turns the crystal about the beam by the angle the pointer swept
// around the centre, and returns that angle. Drags are ignored while fixing
// an axis or picking reflections.
func (s *Session) DragRotate(lastX, lastY, newX, newY, centreX, centreY float64) (float64, error) {
	var angle float64
	err := s.update(func() error {
		if s.stage != StageIdle {
			return ErrWrongStage
		}
		angle = dragAngle(lastX, lastY, newX, newY, centreX, centreY)
		if angle != 0 {
			s.xtal.ApplyRotation(0, 0, angle)
			s.moved()
		}
		return nil
	}, EventRotationChanged)
	return angle, err
}

// EndDrag regenerates the reflections once the pointer is released.
func (s *Session) EndDrag() error {
	return s.update(func() error {
		if s.stage != StageIdle {
			return nil
		}
		return s.populate()
	}, EventReflectionsChanged)
}

func (s *Session) setStage(stage Stage) {
	s.stage = stage
	s.logger.Debug("stage changed", zap.Stringer("stage", stage))
}

// BeginFixAxis starts collecting the two points that define a fixed axis.
func (s *Session) BeginFixAxis() {
	_ = s.update(func() error {
		s.setStage(StageFixAxis)
		s.fixPoints = s.fixPoints[:0]
		return nil
	}, EventStageChanged)
}

// AddFixAxisPoint records a point in detector pixels. After the second
// point the fixed axis becomes the direction between them and the stage
// returns to idle; done reports that. Two identical points leave the axis
// unchanged and return the degenerate-axis error.
func (s *Session) AddFixAxisPoint(x, y float64) (bool, error) {
	var done bool
	err := s.update(func() error {
		if s.stage != StageFixAxis {
			return ErrWrongStage
		}
		s.fixPoints = append(s.fixPoints, geometry.Point2D{X: x, Y: y})
		if len(s.fixPoints) < 2 {
			return nil
		}

		done = true
		s.setStage(StageIdle)
		diff := s.fixPoints[0].Sub(s.fixPoints[1])
		s.fixPoints = s.fixPoints[:0]
		if err := s.xtal.SetFixedAxis(geometry.Vec3{X: diff.X, Y: diff.Y}); err != nil {
			return err
		}
		axis, _ := s.xtal.FixedAxis()
		s.logger.Info("fixed axis set", zap.Stringer("axis", axis))
		return nil
	})
	if err != nil {
		if done {
			s.Emit(EventStageChanged, nil)
		}
		return done, err
	}
	if done {
		s.Emit(EventStageChanged, nil)
		s.Emit(EventFixedAxisChanged, nil)
	}
	return done, nil
}

// CancelFixAxis abandons point collection.
func (s *Session) CancelFixAxis() {
	_ = s.update(func() error {
		if s.stage == StageFixAxis {
			s.setStage(StageIdle)
			s.fixPoints = s.fixPoints[:0]
		}
		return nil
	}, EventStageChanged)
}

// ClearFixedAxis restores the screen axes for key rotation.
func (s *Session) ClearFixedAxis() {
	_ = s.update(func() error {
		s.xtal.ClearFixedAxis()
		return nil
	}, EventFixedAxisChanged)
}

// FixedAxis returns the fixed axis, if any.
func (s *Session) FixedAxis() (geometry.Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.xtal.FixedAxis()
}

// Stage returns the current pointer mode.
func (s *Session) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// Rotation returns the committed orientation.
func (s *Session) Rotation() geometry.Mat3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.xtal.Rotation()
}

// BeamCentre returns beam x, beam y and distance in pixels.
func (s *Session) BeamCentre() geometry.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.det.BeamCentre()
}

// RealSpaceAxes returns the rotated real-space axes as rows.
func (s *Session) RealSpaceAxes() (geometry.Mat3, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.xtal.RealSpaceAxes()
}

// ensureLookup projects and indexes the reflections if anything moved.
func (s *Session) ensureLookup() *detector.Lookup {
	if s.lookup == nil {
		s.lookup = detector.NewLookup(s.xtal, s.det, s.index)
	}
	return s.lookup
}

// Reflections projects and returns every current reflection.
func (s *Session) Reflections() []crystal.Reflection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.det.Project(s.xtal)
	return s.xtal.Reflections()
}

// Predictions projects the reflections and returns those a viewer draws:
// on image and hitting the detector.
func (s *Session) Predictions() []crystal.Reflection {
	var out []crystal.Reflection
	for _, r := range s.Reflections() {
		if r.OnImage && r.Projected {
			out = append(out, r)
		}
	}
	return out
}

// ToDetector converts a beam-centred screen position to absolute pixels.
func (s *Session) ToDetector(screen geometry.Vec3) geometry.Point2D {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.det.ToDetector(screen.X, screen.Y)
}
