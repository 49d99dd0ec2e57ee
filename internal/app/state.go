package app

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"mandexing/internal/crystal"
	"mandexing/internal/project"
)

// Snapshot captures the persisted part of the session.
func (s *Session) Snapshot() *project.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *project.State {
	return &project.State{
		Rotation:      s.xtal.Rotation(),
		UnitCell:      s.xtal.UnitCell(),
		DetCentre:     s.det.BeamCentre(),
		Wavelength:    s.xtal.Wavelength(),
		RlpSize:       s.xtal.RlpHalfWidth(),
		HasRotation:   true,
		HasUnitCell:   true,
		HasDetCentre:  true,
		HasWavelength: true,
		HasRlpSize:    true,
	}
}

// checkState rejects a state that would fail part way through applying.
func checkState(st *project.State) error {
	if st.HasRotation && !st.Rotation.IsRotation(crystal.RotationTolerance) {
		return fmt.Errorf("%w: rotation is not orthonormal", crystal.ErrInvalidParameter)
	}
	if st.HasUnitCell {
		if _, err := st.UnitCell.Inverse(); err != nil {
			return fmt.Errorf("%w: unit cell: %v", crystal.ErrInvalidParameter, err)
		}
	}
	if st.HasWavelength && !(st.Wavelength > 0) {
		return fmt.Errorf("%w: wavelength %g", crystal.ErrInvalidParameter, st.Wavelength)
	}
	if st.HasRlpSize && !(st.RlpSize >= 0) {
		return fmt.Errorf("%w: rlp size %g", crystal.ErrInvalidParameter, st.RlpSize)
	}
	if st.HasDetCentre && (!(st.DetCentre.Z > 0) || math.IsInf(st.DetCentre.Z, 0)) {
		return fmt.Errorf("%w: detector distance %g", crystal.ErrInvalidParameter, st.DetCentre.Z)
	}
	return nil
}

// applyLocked writes the rows present in st and regenerates.
func (s *Session) applyLocked(st *project.State) error {
	if st.HasRotation {
		if err := s.xtal.SetRotation(st.Rotation); err != nil {
			return err
		}
	}
	if st.HasDetCentre {
		s.det.SetBeamCentre(st.DetCentre.X, st.DetCentre.Y)
		if err := s.det.SetDistance(st.DetCentre.Z); err != nil {
			return err
		}
	}
	if st.HasWavelength {
		if err := s.xtal.SetWavelength(st.Wavelength); err != nil {
			return err
		}
		if err := s.det.SetWavelength(st.Wavelength); err != nil {
			return err
		}
	}
	if st.HasRlpSize {
		if err := s.xtal.SetRlpHalfWidth(st.RlpSize); err != nil {
			return err
		}
	}
	s.moved()
	if st.HasUnitCell {
		return s.xtal.SetUnitCellMatrix(st.UnitCell)
	}
	return s.xtal.Populate()
}

// Restore applies the rows present in st and regenerates. On failure the
// session is left as it was.
func (s *Session) Restore(st *project.State) error {
	if err := checkState(st); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.snapshotLocked()
	err := s.applyLocked(st)
	if err != nil {
		if rerr := s.applyLocked(prev); rerr != nil {
			s.logger.Error("restoring previous state failed", zap.Error(rerr))
		}
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Emit(EventStateLoaded, st)
	s.Emit(EventGeometryChanged, nil)
	s.Emit(EventReflectionsChanged, nil)
	return nil
}

// SaveState writes the session to a state file.
func (s *Session) SaveState(path string) error {
	if err := s.Snapshot().Save(path); err != nil {
		return fmt.Errorf("app: save state: %w", err)
	}
	s.logger.Info("state saved", zap.String("path", path))
	return nil
}

// LoadState reads a state file and restores it. A malformed file changes
// nothing.
func (s *Session) LoadState(path string) error {
	st, err := project.Load(path)
	if err != nil {
		return fmt.Errorf("app: load state: %w", err)
	}
	if err := s.Restore(st); err != nil {
		return fmt.Errorf("app: load state %s: %w", path, err)
	}
	s.logger.Info("state loaded", zap.String("path", path))
	return nil
}
