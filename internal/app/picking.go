package app

import (
	"go.uber.org/zap"

	"mandexing/internal/crystal"
	"mandexing/internal/refine"
)

// BeginRefine enters the pick stage: watched flags are cleared and the pick
// index is built for the current orientation.
func (s *Session) BeginRefine() {
	_ = s.update(func() error {
		s.xtal.ClearWatched()
		s.moved()
		s.ensureLookup()
		s.setStage(StageRefine)
		return nil
	}, EventStageChanged, EventWatchChanged)
}

// PickAt toggles the watched flag of the reflection nearest to the detector
// pixel (x, y). hit is false when nothing is within the pick tolerance.
func (s *Session) PickAt(x, y float64) (refl crystal.Reflection, hit bool, err error) {
	err = s.update(func() error {
		if s.stage != StageRefine {
			return ErrWrongStage
		}
		id, ok := s.ensureLookup().NearestAt(x, y)
		if !ok {
			s.logger.Debug("pick missed", zap.Float64("x", x), zap.Float64("y", y))
			return nil
		}
		if err := s.xtal.ToggleWatched(id); err != nil {
			return err
		}
		refl, err = s.xtal.Reflection(id)
		if err != nil {
			return err
		}
		hit = true
		s.logger.Debug("pick",
			zap.Stringer("hkl", refl),
			zap.Bool("watched", refl.Watched))
		return nil
	})
	if err == nil && hit {
		s.Emit(EventWatchChanged, refl)
	}
	return refl, hit, err
}

// FinishRefine leaves the pick stage and refines against the picked
// reflections. With nothing picked it just cancels and returns
// refine.ErrNothingWatched.
func (s *Session) FinishRefine() (refine.Result, error) {
	s.mu.Lock()
	if s.stage != StageRefine {
		s.mu.Unlock()
		return refine.Result{}, ErrWrongStage
	}
	s.setStage(StageIdle)
	res, err := s.refineLocked()
	s.mu.Unlock()

	s.Emit(EventStageChanged, nil)
	if err != nil {
		return res, err
	}
	s.Emit(EventRefined, res)
	s.Emit(EventRotationChanged, nil)
	return res, nil
}

// CancelRefine leaves the pick stage without refining.
func (s *Session) CancelRefine() {
	_ = s.update(func() error {
		if s.stage == StageRefine {
			s.setStage(StageIdle)
			s.xtal.ClearWatched()
		}
		return nil
	}, EventStageChanged, EventWatchChanged)
}

// WatchHKL marks the predicted reflection h k l as watched, for scripted
// refinement without pointer picks.
func (s *Session) WatchHKL(h, k, l int) error {
	return s.update(func() error {
		id, ok := s.xtal.FindHKL(h, k, l)
		if !ok {
			return ErrNotPredicted
		}
		return s.xtal.SetWatched(id, true)
	}, EventWatchChanged)
}

// WatchedCount returns how many reflections are watched.
func (s *Session) WatchedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.xtal.WatchedCount()
}

// Refine runs the refiner against whatever is watched, outside the pick
// stage.
func (s *Session) Refine() (refine.Result, error) {
	s.mu.Lock()
	res, err := s.refineLocked()
	s.mu.Unlock()
	if err != nil {
		return res, err
	}
	s.Emit(EventRefined, res)
	s.Emit(EventRotationChanged, nil)
	return res, nil
}

func (s *Session) refineLocked() (refine.Result, error) {
	defer s.moved()
	res, err := s.refiner.Refine(s.xtal)
	if err != nil {
		s.xtal.ClearWatched()
		return res, err
	}
	return res, nil
}

// IdentifyAt returns the hkl of the reflection nearest to the detector
// pixel (x, y).
func (s *Session) IdentifyAt(x, y float64) ([3]int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.ensureLookup()
	id, ok := l.NearestAt(x, y)
	if !ok {
		return [3]int{}, false
	}
	r, _ := l.Reflection(id)
	s.logger.Info("identified reflection", zap.Stringer("hkl", r))
	return r.HKL, true
}
