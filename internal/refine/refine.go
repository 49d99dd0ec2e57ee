// Package refine polishes a crystal orientation by minimising the mean
// Ewald-sphere distance of the watched reflections over the horizontal and
// vertical nudge angles.
package refine

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"mandexing/internal/crystal"
)

// Defaults.
const (
	DefaultCycles = 15
	DefaultStep   = 0.002 // radians, initial simplex size
	DefaultBound  = 0.05  // radians each way
)

// ErrNothingWatched is returned when no reflection is watched, so there is
// nothing to score.
var ErrNothingWatched = errors.New("refine: no watched reflections")

// Result summarises one refinement.
type Result struct {
	Horizontal   float64
	Vertical     float64
	InitialScore float64
	FinalScore   float64
	Iterations   int
	Evaluations  int
}

// Refiner runs a bounded Nelder–Mead search over the nudge angles.
type Refiner struct {
	cycles int
	step   float64
	bound  float64
	logger *zap.Logger
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithCycles sets the major iteration budget.
func WithCycles(n int) Option {
	return func(r *Refiner) {
		if n > 0 {
			r.cycles = n
		}
	}
}

// WithStep sets the initial simplex size in radians.
func WithStep(step float64) Option {
	return func(r *Refiner) {
		if step > 0 {
			r.step = step
		}
	}
}

// WithBound limits each angle to ±bound radians.
func WithBound(bound float64) Option {
	return func(r *Refiner) {
		if bound > 0 {
			r.bound = bound
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refiner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a refiner with the defaults.
func New(opts ...Option) *Refiner {
	r := &Refiner{
		cycles: DefaultCycles,
		step:   DefaultStep,
		bound:  DefaultBound,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refine minimises xtal's objective over its nudge, then folds the best
// nudge into the rotation, which also clears the watched flags. It blocks
// until the cycle budget is spent or the search converges.
func (r *Refiner) Refine(xtal *crystal.Crystal) (Result, error) {
	if xtal.WatchedCount() == 0 {
		return Result{}, ErrNothingWatched
	}

	h0, v0 := xtal.Horizontal(), xtal.Vertical()
	initial := xtal.ObjectiveScore()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xtal.SetNudge(x[0], x[1])
			return xtal.ObjectiveScore() + r.penalty(x)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: r.cycles,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: r.cycles,
		},
	}

	r.logger.Info("refining orientation",
		zap.Int("watched", xtal.WatchedCount()),
		zap.Float64("score", initial),
		zap.Int("cycles", r.cycles))

	res, err := optimize.Minimize(problem, []float64{h0, v0}, settings, &optimize.NelderMead{SimplexSize: r.step})
	if res == nil {
		xtal.SetNudge(h0, v0)
		xtal.Rescore()
		return Result{}, fmt.Errorf("refine: minimize: %w", err)
	}
	if err != nil {
		r.logger.Warn("minimizer stopped early", zap.Error(err), zap.Stringer("status", res.Status))
	}

	best := []float64{h0, v0}
	if res.F <= initial && r.penalty(res.X) == 0 {
		best = res.X
	}
	xtal.SetNudge(best[0], best[1])
	final := xtal.ObjectiveScore()

	out := Result{
		Horizontal:   best[0],
		Vertical:     best[1],
		InitialScore: initial,
		FinalScore:   final,
		Iterations:   res.Stats.MajorIterations,
		Evaluations:  res.Stats.FuncEvaluations,
	}

	xtal.FoldNudge()

	r.logger.Info("refinement finished",
		zap.Float64("horizontal", out.Horizontal),
		zap.Float64("vertical", out.Vertical),
		zap.Float64("initial", out.InitialScore),
		zap.Float64("final", out.FinalScore),
		zap.Int("evaluations", out.Evaluations))
	return out, nil
}

// penalty grows linearly once an angle leaves ±bound. Weights never exceed
// 1, so any out-of-bounds point scores worse than every in-bounds one.
func (r *Refiner) penalty(x []float64) float64 {
	var p float64
	for _, v := range x {
		if excess := math.Abs(v) - r.bound; excess > 0 {
			p += 1 + excess
		}
	}
	return p
}
