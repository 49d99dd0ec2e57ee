package crystal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mandexing/pkg/geometry"
)

// newCubic returns a populated 10 Å cubic crystal at λ = 1 Å, d = 2 Å.
func newCubic(t *testing.T, lattice Lattice, rlp float64) *Crystal {
	t.Helper()
	c := New()
	require.NoError(t, c.SetLattice(lattice))
	require.NoError(t, c.SetResolution(2.0))
	require.NoError(t, c.SetWavelength(1.0))
	require.NoError(t, c.SetRlpHalfWidth(rlp))
	require.NoError(t, c.SetUnitCell(geometry.CellParams{10, 10, 10, 90, 90, 90}))
	return c
}

func hklVec(r Reflection) geometry.Vec3 {
	return geometry.Vec3{X: float64(r.HKL[0]), Y: float64(r.HKL[1]), Z: float64(r.HKL[2])}
}

func TestLattice_Absent(t *testing.T) {
	cases := []struct {
		lattice Lattice
		hkl     [3]int
		absent  bool
	}{
		{Primitive, [3]int{1, 0, 0}, false},
		{Primitive, [3]int{1, 1, 1}, false},
		{BodyCentred, [3]int{1, 0, 0}, true},
		{BodyCentred, [3]int{1, 1, 0}, false},
		{BodyCentred, [3]int{-1, 0, 0}, true},
		{FaceCentred, [3]int{1, 1, 1}, false},
		{FaceCentred, [3]int{2, 0, 0}, false},
		{FaceCentred, [3]int{1, 1, 0}, true},
		{FaceCentred, [3]int{-1, 1, -1}, false},
		{BaseCentred, [3]int{1, 0, 5}, true},
		{BaseCentred, [3]int{1, 1, 5}, false},
		{BaseCentred, [3]int{-3, 1, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.lattice.String(), func(t *testing.T) {
			assert.Equal(t, tc.absent, tc.lattice.Absent(tc.hkl[0], tc.hkl[1], tc.hkl[2]), "hkl %v", tc.hkl)
		})
	}
}

func TestParseLattice(t *testing.T) {
	for in, want := range map[string]Lattice{"P": Primitive, "i": BodyCentred, "face": FaceCentred, " C ": BaseCentred} {
		got, err := ParseLattice(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLattice("R")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPopulate_SystematicAbsences(t *testing.T) {
	for _, lattice := range []Lattice{Primitive, BodyCentred, FaceCentred, BaseCentred} {
		t.Run(lattice.String(), func(t *testing.T) {
			c := newCubic(t, lattice, 0.2)
			require.NotZero(t, c.Count())

			for _, r := range c.Reflections() {
				h, k, l := r.HKL[0], r.HKL[1], r.HKL[2]
				switch lattice {
				case BodyCentred:
					assert.True(t, even(h+k+l), "%v", r.HKL)
				case FaceCentred:
					assert.True(t, even(h+k) && even(k+l) && even(l+h), "%v", r.HKL)
				case BaseCentred:
					assert.True(t, even(h+k), "%v", r.HKL)
				}
			}
		})
	}

	// primitive keeps what the centred lattices drop
	p := newCubic(t, Primitive, 0.2)
	_, found := p.FindHKL(1, 0, 0)
	assert.True(t, found)
	i := newCubic(t, BodyCentred, 0.2)
	_, found = i.FindHKL(1, 0, 0)
	assert.False(t, found)
}

func TestPopulate_ResolutionCutoff(t *testing.T) {
	c := newCubic(t, Primitive, 0.2)
	for _, r := range c.Reflections() {
		assert.LessOrEqual(t, c.UnitCell().MulVec(hklVec(r)).Length(), 0.5+1e-12, "%v", r.HKL)
		for _, idx := range r.HKL {
			assert.LessOrEqual(t, idx, 5)
			assert.GreaterOrEqual(t, idx, -5)
		}
	}
}

func TestPopulate_CubicExample(t *testing.T) {
	c := newCubic(t, Primitive, 0.01)

	id, found := c.FindHKL(1, 0, 0)
	require.True(t, found)
	r, err := c.Reflection(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, c.UnitCell().MulVec(hklVec(r)).Length(), 1e-12)
	assert.True(t, r.OnImage)
	assert.InDelta(t, (math.Sqrt(1.01)-1)/0.01, r.Weight, 1e-9)

	assert.InDelta(t, 0.6, c.UnitCell().MulVec(geometry.Vec3{X: 6}).Length(), 1e-12)
	_, found = c.FindHKL(6, 0, 0)
	assert.False(t, found)
}

func TestPopulate_UniqueHKL(t *testing.T) {
	c := newCubic(t, Primitive, 0.2)
	seen := make(map[[3]int]bool)
	for _, r := range c.Reflections() {
		assert.False(t, seen[r.HKL], "duplicate %v", r.HKL)
		seen[r.HKL] = true
	}
}

func TestPopulate_BufferKeepsNearbyReflections(t *testing.T) {
	c := newCubic(t, Primitive, 0.01)

	onImage := 0
	for _, r := range c.Reflections() {
		if r.OnImage {
			onImage++
		}
	}
	// the buffer holds reflections outside the scoring shell too
	assert.Less(t, onImage, c.Count())

	narrow := New(WithBufferFactor(0))
	require.NoError(t, narrow.SetRlpHalfWidth(0.01))
	require.NoError(t, narrow.SetUnitCell(geometry.CellParams{10, 10, 10, 90, 90, 90}))
	for _, r := range narrow.Reflections() {
		assert.True(t, r.OnImage, "%v", r.HKL)
	}
	assert.Equal(t, onImage, narrow.Count())
}

func TestPopulate_SearchTooLarge(t *testing.T) {
	c := New(WithMaxSearchVolume(10))
	err := c.SetUnitCell(geometry.CellParams{10, 10, 10, 90, 90, 90})
	assert.ErrorIs(t, err, ErrSearchTooLarge)
}

func TestSetUnitCell_SearchTooLargeKeepsCell(t *testing.T) {
	c := New(WithMaxSearchVolume(5000))
	require.NoError(t, c.SetUnitCell(geometry.CellParams{10, 10, 10, 90, 90, 90}))
	cell, rec := c.CellParams(), c.UnitCell()
	before := c.Reflections()

	err := c.SetUnitCell(geometry.CellParams{100, 100, 100, 90, 90, 90})
	assert.ErrorIs(t, err, ErrSearchTooLarge)
	assert.Equal(t, cell, c.CellParams())
	assert.Equal(t, rec, c.UnitCell())

	big, err := geometry.CellParams{100, 100, 100, 90, 90, 90}.Reciprocal()
	require.NoError(t, err)
	assert.ErrorIs(t, c.SetUnitCellMatrix(big), ErrSearchTooLarge)
	assert.Equal(t, rec, c.UnitCell())

	c.Rescore()
	assert.Equal(t, before, c.Reflections())
}

func TestPopulate_ClearsWatched(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	require.NoError(t, c.SetWatched(0, true))
	require.NoError(t, c.Populate())
	assert.Zero(t, c.WatchedCount())
}

func TestRescore_WeightBounds(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	c.ApplyRotation(0.1, -0.2, 0.3)

	radius := 1 / c.Wavelength()
	sample := geometry.Vec3{Z: -radius}
	for _, r := range c.Reflections() {
		if !r.OnImage {
			continue
		}
		assert.GreaterOrEqual(t, r.Weight, 0.0)
		assert.LessOrEqual(t, r.Weight, 1.0)
		if r.Weight == 0 {
			assert.Equal(t, radius, r.Miller.Sub(sample).Length())
		}
	}

	// the direct beam lies on the sphere exactly
	id, found := c.FindHKL(0, 0, 0)
	require.True(t, found)
	origin, _ := c.Reflection(id)
	assert.True(t, origin.OnImage)
	assert.Equal(t, 0.0, origin.Weight)
}

func TestRescore_Idempotent(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	c.SetNudge(0.01, -0.004)
	c.Rescore()
	first := c.Reflections()
	c.Rescore()
	assert.Equal(t, first, c.Reflections())
}

func TestRescore_KeepsHKLSet(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	before := c.Reflections()
	c.ApplyRotation(0.02, 0.01, 0.5)
	after := c.Reflections()

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].HKL, after[i].HKL)
	}
}

func TestCloseness(t *testing.T) {
	assert.Equal(t, 0.0, closeness(1, 1, 0.01))
	assert.InDelta(t, 0.5, closeness(1.005, 1, 0.01), 1e-9)
	assert.Equal(t, 1.0, closeness(1.5, 1, 0.01))
	assert.Equal(t, 1.0, closeness(1.5, 1, 0))
	assert.Equal(t, 0.0, closeness(1, 1, 0))
}

func TestNudge_IsRotation(t *testing.T) {
	c := New()
	assert.True(t, c.Nudge(0.1, -0.3, 0.7).IsRotation(1e-12))
	assert.True(t, c.Nudge(0, 0, 0).ApproxEqual(geometry.Identity(), 0))

	require.NoError(t, c.SetFixedAxis(geometry.NewVec3(1, 1, 0)))
	assert.True(t, c.Nudge(0.1, -0.3, 0.7).IsRotation(1e-12))
}

func TestNudge_FixedAxisInvariant(t *testing.T) {
	c := New()
	axis := geometry.NewVec3(3, 4, 0)
	require.NoError(t, c.SetFixedAxis(axis))

	got := c.Nudge(0, 0.3, 0).MulVec(axis)
	assert.InDelta(t, axis.X, got.X, 1e-12)
	assert.InDelta(t, axis.Y, got.Y, 1e-12)
	assert.InDelta(t, axis.Z, got.Z, 1e-12)

	fixed, ok := c.FixedAxis()
	assert.True(t, ok)
	assert.InDelta(t, 1.0, fixed.Length(), 1e-12)

	c.ClearFixedAxis()
	_, ok = c.FixedAxis()
	assert.False(t, ok)
}

func TestSetFixedAxis_Degenerate(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.SetFixedAxis(geometry.Vec3{}), ErrDegenerateAxis)
	assert.ErrorIs(t, c.SetFixedAxis(geometry.NewVec3(0, 0, 2)), ErrDegenerateAxis)
	_, ok := c.FixedAxis()
	assert.False(t, ok)
}

func TestApplyRotation_Composes(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	start := c.Rotation()
	c.ApplyRotation(0.05, 0, 0)
	c.ApplyRotation(-0.05, 0, 0)
	assert.True(t, c.Rotation().ApproxEqual(start, 1e-12))
}

func TestFoldNudge(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	start := c.Rotation()
	require.NoError(t, c.SetWatched(1, true))

	c.SetNudge(0.01, 0.02)
	c.Rescore()
	want := c.Nudge(0.01, 0.02, 0).Mul(start)
	nudged := c.Reflections()

	c.FoldNudge()
	assert.True(t, c.Rotation().ApproxEqual(want, 1e-15))
	assert.Zero(t, c.Horizontal())
	assert.Zero(t, c.Vertical())
	assert.Zero(t, c.WatchedCount())

	// positions are unchanged by moving the nudge into the rotation
	for i, r := range c.Reflections() {
		assert.InDelta(t, nudged[i].Miller.X, r.Miller.X, 1e-12)
		assert.InDelta(t, nudged[i].Miller.Z, r.Miller.Z, 1e-12)
	}
}

func TestObjectiveScore(t *testing.T) {
	c := New()
	assert.Equal(t, 0.0, c.ObjectiveScore())

	c = newCubic(t, Primitive, 0.05)
	assert.Equal(t, 0.0, c.ObjectiveScore())

	var ids []int
	for i, r := range c.Reflections() {
		if r.OnImage && len(ids) < 3 {
			ids = append(ids, i)
		}
	}
	require.Len(t, ids, 3)

	var want float64
	for _, id := range ids {
		require.NoError(t, c.ToggleWatched(id))
		r, _ := c.Reflection(id)
		want += r.Weight
	}
	assert.InDelta(t, want/3, c.ObjectiveScore(), 1e-12)
	assert.Equal(t, 3, c.WatchedCount())
}

func TestBringAxisToScreen_SingleAxis(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	require.NoError(t, c.BringAxisToScreen([3]float64{0, 1, 1}, nil))

	dir, err := c.Rotation().Mul(c.UnitCell()).MulVec(geometry.NewVec3(0, 1, 1)).Unit()
	require.NoError(t, err)
	assert.InDelta(t, 1, dir.X, 1e-12)
	assert.True(t, c.Rotation().IsRotation(1e-12))
}

func TestBringAxisToScreen_TwoAxes(t *testing.T) {
	c := New()
	require.NoError(t, c.SetUnitCell(geometry.CellParams{79.2, 79.2, 38.0, 90, 90, 120}))

	second := [3]float64{0, 1, 0}
	require.NoError(t, c.BringAxisToScreen([3]float64{1, 0, 0}, &second))

	m := c.Rotation().Mul(c.UnitCell())
	first, _ := m.MulVec(geometry.NewVec3(1, 0, 0)).Unit()
	other, _ := m.MulVec(geometry.NewVec3(0, 1, 0)).Unit()

	assert.InDelta(t, 1, first.X, 1e-12)
	// the second axis now lies in the screen plane at its true angle (60° for a*, b*)
	assert.InDelta(t, 0, other.Z, 1e-12)
	ang, err := first.Angle(other)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/3, ang, 1e-9)
}

func TestBringAxisToScreen_Degenerate(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	before := c.Rotation()

	assert.ErrorIs(t, c.BringAxisToScreen([3]float64{0, 0, 0}, nil), ErrDegenerateAxis)
	parallel := [3]float64{2, 0, 0}
	assert.ErrorIs(t, c.BringAxisToScreen([3]float64{1, 0, 0}, &parallel), ErrDegenerateAxis)
	assert.Equal(t, before, c.Rotation())
}

func TestSetters_RejectInvalid(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)

	assert.ErrorIs(t, c.SetWavelength(0), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetWavelength(-1), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetResolution(0), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetResolution(math.NaN()), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetRlpHalfWidth(-0.1), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetLattice(Lattice(9)), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetUnitCell(geometry.CellParams{0, 1, 1, 90, 90, 90}), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetUnitCellMatrix(geometry.Mat3{}), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetRotation(geometry.Diag(1, 1, 2)), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetRotation(geometry.Mat3{math.NaN(), 0, 0, 0, 1, 0, 0, 0, 1}), ErrInvalidParameter)

	assert.Equal(t, 1.0, c.Wavelength())
	assert.Equal(t, 2.0, c.Resolution())
	assert.Equal(t, 0.05, c.RlpHalfWidth())
	assert.Equal(t, geometry.CellParams{10, 10, 10, 90, 90, 90}, c.CellParams())
	assert.Equal(t, geometry.Identity(), c.Rotation())
}

func TestSetUnitCellMatrix_MatchesParams(t *testing.T) {
	byParams := newCubic(t, Primitive, 0.05)

	byMatrix := New()
	require.NoError(t, byMatrix.SetRlpHalfWidth(0.05))
	require.NoError(t, byMatrix.SetUnitCellMatrix(byParams.UnitCell()))

	assert.Equal(t, byParams.Count(), byMatrix.Count())
	got := byMatrix.CellParams()
	assert.InDeltaSlice(t, []float64{10, 10, 10, 90, 90, 90}, got[:], 1e-9)
}

func TestReflectionIndex_OutOfRange(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	n := c.Count()

	_, err := c.Reflection(n)
	assert.ErrorIs(t, err, ErrReflectionIndex)
	assert.ErrorIs(t, c.ToggleWatched(-1), ErrReflectionIndex)
	assert.ErrorIs(t, c.SetWatched(n, true), ErrReflectionIndex)
	assert.ErrorIs(t, c.SetScreenPosition(n, geometry.Vec3{}, true), ErrReflectionIndex)
}

func TestRealSpaceAxes(t *testing.T) {
	c := newCubic(t, Primitive, 0.05)
	axes, err := c.RealSpaceAxes()
	require.NoError(t, err)
	assert.True(t, axes.ApproxEqual(geometry.Diag(10, 10, 10), 1e-9))
}

func TestPopulate_Logs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := New(WithLogger(zap.New(core)))
	require.NoError(t, c.SetUnitCell(geometry.CellParams{10, 10, 10, 90, 90, 90}))

	found := logs.FilterMessage("found reflections").All()
	require.Len(t, found, 1)
	assert.Equal(t, int64(c.Count()), found[0].ContextMap()["count"])
}
