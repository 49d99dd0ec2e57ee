package detector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mandexing/internal/crystal"
	"mandexing/pkg/geometry"
)

func spot(x, y float64) crystal.Reflection {
	return crystal.Reflection{
		Screen:    geometry.Vec3{X: x, Y: y, Z: DefaultDistance},
		Projected: true,
		OnImage:   true,
	}
}

func randomSpots(rng *rand.Rand, n int, size float64) []crystal.Reflection {
	refls := make([]crystal.Reflection, n)
	for i := range refls {
		refls[i] = spot(rng.Float64()*size, rng.Float64()*size)
	}
	return refls
}

func TestProjectPoint(t *testing.T) {
	d := New(WithDistance(200))

	pos, ok := d.ProjectPoint(geometry.Vec3{})
	require.True(t, ok)
	assert.InDelta(t, 0, pos.X, 1e-12)
	assert.InDelta(t, 200, pos.Z, 1e-12)

	pos, ok = d.ProjectPoint(geometry.Vec3{X: 0.1})
	require.True(t, ok)
	assert.InDelta(t, 20, pos.X, 1e-12)
	assert.InDelta(t, 0, pos.Y, 1e-12)

	// scattered sideways or backwards
	_, ok = d.ProjectPoint(geometry.Vec3{X: 1, Z: -1})
	assert.False(t, ok)
	_, ok = d.ProjectPoint(geometry.Vec3{Z: -1.5})
	assert.False(t, ok)
}

func TestProject_WritesScreenOnly(t *testing.T) {
	xtal := crystal.New()
	require.NoError(t, xtal.SetRlpHalfWidth(0.01))
	require.NoError(t, xtal.SetUnitCell(geometry.CellParams{10, 10, 10, 90, 90, 90}))
	before := xtal.Reflections()

	d := New(WithDistance(100))
	d.Project(xtal)

	id, ok := xtal.FindHKL(1, 0, 0)
	require.True(t, ok)
	r, err := xtal.Reflection(id)
	require.NoError(t, err)
	assert.True(t, r.Projected)
	assert.InDelta(t, 10, r.Screen.X, 1e-9)
	assert.InDelta(t, 100, r.Screen.Z, 1e-9)

	for i, after := range xtal.Reflections() {
		assert.Equal(t, before[i].Weight, after.Weight)
		assert.Equal(t, before[i].OnImage, after.OnImage)
	}
}

func TestGeometrySetters(t *testing.T) {
	d := New(WithBeamCentre(512, 500))
	d.AdjustBeamCentre(-2, 3)
	assert.Equal(t, geometry.Vec3{X: 510, Y: 503, Z: DefaultDistance}, d.BeamCentre())

	assert.ErrorIs(t, d.SetDistance(0), ErrInvalidGeometry)
	assert.ErrorIs(t, d.SetWavelength(-1), ErrInvalidGeometry)
	assert.NoError(t, d.SetDistance(250))
	assert.Equal(t, 250.0, d.Distance())

	p := d.FromDetector(520, 500)
	assert.Equal(t, geometry.Point2D{X: 10, Y: -3}, p)
	assert.Equal(t, geometry.Point2D{X: 520, Y: 500}, d.ToDetector(p.X, p.Y))
}

func TestQuery_ExactPositions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	refls := randomSpots(rng, 500, 100)
	tree := BuildIndex(refls, DefaultIndexOptions())

	require.Equal(t, 500, tree.Len())
	assert.Greater(t, tree.NodeCount(), 1)
	for i, r := range refls {
		got, ok := tree.Query(r.Screen.X, r.Screen.Y)
		require.True(t, ok, "spot %d", i)
		assert.Equal(t, i, got)
	}
}

func TestQuery_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	refls := randomSpots(rng, 800, 100)
	// a few clustered and off-image spots
	for i := 0; i < 30; i++ {
		refls = append(refls, spot(50+rng.Float64()*0.5, 50+rng.Float64()*0.5))
	}
	hidden := spot(10, 10)
	hidden.OnImage = false
	refls = append(refls, hidden)

	opts := DefaultIndexOptions()
	tree := BuildIndex(refls, opts)

	for i := 0; i < 5000; i++ {
		x := rng.Float64()*120 - 10
		y := rng.Float64()*120 - 10
		wantID, wantOK := LinearScan(refls, x, y, opts.Tolerance)
		gotID, gotOK := tree.Query(x, y)
		require.Equal(t, wantOK, gotOK, "query (%g, %g)", x, y)
		require.Equal(t, wantID, gotID, "query (%g, %g)", x, y)
	}
}

func TestQuery_NoMatch(t *testing.T) {
	empty := BuildIndex(nil, DefaultIndexOptions())
	id, ok := empty.Query(0, 0)
	assert.False(t, ok)
	assert.Equal(t, -1, id)

	tree := BuildIndex([]crystal.Reflection{spot(0, 0), spot(100, 100)}, DefaultIndexOptions())
	id, ok = tree.Query(50, 50)
	assert.False(t, ok)
	assert.Equal(t, -1, id)

	// just outside the bounds but inside the tolerance
	id, ok = tree.Query(-4, 2)
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestQuery_SkipsHiddenReflections(t *testing.T) {
	off := spot(5, 5)
	off.OnImage = false
	missed := spot(5, 5)
	missed.Projected = false

	tree := BuildIndex([]crystal.Reflection{off, missed, spot(7, 5)}, DefaultIndexOptions())
	assert.Equal(t, 1, tree.Len())

	id, ok := tree.Query(5, 5)
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestQuery_NearestAndTies(t *testing.T) {
	refls := []crystal.Reflection{spot(4, 0), spot(1, 1), spot(1, 1), spot(-1, -1)}
	tree := BuildIndex(refls, DefaultIndexOptions())

	id, ok := tree.Query(1.2, 1)
	require.True(t, ok)
	assert.Equal(t, 1, id)

	id, ok = tree.Query(3.5, 0)
	require.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestBuildIndex_DegenerateSets(t *testing.T) {
	same := make([]crystal.Reflection, 50)
	for i := range same {
		same[i] = spot(3, 3)
	}
	tree := BuildIndex(same, DefaultIndexOptions())
	assert.Equal(t, 1, tree.NodeCount())
	assert.Equal(t, 0, tree.Depth())
	id, ok := tree.Query(3, 3)
	require.True(t, ok)
	assert.Equal(t, 0, id)

	line := make([]crystal.Reflection, 200)
	for i := range line {
		line[i] = spot(float64(i), 10)
	}
	tree = BuildIndex(line, DefaultIndexOptions())
	for _, x := range []float64{0, 17.2, 99.5, 150, 199, 203} {
		want, wantOK := LinearScan(line, x, 12, DefaultTolerance)
		got, gotOK := tree.Query(x, 12)
		assert.Equal(t, wantOK, gotOK)
		assert.Equal(t, want, got)
	}
}

func TestBuildIndex_DepthBound(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	refls := randomSpots(rng, 2000, 1000)

	opts := DefaultIndexOptions()
	opts.MaxDepth = 2
	tree := BuildIndex(refls, opts)
	assert.LessOrEqual(t, tree.Depth(), 2)
	assert.LessOrEqual(t, tree.NodeCount(), 1+4+16)

	for i := 0; i < 200; i++ {
		r := refls[rng.Intn(len(refls))]
		got, ok := tree.Query(r.Screen.X, r.Screen.Y)
		require.True(t, ok)
		assert.InDelta(t, 0, refls[got].Screen.XY().Distance(r.Screen.XY()), 1e-12)
	}
}

func TestLookup_NearestAt(t *testing.T) {
	xtal := crystal.New()
	require.NoError(t, xtal.SetRlpHalfWidth(0.01))
	require.NoError(t, xtal.SetUnitCell(geometry.CellParams{40, 50, 60, 90, 95, 90}))
	xtal.ApplyRotation(0.3, 0.2, 0.1)

	d := New(WithBeamCentre(1024, 1024), WithDistance(800))
	lookup := NewLookup(xtal, d, DefaultIndexOptions())
	require.NotZero(t, lookup.Tree().Len())

	for i, r := range xtal.Reflections() {
		if !r.OnImage || !r.Projected {
			continue
		}
		abs := d.ToDetector(r.Screen.X, r.Screen.Y)
		got, ok := lookup.NearestAt(abs.X, abs.Y)
		require.True(t, ok, "reflection %d", i)
		hit, ok := lookup.Reflection(got)
		require.True(t, ok)
		assert.InDelta(t, 0, hit.Screen.XY().Distance(r.Screen.XY()), 1e-9)
	}

	_, ok := lookup.NearestAt(math.Inf(1), 0)
	assert.False(t, ok)
	_, ok = lookup.Reflection(-1)
	assert.False(t, ok)
}
