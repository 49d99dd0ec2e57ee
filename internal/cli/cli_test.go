package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mandexing/internal/app"
	"mandexing/internal/config"
	dimage "mandexing/internal/image"
	"mandexing/internal/project"
	"mandexing/internal/version"
	"mandexing/pkg/geometry"
)

const testConfig = `crystal:
  cell: [10, 10, 10, 90, 90, 90]
  wavelength: 1.0
  rlp_size: 0.02
  resolution: 2.0
detector:
  distance: 500
  beam_x: 512
  beam_y: 512
log:
  level: error
`

// fixture writes a config and a matching state file into a temp dir.
func fixture(t *testing.T) (cfgPath, statePath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "mandex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))

	cell, err := geometry.CellParams{10, 10, 10, 90, 90, 90}.Reciprocal()
	require.NoError(t, err)
	st := &project.State{
		Rotation:      geometry.Identity(),
		UnitCell:      cell,
		DetCentre:     geometry.Vec3{X: 100, Y: 100, Z: 500},
		Wavelength:    1,
		RlpSize:       0.02,
		HasRotation:   true,
		HasUnitCell:   true,
		HasDetCentre:  true,
		HasWavelength: true,
		HasRlpSize:    true,
	}
	statePath = filepath.Join(dir, "matrix.dat")
	require.NoError(t, st.Save(statePath))
	return cfgPath, statePath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func predictJSON(t *testing.T, args ...string) PredictReport {
	t.Helper()
	out, err := run(t, append([]string{"predict", "-o", "json"}, args...)...)
	require.NoError(t, err)
	var report PredictReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	return report
}

// nearSphere returns up to n predicted hkl triples with small weight.
func nearSphere(report PredictReport, n int) []Prediction {
	var out []Prediction
	for _, p := range report.Predictions {
		if p.HKL != [3]int{} && p.Weight < 0.5 {
			out = append(out, p)
		}
		if len(out) == n {
			break
		}
	}
	return out
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestPredict_JSON(t *testing.T) {
	cfg, state := fixture(t)
	report := predictJSON(t, "-c", cfg, "--state", state)

	require.NotEmpty(t, report.Predictions)
	assert.Equal(t, geometry.Vec3{X: 100, Y: 100, Z: 500}, report.BeamCentre)
	assert.Equal(t, geometry.Identity(), report.Rotation)
	for _, p := range report.Predictions {
		assert.True(t, p.OnImage)
		assert.GreaterOrEqual(t, p.Weight, 0.0)
		assert.LessOrEqual(t, p.Weight, 1.0)
	}

	all := predictJSON(t, "-c", cfg, "--state", state, "--all")
	assert.Greater(t, len(all.Predictions), len(report.Predictions))
}

func TestPredict_Overrides(t *testing.T) {
	cfg, state := fixture(t)

	report := predictJSON(t, "-c", cfg, "--state", state, "--axis", "0 0 1")
	assert.True(t, report.Rotation.IsRotation(1e-9))
	assert.NotEqual(t, geometry.Identity(), report.Rotation)

	coarse := predictJSON(t, "-c", cfg, "--state", state, "--resolution", "4")
	fine := predictJSON(t, "-c", cfg, "--state", state)
	assert.Less(t, len(coarse.Predictions), len(fine.Predictions))

	centred := predictJSON(t, "-c", cfg, "--state", state, "--lattice", "F")
	for _, p := range centred.Predictions {
		h, k, l := p.HKL[0], p.HKL[1], p.HKL[2]
		assert.True(t, (h+k)%2 == 0 && (k+l)%2 == 0, "%v", p.HKL)
	}

	bigger := predictJSON(t, "-c", cfg, "--state", state, "--cell", "20 20 20 90 90 90")
	assert.Greater(t, len(bigger.Predictions), len(fine.Predictions))
}

func TestPredict_Errors(t *testing.T) {
	cfg, state := fixture(t)

	cases := map[string][]string{
		"format":     {"-o", "yaml"},
		"cell count": {"--cell", "10 10 10"},
		"cell value": {"--cell", "10 10 x 90 90 90"},
		"lattice":    {"--lattice", "Q"},
		"resolution": {"--resolution", "-2"},
		"axis":       {"--axis", "1 2"},
		"zero axis":  {"--axis", "0 0 0"},
		"too many":   {"--axis", "1 0 0; 0 1 0; 0 0 1"},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			args := append([]string{"predict", "-c", cfg, "--state", state}, extra...)
			_, err := run(t, args...)
			assert.Error(t, err)
		})
	}

	_, err := run(t, "predict", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPredict_TextAndTable(t *testing.T) {
	cfg, state := fixture(t)

	out, err := run(t, "predict", "-c", cfg, "--state", state)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "rotation 1 0 0 0 1 0 0 0 1\n"))
	assert.Contains(t, out, "det_centre 100 100 500\n")

	out, err = run(t, "predict", "-c", cfg, "--state", state, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(out), "WEIGHT")
}

func TestRefine(t *testing.T) {
	cfg, state := fixture(t)
	picks := nearSphere(predictJSON(t, "-c", cfg, "--state", state), 5)
	require.Len(t, picks, 5)

	var watch []string
	for _, p := range picks {
		watch = append(watch, fmt.Sprintf("%d %d %d", p.HKL[0], p.HKL[1], p.HKL[2]))
	}
	written := filepath.Join(t.TempDir(), "refined.dat")

	out, err := run(t, "refine", "-c", cfg, "--state", state,
		"--watch", strings.Join(watch, "; "), "--write", written, "-o", "json")
	require.NoError(t, err)

	var report RefineReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Watched, 5)
	assert.LessOrEqual(t, report.FinalScore, report.InitialScore)
	assert.True(t, report.Rotation.IsRotation(1e-9))

	st, err := project.Load(written)
	require.NoError(t, err)
	assert.True(t, st.Rotation.ApproxEqual(report.Rotation, 0))
}

func TestRefine_Errors(t *testing.T) {
	cfg, state := fixture(t)

	_, err := run(t, "refine", "-c", cfg, "--state", state, "--watch", "40 40 40")
	assert.ErrorIs(t, err, app.ErrNotPredicted)

	_, err = run(t, "refine", "-c", cfg, "--state", state, "--watch", "1 2")
	assert.Error(t, err)

	_, err = run(t, "refine", "-c", cfg, "--state", state)
	assert.Error(t, err)
}

func TestIdentify(t *testing.T) {
	cfg, state := fixture(t)
	p := nearSphere(predictJSON(t, "-c", cfg, "--state", state), 1)[0]

	out, err := run(t, "identify", "-c", cfg, "--state", state, "--",
		fmt.Sprint(p.X), fmt.Sprint(p.Y))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d %d %d\n", p.HKL[0], p.HKL[1], p.HKL[2]), out)

	// a spot left of and above the beam centre
	var neg *Prediction
	for _, c := range nearSphere(predictJSON(t, "-c", cfg, "--state", state), 50) {
		if c.X < 0 && c.Y < 0 {
			neg = &c
			break
		}
	}
	if neg != nil {
		out, err = run(t, "identify", "-c", cfg, "--state", state, "--",
			fmt.Sprint(neg.X), fmt.Sprint(neg.Y))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%d %d %d\n", neg.HKL[0], neg.HKL[1], neg.HKL[2]), out)
	}

	_, err = run(t, "identify", "-c", cfg, "--state", state, "--", "-5000", "-5000")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	cfg, state := fixture(t)
	out := filepath.Join(t.TempDir(), "overlay.png")

	stdout, err := run(t, "render", "-c", cfg, "--state", state,
		"--width", "200", "--height", "160", "--labels", "--axes", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, out)

	frame, err := dimage.Load(out)
	require.NoError(t, err)
	assert.Equal(t, 200, frame.Width())
	assert.Equal(t, 160, frame.Height())

	// render over the frame just written
	again := filepath.Join(t.TempDir(), "again.png")
	_, err = run(t, "render", "-c", cfg, "--state", state, "--image", out,
		"--dim", "0.5", "--beam", "80 80", "--out", again)
	require.NoError(t, err)
	_, err = os.Stat(again)
	assert.NoError(t, err)

	// a frame differenced with itself is black outside the overlay
	diff := filepath.Join(t.TempDir(), "diff.png")
	_, err = run(t, "render", "-c", cfg, "--state", state, "--image", out,
		"--compare", out, "--blend", "difference", "--beam=-5000 -5000", "--out", diff)
	require.NoError(t, err)
	frame, err = dimage.Load(diff)
	require.NoError(t, err)
	r, g, b, _ := frame.Image.At(100, 80).RGBA()
	assert.Zero(t, r+g+b)
}

func TestRender_Errors(t *testing.T) {
	cfg, state := fixture(t)
	out := filepath.Join(t.TempDir(), "overlay.png")

	_, err := run(t, "render", "-c", cfg, "--state", state)
	assert.Error(t, err)
	_, err = run(t, "render", "-c", cfg, "--state", state, "--out", out, "--dim", "2")
	assert.Error(t, err)
	_, err = run(t, "render", "-c", cfg, "--out", out, "--follow")
	assert.Error(t, err)
	_, err = run(t, "render", "-c", cfg, "--state", state, "--out", out, "--image", "frame.bmp")
	assert.ErrorIs(t, err, dimage.ErrUnsupportedFormat)
	_, err = run(t, "render", "-c", cfg, "--state", state, "--out", out, "--compare", "frame.png")
	assert.Error(t, err)
	_, err = run(t, "render", "-c", cfg, "--state", state, "--out", out, "--blend", "overlay")
	assert.ErrorIs(t, err, dimage.ErrUnknownBlendMode)
}

func TestFollow_ConfigChange(t *testing.T) {
	cfgPath, state := fixture(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cliCtx := &CLIContext{Config: cfg, ConfigPath: cfgPath, Logger: zap.NewNop()}
	session, err := cliCtx.openSession(state)
	require.NoError(t, err)
	primitive := len(session.Reflections())

	var draws atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- follow(ctx, session, state, cfgPath, cliCtx.Logger, func() error {
			draws.Add(1)
			return nil
		})
	}()

	// give the watchers time to register before editing
	time.Sleep(200 * time.Millisecond)
	tmp := cfgPath + ".tmp"
	edited := strings.Replace(testConfig, "resolution: 2.0", "resolution: 2.0\n  lattice: F", 1)
	require.NoError(t, os.WriteFile(tmp, []byte(edited), 0o644))
	require.NoError(t, os.Rename(tmp, cfgPath))

	require.Eventually(t, func() bool {
		return draws.Load() > 0 && len(session.Reflections()) < primitive
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop")
	}
}

func TestParseHKLList(t *testing.T) {
	got, err := parseHKLList("1 2 3; -1 0 4,0 0 1;;")
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{1, 2, 3}, {-1, 0, 4}, {0, 0, 1}}, got)

	_, err = parseHKLList("1 2 x")
	assert.Error(t, err)

	got, err = parseHKLList("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
