package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mandexing/internal/app"
	"mandexing/internal/crystal"
	"mandexing/pkg/geometry"
)

// PredictOptions holds the predict flags.
type PredictOptions struct {
	StatePath  string
	Cell       string
	Lattice    string
	Resolution float64
	Axis       string
	Output     string
	All        bool
}

// Prediction is one row of predict output, in absolute detector pixels.
type Prediction struct {
	HKL     [3]int  `json:"hkl"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Weight  float64 `json:"weight"`
	OnImage bool    `json:"on_image"`
}

// PredictReport is the full predict result.
type PredictReport struct {
	Rotation    geometry.Mat3 `json:"rotation"`
	BeamCentre  geometry.Vec3 `json:"beam_centre"`
	Predictions []Prediction  `json:"predictions"`
}

// NewPredictCmd creates the predict command.
func NewPredictCmd() *cobra.Command {
	opts := &PredictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "List predicted spot positions for a crystal state",
		Example: `  mandex predict --state matrix.dat
  mandex predict --cell "79.1 79.1 38 90 90 90" --lattice P --axis "0 0 1" -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runPredict(cmd.OutOrStdout(), cliCtx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.StatePath, "state", "", "state file to start from")
	f.StringVar(&opts.Cell, "cell", "", `unit cell "a b c alpha beta gamma"`)
	f.StringVar(&opts.Lattice, "lattice", "", "lattice centring: P, I, F or C")
	f.Float64Var(&opts.Resolution, "resolution", 0, "resolution limit in Å")
	f.StringVar(&opts.Axis, "axis", "", `bring "h k l" to screen x; a second triple after ";" fixes the twist`)
	f.StringVarP(&opts.Output, "output", "o", FormatText, "output format: text, json or table")
	f.BoolVar(&opts.All, "all", false, "include reflections in the buffer shell that are not drawn")
	return cmd
}

// applyPredictOptions pushes the command-line overrides into the session.
func applyPredictOptions(session *app.Session, opts *PredictOptions) error {
	if opts.Cell != "" {
		vals, err := parseFloats(opts.Cell, 6)
		if err != nil {
			return fmt.Errorf("--cell: %w", err)
		}
		var params geometry.CellParams
		copy(params[:], vals)
		if err := session.SetUnitCell(params); err != nil {
			return err
		}
	}
	if opts.Lattice != "" {
		l, err := crystal.ParseLattice(opts.Lattice)
		if err != nil {
			return fmt.Errorf("--lattice: %w", err)
		}
		if err := session.SetLattice(l); err != nil {
			return err
		}
	}
	if opts.Resolution != 0 {
		if err := session.SetResolution(opts.Resolution); err != nil {
			return err
		}
	}
	if opts.Axis != "" {
		axes, err := parseHKLList(opts.Axis)
		if err != nil {
			return fmt.Errorf("--axis: %w", err)
		}
		if len(axes) == 0 || len(axes) > 2 {
			return fmt.Errorf("--axis: expected one or two triples, got %d", len(axes))
		}
		first := [3]float64{float64(axes[0][0]), float64(axes[0][1]), float64(axes[0][2])}
		var second *[3]float64
		if len(axes) == 2 {
			second = &[3]float64{float64(axes[1][0]), float64(axes[1][1]), float64(axes[1][2])}
		}
		if err := session.BringAxisToScreen(first, second); err != nil {
			return err
		}
	}
	return nil
}

func runPredict(out io.Writer, cliCtx *CLIContext, opts *PredictOptions) error {
	if err := checkFormat(opts.Output); err != nil {
		return err
	}
	session, err := cliCtx.openSession(opts.StatePath)
	if err != nil {
		return err
	}
	if err := applyPredictOptions(session, opts); err != nil {
		return err
	}

	refls := session.Predictions()
	if opts.All {
		refls = session.Reflections()
	}
	report := PredictReport{
		Rotation:    session.Rotation(),
		BeamCentre:  session.BeamCentre(),
		Predictions: make([]Prediction, 0, len(refls)),
	}
	for _, r := range refls {
		if !r.Projected {
			continue
		}
		p := session.ToDetector(r.Screen)
		report.Predictions = append(report.Predictions, Prediction{
			HKL:     r.HKL,
			X:       p.X,
			Y:       p.Y,
			Weight:  r.Weight,
			OnImage: r.OnImage,
		})
	}
	cliCtx.Logger.Info("predicted", zap.Int("spots", len(report.Predictions)))

	switch opts.Output {
	case FormatJSON:
		return printJSON(out, report)
	case FormatTable:
		rows := make([][]string, len(report.Predictions))
		for i, p := range report.Predictions {
			rows[i] = []string{
				fmt.Sprintf("%d %d %d", p.HKL[0], p.HKL[1], p.HKL[2]),
				strconv.FormatFloat(p.X, 'f', 1, 64),
				strconv.FormatFloat(p.Y, 'f', 1, 64),
				colorWeight(p.Weight),
			}
		}
		return printTable(out, []string{"hkl", "x", "y", "weight"}, rows)
	default:
		fmt.Fprintf(out, "rotation %s\n", strings.Join(report.Rotation.Fields(), " "))
		fmt.Fprintf(out, "det_centre %s\n", strings.Join(report.BeamCentre.Fields(), " "))
		for _, p := range report.Predictions {
			fmt.Fprintf(out, "%4d %4d %4d  %9.2f %9.2f  %.4f\n", p.HKL[0], p.HKL[1], p.HKL[2], p.X, p.Y, p.Weight)
		}
		return nil
	}
}
