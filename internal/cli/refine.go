package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mandexing/internal/app"
	"mandexing/internal/refine"
	"mandexing/pkg/geometry"
)

// RefineOptions holds the refine flags.
type RefineOptions struct {
	StatePath string
	Watch     string
	WritePath string
	Output    string
}

// RefineReport is the refine result.
type RefineReport struct {
	Watched      [][3]int      `json:"watched"`
	InitialScore float64       `json:"initial_score"`
	FinalScore   float64       `json:"final_score"`
	Horizontal   float64       `json:"horizontal"`
	Vertical     float64       `json:"vertical"`
	Evaluations  int           `json:"evaluations"`
	Rotation     geometry.Mat3 `json:"rotation"`
}

// NewRefineCmd creates the refine command.
func NewRefineCmd() *cobra.Command {
	opts := &RefineOptions{}

	cmd := &cobra.Command{
		Use:     "refine",
		Short:   "Refine the orientation against chosen reflections",
		Example: `  mandex refine --state matrix.dat --watch "1 2 3; -2 0 4; 3 1 1" --write matrix.dat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runRefine(cmd, cliCtx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.StatePath, "state", "", "state file to refine (required)")
	f.StringVar(&opts.Watch, "watch", "", `reflections to fit, "h k l; h k l; ..." (required)`)
	f.StringVar(&opts.WritePath, "write", "", "write the refined state here")
	f.StringVarP(&opts.Output, "output", "o", FormatText, "output format: text or json")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("watch")
	return cmd
}

func runRefine(cmd *cobra.Command, cliCtx *CLIContext, opts *RefineOptions) error {
	if err := checkFormat(opts.Output); err != nil {
		return err
	}
	watch, err := parseHKLList(opts.Watch)
	if err != nil {
		return fmt.Errorf("--watch: %w", err)
	}
	if len(watch) == 0 {
		return refine.ErrNothingWatched
	}

	session, err := cliCtx.openSession(opts.StatePath)
	if err != nil {
		return err
	}
	for _, hkl := range watch {
		if err := session.WatchHKL(hkl[0], hkl[1], hkl[2]); err != nil {
			if errors.Is(err, app.ErrNotPredicted) {
				return fmt.Errorf("%d %d %d: %w", hkl[0], hkl[1], hkl[2], err)
			}
			return err
		}
	}

	res, err := session.Refine()
	if err != nil {
		return err
	}

	report := RefineReport{
		Watched:      watch,
		InitialScore: res.InitialScore,
		FinalScore:   res.FinalScore,
		Horizontal:   res.Horizontal,
		Vertical:     res.Vertical,
		Evaluations:  res.Evaluations,
		Rotation:     session.Rotation(),
	}

	if opts.WritePath != "" {
		if err := session.SaveState(opts.WritePath); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.Output == FormatJSON {
		return printJSON(out, report)
	}
	printRefineText(out, report)
	if opts.WritePath != "" {
		PrintSuccess(cmd, "state written to "+opts.WritePath)
	}
	return nil
}

func printRefineText(out io.Writer, r RefineReport) {
	fmt.Fprintf(out, "watched     %d reflections\n", len(r.Watched))
	fmt.Fprintf(out, "score       %.6f -> %.6f\n", r.InitialScore, r.FinalScore)
	fmt.Fprintf(out, "nudge       h %.6f  v %.6f rad\n", r.Horizontal, r.Vertical)
	fmt.Fprintf(out, "evaluations %d\n", r.Evaluations)
	fmt.Fprintf(out, "rotation    %s\n", strings.Join(r.Rotation.Fields(), " "))
}
