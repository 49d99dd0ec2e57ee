package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mandexing/internal/app"
	"mandexing/internal/config"
	dimage "mandexing/internal/image"
	"mandexing/internal/overlay"
)

// RenderOptions holds the render flags.
type RenderOptions struct {
	StatePath string
	ImagePath string
	Compare   string
	Blend     string
	OutPath   string
	Width     int
	Height    int
	Beam      string
	Dim       float64
	Labels    bool
	Axes      bool
	Follow    bool
}

// NewRenderCmd creates the render command.
func NewRenderCmd() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw the predictions over a detector frame",
		Example: `  mandex render --state matrix.dat --image frame_0001.tif --out overlay.png
  mandex render --state matrix.dat --image frame_0001.tif --compare frame_0002.tif --blend difference --out diff.png
  mandex render --state matrix.dat --width 2048 --height 2048 --out overlay.png --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runRender(cmd, cliCtx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.StatePath, "state", "", "state file to draw")
	f.StringVar(&opts.ImagePath, "image", "", "detector frame (PNG, JPEG or TIFF)")
	f.StringVar(&opts.Compare, "compare", "", "second frame stacked over --image")
	f.StringVar(&opts.Blend, "blend", "difference", "how --compare is mixed in: normal, multiply, screen or difference")
	f.StringVar(&opts.OutPath, "out", "", "output PNG (required)")
	f.IntVar(&opts.Width, "width", 1024, "canvas width when no frame is given")
	f.IntVar(&opts.Height, "height", 1024, "canvas height when no frame is given")
	f.StringVar(&opts.Beam, "beam", "", `beam centre "x y" in pixels; overrides the state`)
	f.Float64Var(&opts.Dim, "dim", 1, "frame opacity under the overlay (0-1)")
	f.BoolVar(&opts.Labels, "labels", false, "write h k l next to each spot")
	f.BoolVar(&opts.Axes, "axes", false, "draw the real-space axes")
	f.BoolVar(&opts.Follow, "follow", false, "re-render whenever the state or config file changes, until interrupted")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runRender(cmd *cobra.Command, cliCtx *CLIContext, opts *RenderOptions) error {
	if opts.Dim < 0 || opts.Dim > 1 {
		return fmt.Errorf("--dim %g must be between 0 and 1", opts.Dim)
	}
	if opts.Follow && opts.StatePath == "" {
		return fmt.Errorf("--follow needs --state")
	}

	if opts.Compare != "" && opts.ImagePath == "" {
		return fmt.Errorf("--compare needs --image")
	}
	mode, err := dimage.ParseBlendMode(opts.Blend)
	if err != nil {
		return fmt.Errorf("--blend: %w", err)
	}

	var composite *dimage.Composite
	if opts.ImagePath != "" {
		frame, err := dimage.Load(opts.ImagePath)
		if err != nil {
			return err
		}
		frame.Opacity = opts.Dim
		composite = dimage.CompositeFor(frame)

		if opts.Compare != "" {
			second, err := dimage.Load(opts.Compare)
			if err != nil {
				return err
			}
			second.Opacity = opts.Dim
			composite.Add(second, mode, image.Point{})
		}
	} else if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("canvas size %dx%d must be positive", opts.Width, opts.Height)
	} else {
		composite = dimage.NewComposite(opts.Width, opts.Height)
	}

	session, err := cliCtx.openSession(opts.StatePath)
	if err != nil {
		return err
	}

	draw := func() error {
		if opts.Beam != "" {
			xy, err := parseFloats(opts.Beam, 2)
			if err != nil {
				return fmt.Errorf("--beam: %w", err)
			}
			session.SetBeamCentre(xy[0], xy[1])
		}
		n, err := renderTo(opts.OutPath, session, composite, opts)
		if err != nil {
			return err
		}
		cliCtx.Logger.Info("overlay written", zap.String("path", opts.OutPath), zap.Int("spots", n))
		return nil
	}
	if err := draw(); err != nil {
		return err
	}
	if !opts.Follow {
		PrintSuccess(cmd, "overlay written to "+opts.OutPath)
		return nil
	}

	return follow(cmd.Context(), session, opts.StatePath, cliCtx.ConfigPath, cliCtx.Logger, draw)
}

// renderTo flattens the frames, draws the overlay and writes the PNG.
func renderTo(path string, session *app.Session, composite *dimage.Composite, opts *RenderOptions) (int, error) {
	canvas := composite.Render()

	style := overlay.DefaultOptions()
	style.Labels = opts.Labels
	if opts.Axes {
		axes, err := session.RealSpaceAxes()
		if err != nil {
			return 0, err
		}
		style.Axes = &axes
	}
	if axis, ok := session.FixedAxis(); ok {
		style.FixedAxis = &axis
	}

	n := overlay.Render(canvas, session.Predictions(), session.BeamCentre(), style)
	return n, dimage.SavePNG(path, canvas)
}

// follow re-renders after every state file change, and after every config
// file change when configPath is set, until ctx ends or the process is
// interrupted.
func follow(ctx context.Context, session *app.Session, statePath, configPath string, logger *zap.Logger, draw func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// both watchers call in from their own goroutines
	var mu sync.Mutex
	redraw := func() {
		mu.Lock()
		defer mu.Unlock()
		if err := draw(); err != nil {
			logger.Warn("re-render failed", zap.Error(err))
		}
	}

	watcher, err := app.NewStateWatcher(session, statePath)
	if err != nil {
		return err
	}
	watcher.OnReload(func(err error) {
		if err == nil {
			redraw()
		}
	})

	if configPath != "" {
		err := config.Watch(configPath, logger, func(cfg *config.Config) {
			if err := session.ApplyConfig(cfg); err != nil {
				logger.Warn("config change not applied", zap.Error(err))
				return
			}
			redraw()
		})
		if err != nil {
			_ = watcher.Stop()
			return err
		}
		logger.Info("following config file", zap.String("path", configPath))
	}

	watcher.Start()
	logger.Info("following state file", zap.String("path", statePath))

	<-ctx.Done()
	return watcher.Stop()
}
