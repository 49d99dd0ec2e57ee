// Package cli implements the mandex command tree.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mandexing/internal/app"
	"mandexing/internal/config"
	"mandexing/internal/logging"
	"mandexing/internal/version"
)

// ErrNoContext is returned when a command runs without the root's
// pre-run having prepared its context.
var ErrNoContext = errors.New("cli: command context not initialised")

type cliContextKey struct{}

// RootOptions holds global flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	NoColor    bool
}

// CLIContext carries the loaded configuration and logger to subcommands.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
}

// NewRootCommand creates the root command with its global flags and every
// subcommand.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mandex",
		Short: "Predict and refine diffraction spot positions for a crystal orientation",
		Long: "mandex predicts where reciprocal-lattice points cross the Ewald sphere and\n" +
			"land on a flat detector, refines the orientation against chosen spots and\n" +
			"draws the predictions over a detector frame.",
		Version: version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cliCtx, err := GetCLIContext(cmd); err == nil {
				_ = cliCtx.Logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (YAML)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	pf.StringVar(&opts.LogFormat, "log-format", "", "log format (console, json); overrides the config")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		NewPredictCmd(),
		NewRefineCmd(),
		NewIdentifyCmd(),
		NewRenderCmd(),
		NewVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	if opts.NoColor {
		color.NoColor = true
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	logger.Debug("configuration loaded", zap.String("file", opts.ConfigPath))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, &CLIContext{
		Config:     cfg,
		ConfigPath: opts.ConfigPath,
		Logger:     logger,
	}))
	return nil
}

// GetCLIContext extracts the CLIContext from a command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, ErrNoContext
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, ErrNoContext
	}
	return cliCtx, nil
}

// openSession builds a session from the configuration and, when statePath
// is set, restores the state file over it.
func (c *CLIContext) openSession(statePath string) (*app.Session, error) {
	session, err := app.NewSession(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	if statePath != "" {
		if err := session.LoadState(statePath); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// Execute runs the command tree against os.Args.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}
