package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/mission"
	"github.com/roach88/orbit/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Telemetry string // "none" | "stdout"

	// Model is the model commands simulate. Nil means the mission model.
	Model *engine.Model

	shutdown func(context.Context) error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidTelemetry defines the allowed telemetry exporters.
var ValidTelemetry = []string{telemetry.ExporterNone, telemetry.ExporterStdout}

// NewRootCommand creates the root command for the orbit CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with args and returns the process exit code.
// Telemetry installed by --telemetry is flushed whether or not the command
// succeeded.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if shutdownErr := opts.shutdownTelemetry(context.Background()); shutdownErr != nil {
		fmt.Fprintf(stderr, "telemetry shutdown: %v\n", shutdownErr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orbit",
		Short: "orbit - mission activity simulator",
		Long: `A deterministic discrete-event simulator for spacecraft mission plans.

Plans are written in CUE, simulated against the spacecraft model and
queried for sampled resources, task outcomes and condition windows.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !slices.Contains(ValidTelemetry, opts.Telemetry) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid telemetry %q: must be one of %v", opts.Telemetry, ValidTelemetry))
			}
			return opts.initTelemetry(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Telemetry, "telemetry", telemetry.ExporterNone, "export spans and metrics to stderr (none|stdout)")

	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewWindowsCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// model returns the model commands run against.
func (o *RootOptions) model() *engine.Model {
	if o.Model == nil {
		o.Model = mission.New()
	}
	return o.Model
}

// logger builds the diagnostic logger: Info by default, Debug with
// --verbose, always on w so JSON output stays clean.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) initTelemetry(cmd *cobra.Command) error {
	if o.Telemetry == telemetry.ExporterNone {
		return nil
	}
	cfg := telemetry.DefaultConfig()
	cfg.TraceExporter = o.Telemetry
	cfg.MetricExporter = o.Telemetry
	cfg.Writer = cmd.ErrOrStderr()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Init(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to init telemetry", err)
	}
	o.shutdown = shutdown
	return nil
}

func (o *RootOptions) shutdownTelemetry(ctx context.Context) error {
	if o.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := o.shutdown(ctx)
	o.shutdown = nil
	return err
}
