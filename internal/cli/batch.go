package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/orbit/internal/cache"
	"github.com/roach88/orbit/internal/compiler"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/store"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Sample    string
	Database  string
	CacheDir  string
	StepQuota int
	Parallel  int

	// RunIDs allows overriding the run id generator (for testing).
	RunIDs engine.RunIDGenerator
}

// BatchResult is the output of the batch command, one summary per plan in
// argument order.
type BatchResult struct {
	Runs   []RunSummary `json:"runs"`
	Halted int          `json:"halted"`
}

func (r BatchResult) String() string {
	var b strings.Builder
	for _, s := range r.Runs {
		mark, note := "✓", ""
		if s.Halted != "" {
			mark, note = "✗", " halted: "+s.Halted
		}
		if s.Cached {
			note += " (from cache)"
		}
		fmt.Fprintf(&b, "%s %-16s %s %d task(s) %d failure(s)%s\n",
			mark, s.Plan, s.Horizon, s.Tasks, len(s.Failures), note)
	}
	fmt.Fprintf(&b, "\n%d plan(s), %d halted", len(r.Runs), r.Halted)
	return b.String()
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newBatchCommand(&BatchOptions{RootOptions: rootOpts})
}

func newBatchCommand(opts *BatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <plan.cue>...",
		Short: "Simulate many plans concurrently",
		Long: `Simulate every plan in the given files or directories.

Plans run concurrently, up to --parallel at a time. Each run is
independent and deterministic, so results do not depend on the order in
which runs finish. Output follows argument order.

Exit codes:
  0 - All plans completed
  1 - One or more plans halted
  2 - Command error (invalid plans, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args, cmd)
		},
	}

	addRunFlags(cmd, nil, &opts.Sample, &opts.StepQuota)
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 4, "plans simulated at once")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite database")
	cmd.Flags().StringVar(&opts.CacheDir, "cache", "", "reuse results from this cache directory")

	return cmd
}

func runBatch(opts *BatchOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	model := opts.model()
	logger := opts.logger(cmd.ErrOrStderr())

	if opts.Parallel < 1 {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("invalid --parallel %d: must be at least 1", opts.Parallel))
	}
	sample, err := parseSample(opts.Sample)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	var plans []*ir.Plan
	for _, path := range paths {
		loaded, err := LoadPlans(path)
		if err != nil {
			return outputLoadError(formatter, err)
		}
		plans = append(plans, loaded...)
	}

	var errs []compiler.ValidationError
	for _, plan := range plans {
		for _, e := range compiler.Validate(plan, model.Activities) {
			e.Field = plan.Name + "." + e.Field
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	cfg := runConfig{
		Sample:    sample,
		StepQuota: opts.StepQuota,
		RunIDs:    opts.RunIDs,
		Logger:    logger,
	}
	if opts.CacheDir != "" {
		c, err := cache.Open(cache.Config{Dir: opts.CacheDir, Logger: logger})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open cache", err)
		}
		defer c.Close()
		cfg.Cache = c
	}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		cfg.Store = st
	}

	outcomes := make([]*runOutcome, len(plans))
	g, ctx := errgroup.WithContext(commandContext(cmd))
	g.SetLimit(opts.Parallel)
	for i, plan := range plans {
		g.Go(func() error {
			formatter.VerboseLog("Simulating plan: %s", plan.Name)
			out, err := simulatePlan(ctx, model, plan, cfg)
			if err != nil {
				return fmt.Errorf("plan %s: %w", plan.Name, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "batch failed", err)
	}

	result := BatchResult{Runs: make([]RunSummary, len(outcomes))}
	for i, out := range outcomes {
		result.Runs[i] = summarize(model, out)
		if out.Halted != nil {
			result.Halted++
		}
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Halted > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_RUN_HALTED", Message: fmt.Sprintf("%d plan(s) halted", result.Halted)}
		}
		if err := formatter.Response(resp); err != nil {
			return err
		}
	} else if err := formatter.Success(result); err != nil {
		return err
	}

	if result.Halted > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d plan(s) halted", result.Halted))
	}
	return nil
}
