package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/cache"
	"github.com/roach88/orbit/internal/compiler"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	PlanName  string
	Sample    string
	Database  string
	CacheDir  string
	StepQuota int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	return newSimulateCommand(&SimulateOptions{RootOptions: rootOpts})
}

func newSimulateCommand(opts *SimulateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <plan.cue>",
		Short: "Simulate a plan",
		Long: `Simulate a plan against the spacecraft model.

The plan is compiled, validated against the model's activity types and
run from its start for its duration. Every resource is sampled each
--sample period.

With --db the run is recorded in a SQLite run store for "orbit show".
With --cache identical simulations (same plan, model version and
sampling period) are answered from a BadgerDB results cache.

Exit codes:
  0 - The plan ran to its end
  1 - The plan is invalid or the run halted early
  2 - Command error (unreadable plan, bad flags, etc.)

Examples:
  orbit simulate testdata/plans/pass.cue
  orbit simulate plans/ --plan pass --sample 30s --db runs.db
  orbit simulate testdata/plans/pass.cue --cache .orbit-cache --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	addRunFlags(cmd, &opts.PlanName, &opts.Sample, &opts.StepQuota)
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().StringVar(&opts.CacheDir, "cache", "", "results cache directory")

	return cmd
}

// addRunFlags registers the flags shared by every command that simulates.
func addRunFlags(cmd *cobra.Command, planName, sample *string, quota *int) {
	if planName != nil {
		cmd.Flags().StringVar(planName, "plan", "", "plan to run when the file defines several")
	}
	cmd.Flags().StringVar(sample, "sample", "1m", "sampling period")
	cmd.Flags().IntVar(quota, "step-quota", engine.DefaultStepQuota, "maximum batches at one instant (0 disables)")
}

func runSimulate(opts *SimulateOptions, planPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := commandContext(cmd)
	model := opts.model()

	sample, err := parseSample(opts.Sample)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	plan, err := LoadPlan(planPath, opts.PlanName)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if errs := compiler.Validate(plan, model.Activities); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	formatter.VerboseLog("Compiled plan %s: %d activities over %s", plan.Name, len(plan.Directives), plan.Duration)

	cfg := runConfig{
		Sample:    sample,
		StepQuota: opts.StepQuota,
		RunIDs:    opts.RunIDs,
		Logger:    opts.logger(cmd.ErrOrStderr()),
	}

	if opts.CacheDir != "" {
		c, err := cache.Open(cache.Config{Dir: opts.CacheDir, Logger: cfg.Logger})
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

	out, err := simulatePlan(ctx, model, plan, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "simulation failed", err)
	}

	if err := outputRun(formatter, model, out); err != nil {
		return err
	}
	if out.Halted != nil {
		return WrapExitError(ExitFailure, "simulation halted", out.Halted)
	}
	return nil
}

// runConfig is how one plan is simulated.
type runConfig struct {
	Sample    duration.Duration
	StepQuota int
	RunIDs    engine.RunIDGenerator
	Logger    *slog.Logger
	Cache     *cache.Cache // optional
	Store     *store.Store // optional
}

// runOutcome is one simulated plan.
type runOutcome struct {
	Plan    *ir.Plan
	Results *engine.Results
	Halted  error // effect conflict or step quota; Results are partial
	Cached  bool  // Results came from the cache
	Stored  bool  // a new run was written to the store
}

// simulatePlan runs plan, answering from the cache when it can and
// recording the run in the store when one is configured.
//
// An error means the simulation could not be carried out. A run that
// halts is an outcome with Halted set.
func simulatePlan(ctx context.Context, model *engine.Model, plan *ir.Plan, cfg runConfig) (*runOutcome, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := &runOutcome{Plan: plan}

	var key string
	if cfg.Cache != nil {
		var err error
		key, err = cache.Key(*plan, model, int64(cfg.Sample))
		if err != nil {
			return nil, err
		}
		res, ok, err := cfg.Cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			logger.Debug("results cache hit", "plan", plan.Name, "key", key, "run_id", res.RunID)
			out.Results = res
			out.Cached = true
		}
	}

	if out.Results == nil {
		runIDs := cfg.RunIDs
		if runIDs == nil {
			runIDs = engine.UUIDv7Generator{}
		}
		eng, err := engine.New(model,
			engine.WithLogger(logger),
			engine.WithStepQuota(cfg.StepQuota),
			engine.WithRunIDGenerator(runIDs),
		)
		if err != nil {
			return nil, err
		}

		res, simErr := eng.SimulatePlan(ctx, *plan, cfg.Sample)
		switch {
		case res == nil:
			return nil, simErr
		case errors.Is(simErr, context.Canceled), errors.Is(simErr, context.DeadlineExceeded):
			return nil, simErr
		}
		out.Results = res
		out.Halted = simErr

		if cfg.Cache != nil && simErr == nil {
			if _, err := cfg.Cache.Put(ctx, key, res); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Store != nil {
		planHash, err := ir.PlanHash(*plan)
		if err != nil {
			return nil, err
		}
		out.Stored, err = cfg.Store.WriteRun(ctx, store.Run{
			Plan:     *plan,
			PlanHash: planHash,
			Results:  out.Results,
			Err:      out.Halted,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("run recorded", "run_id", out.Results.RunID, "inserted", out.Stored)
	}

	return out, nil
}

// RunSummary is the text and JSON summary of one simulated plan.
type RunSummary struct {
	RunID          string            `json:"run_id"`
	Plan           string            `json:"plan"`
	Model          string            `json:"model"`
	ModelVersion   string            `json:"model_version"`
	Start          string            `json:"start"`
	Duration       string            `json:"duration"`
	Horizon        string            `json:"horizon"`
	SamplingPeriod string            `json:"sampling_period"`
	Points         int               `json:"points"`
	Tasks          int               `json:"tasks"`
	Failures       []FailureSummary  `json:"failures"`
	Final          map[string]string `json:"final"`
	Halted         string            `json:"halted,omitempty"`
	Cached         bool              `json:"cached"`
	Stored         bool              `json:"stored"`

	resources []string
}

// FailureSummary is one failure of a run.
type FailureSummary struct {
	Directive string `json:"directive"`
	Task      string `json:"task"`
	Code      string `json:"code"`
	Time      string `json:"time"`
	Message   string `json:"message"`
}

func summarize(model *engine.Model, out *runOutcome) RunSummary {
	res := out.Results
	s := RunSummary{
		RunID:          res.RunID,
		Plan:           out.Plan.Name,
		Model:          res.Model,
		ModelVersion:   res.ModelVersion,
		Start:          res.Start.UTC().Format(time.RFC3339Nano),
		Duration:       res.Duration.String(),
		Horizon:        res.Horizon.String(),
		SamplingPeriod: res.SamplingPeriod.String(),
		Points:         res.Points,
		Tasks:          len(res.Tasks),
		Failures:       make([]FailureSummary, len(res.Failures)),
		Final:          map[string]string{},
		Cached:         out.Cached,
		Stored:         out.Stored,
		resources:      model.Resources.Names(),
	}
	if out.Halted != nil {
		s.Halted = out.Halted.Error()
	}
	for i, f := range res.Failures {
		s.Failures[i] = FailureSummary{
			Directive: f.Directive,
			Task:      f.Task,
			Code:      string(f.Code),
			Time:      f.Time.String(),
			Message:   strings.Join(f.Messages, "; "),
		}
	}
	for _, name := range s.resources {
		samples := res.Samples[name]
		if len(samples) == 0 {
			continue
		}
		s.Final[name] = renderValue(samples[len(samples)-1])
	}
	return s
}

// String renders the summary for text output.
func (s RunSummary) String() string {
	var b strings.Builder
	status := "✓ completed"
	if s.Halted != "" {
		status = "✗ halted: " + s.Halted
	}
	fmt.Fprintf(&b, "Run %s (%s)\n", s.RunID, status)
	fmt.Fprintf(&b, "  plan:     %s\n", s.Plan)
	fmt.Fprintf(&b, "  model:    %s %s\n", s.Model, s.ModelVersion)
	fmt.Fprintf(&b, "  start:    %s\n", s.Start)
	fmt.Fprintf(&b, "  horizon:  %s of %s\n", s.Horizon, s.Duration)
	fmt.Fprintf(&b, "  sampling: every %s\n", s.SamplingPeriod)
	fmt.Fprintf(&b, "  points:   %d\n", s.Points)
	fmt.Fprintf(&b, "  tasks:    %d\n", s.Tasks)
	if s.Cached {
		b.WriteString("  (from cache)\n")
	}

	if len(s.Final) > 0 {
		fmt.Fprintf(&b, "\nResources at %s:\n", s.Horizon)
		for _, name := range s.resources {
			if v, ok := s.Final[name]; ok {
				fmt.Fprintf(&b, "  %-12s %s\n", name, v)
			}
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(&b, "\nFailures (%d):\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "  %s %s at %s: %s\n", f.Code, f.Task, f.Time, f.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// outputRun writes one simulated plan. JSON output carries the summary and
// the full results.
func outputRun(formatter *OutputFormatter, model *engine.Model, out *runOutcome) error {
	summary := summarize(model, out)
	if formatter.Format != "json" {
		return formatter.Success(summary)
	}

	results, err := ir.MarshalCanonical(out.Results.ToValue())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode results", err)
	}
	resp := CLIResponse{
		Status: "ok",
		RunID:  summary.RunID,
		Data: struct {
			Summary RunSummary      `json:"summary"`
			Results json.RawMessage `json:"results"`
		}{summary, results},
	}
	if out.Halted != nil {
		resp.Status = "error"
		resp.Error = &CLIError{Code: haltCode(out.Halted), Message: out.Halted.Error()}
	}
	return formatter.Response(resp)
}

// haltCode names a halting error in JSON output.
func haltCode(err error) string {
	if engine.IsStepsExceededError(err) {
		return string(engine.ErrCodeStepsExceeded)
	}
	return "EFFECT_CONFLICT"
}

func renderValue(v ir.Value) string {
	data, err := ir.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func parseSample(s string) (duration.Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --sample: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid --sample %q: must be positive", s)
	}
	return d, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// outputCommandError outputs a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputLoadError outputs a plan loading error (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		var details any
		if line := loadErr.Line(); line > 0 {
			details = map[string]any{"file": loadErr.Pos.Filename(), "line": line}
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, details)
		return WrapExitError(ExitCommandError, "failed to load plan", err)
	}
	return outputCommandError(formatter, ErrCodeGeneric, err.Error())
}
