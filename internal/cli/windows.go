package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/compiler"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
	"github.com/roach88/orbit/internal/store"
)

// WindowsOptions holds flags for the windows command.
type WindowsOptions struct {
	*RootOptions
	PlanName  string
	Sample    string
	StepQuota int
	Resource  string
	Min       float64
	Max       float64
	Equals    string
	Database  string
	RunID     string
}

// WindowsResult is the output of the windows command.
type WindowsResult struct {
	RunID     string       `json:"run_id"`
	Resource  string       `json:"resource"`
	Condition string       `json:"condition"`
	Horizon   string       `json:"horizon"`
	Windows   []WindowSpan `json:"windows"`
}

// WindowSpan is one closed window, in microseconds from the plan start.
type WindowSpan struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (r WindowsResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s until %s: %d window(s)", r.Resource, r.Condition, r.Horizon, len(r.Windows))
	for _, w := range r.Windows {
		fmt.Fprintf(&b, "\n  %s", resource.Span(duration.Duration(w.Start), duration.Duration(w.End)))
	}
	return b.String()
}

// NewWindowsCommand creates the windows command.
func NewWindowsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WindowsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "windows [plan.cue]",
		Short: "Find when a resource meets a condition",
		Long: `Simulate a plan, or load a run recorded with simulate --db, and report the
exact windows where one resource meets a condition.

Numeric resources take --min and/or --max (inclusive bounds). Discrete
resources take --equals, a JSON value or a bare string.

Examples:
  orbit windows testdata/plans/pass.cue --resource data --min 100
  orbit windows testdata/plans/pass.cue --resource battery --max 35500
  orbit windows testdata/plans/pass.cue --resource attitude --equals target
  orbit windows --db runs.db --run <run-id> --resource data --min 100`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var planPath string
			if len(args) == 1 {
				planPath = args[0]
			}
			return runWindows(opts, planPath, cmd)
		},
	}

	addRunFlags(cmd, &opts.PlanName, &opts.Sample, &opts.StepQuota)
	cmd.Flags().StringVar(&opts.Resource, "resource", "", "resource to query (required)")
	_ = cmd.MarkFlagRequired("resource")
	cmd.Flags().Float64Var(&opts.Min, "min", math.Inf(-1), "lower bound, inclusive")
	cmd.Flags().Float64Var(&opts.Max, "max", math.Inf(1), "upper bound, inclusive")
	cmd.Flags().StringVar(&opts.Equals, "equals", "", "JSON value a discrete resource must equal")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database holding the run given by --run")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "recorded run to query instead of simulating a plan")

	return cmd
}

func runWindows(opts *WindowsOptions, planPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	model := opts.model()

	cond, err := windowsCondition(opts, cmd)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	if _, ok := model.Resources.Lookup(opts.Resource); !ok {
		return outputCommandError(formatter, ErrCodeGeneric,
			fmt.Sprintf("unknown resource %q: have %s", opts.Resource, strings.Join(model.Resources.Names(), ", ")))
	}

	var res *engine.Results
	switch {
	case opts.RunID != "" && planPath != "":
		return outputCommandError(formatter, ErrCodeGeneric, "a plan file and --run are mutually exclusive")
	case opts.RunID != "" && opts.Database == "":
		return outputCommandError(formatter, ErrCodeGeneric, "--run requires --db")
	case opts.RunID != "":
		res, err = storedResults(commandContext(cmd), opts.Database, opts.RunID)
		if errors.Is(err, sql.ErrNoRows) {
			return outputCommandError(formatter, ErrCodeRunNotFound, fmt.Sprintf("run %q not found", opts.RunID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
	case planPath == "":
		return outputCommandError(formatter, ErrCodeGeneric, "a plan file or --run is required")
	default:
		if res, err = simulateForWindows(opts, model, planPath, cmd, formatter); err != nil {
			return err
		}
	}

	ws, err := res.Windows(opts.Resource, cond)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	result := WindowsResult{
		RunID:     res.RunID,
		Resource:  opts.Resource,
		Condition: fmt.Sprint(cond),
		Horizon:   res.Horizon.String(),
		Windows:   make([]WindowSpan, len(ws)),
	}
	for i, w := range ws {
		result.Windows[i] = WindowSpan{Start: int64(w.Start), End: int64(w.End)}
	}
	return formatter.Success(result)
}

// simulateForWindows runs the plan at planPath. A halted run is reported
// and returned as an error.
func simulateForWindows(opts *WindowsOptions, model *engine.Model, planPath string, cmd *cobra.Command, formatter *OutputFormatter) (*engine.Results, error) {
	sample, err := parseSample(opts.Sample)
	if err != nil {
		return nil, outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	plan, err := LoadPlan(planPath, opts.PlanName)
	if err != nil {
		return nil, outputLoadError(formatter, err)
	}
	if errs := compiler.Validate(plan, model.Activities); len(errs) > 0 {
		return nil, outputValidationErrors(formatter, errs)
	}

	out, err := simulatePlan(commandContext(cmd), model, plan, runConfig{
		Sample:    sample,
		StepQuota: opts.StepQuota,
		Logger:    opts.logger(cmd.ErrOrStderr()),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "simulation failed", err)
	}
	if out.Halted != nil {
		_ = formatter.Error(haltCode(out.Halted), out.Halted.Error(), nil)
		return nil, WrapExitError(ExitFailure, "simulation halted", out.Halted)
	}
	return out.Results, nil
}

// storedResults loads the results of a recorded run.
func storedResults(ctx context.Context, path, runID string) (*engine.Results, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.ReadResults(ctx, runID)
}

// windowsCondition builds the condition from --equals or --min/--max.
func windowsCondition(opts *WindowsOptions, cmd *cobra.Command) (resource.Condition, error) {
	bounded := cmd.Flags().Changed("min") || cmd.Flags().Changed("max")
	switch {
	case opts.Equals != "" && bounded:
		return nil, fmt.Errorf("--equals excludes --min and --max")
	case opts.Equals != "":
		v, err := ir.Unmarshal([]byte(opts.Equals))
		if err != nil {
			// Bare words compare as strings.
			v = ir.String(opts.Equals)
		}
		return resource.DiscreteEquals(v), nil
	case bounded:
		iv := resource.ClosedInterval{Min: opts.Min, Max: opts.Max}
		if iv.IsEmpty() {
			return nil, fmt.Errorf("--min %v exceeds --max %v", opts.Min, opts.Max)
		}
		return resource.RealWithin(iv), nil
	default:
		return nil, fmt.Errorf("one of --min, --max or --equals is required")
	}
}
