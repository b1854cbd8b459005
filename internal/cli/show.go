package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	PlanHash string
	Resource string
}

// StoredRun is the output of show for a single run.
type StoredRun struct {
	RunID          string            `json:"run_id"`
	Plan           string            `json:"plan"`
	PlanHash       string            `json:"plan_hash"`
	Model          string            `json:"model"`
	ModelVersion   string            `json:"model_version"`
	Start          string            `json:"start"`
	Duration       string            `json:"duration"`
	Horizon        string            `json:"horizon"`
	SamplingPeriod string            `json:"sampling_period"`
	Points         int               `json:"points"`
	Error          string            `json:"error,omitempty"`
	Directives     []StoredDirective `json:"directives"`
	Tasks          []StoredTask      `json:"tasks"`
	Failures       []FailureSummary  `json:"failures"`
	Samples        *StoredSamples    `json:"samples,omitempty"`
}

// StoredDirective is one schedule entry of the plan a run was made from.
type StoredDirective struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Offset string `json:"offset"`
}

// StoredSamples are the recorded values of one resource.
type StoredSamples struct {
	Resource string         `json:"resource"`
	Points   []StoredSample `json:"points"`
}

// StoredSample is one recorded value, rendered as JSON.
type StoredSample struct {
	Time  string `json:"time"`
	Value string `json:"value"`
}

// StoredTask is one task record of a stored run.
type StoredTask struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Directive string `json:"directive"`
	Status    string `json:"status"`
	Started   string `json:"started"`
	Finished  string `json:"finished"`
}

func (r StoredRun) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", r.RunID)
	fmt.Fprintf(&b, "  plan:     %s (%s)\n", r.Plan, r.PlanHash)
	fmt.Fprintf(&b, "  model:    %s %s\n", r.Model, r.ModelVersion)
	fmt.Fprintf(&b, "  start:    %s\n", r.Start)
	fmt.Fprintf(&b, "  horizon:  %s of %s\n", r.Horizon, r.Duration)
	fmt.Fprintf(&b, "  sampling: every %s (%d points)\n", r.SamplingPeriod, r.Points)
	if r.Error != "" {
		fmt.Fprintf(&b, "  halted:   %s\n", r.Error)
	}

	if len(r.Directives) > 0 {
		fmt.Fprintf(&b, "\nDirectives (%d):\n", len(r.Directives))
		for _, d := range r.Directives {
			fmt.Fprintf(&b, "  %-20s %-10s at %s\n", d.ID, d.Type, d.Offset)
		}
	}
	if len(r.Tasks) > 0 {
		fmt.Fprintf(&b, "\nTasks (%d):\n", len(r.Tasks))
		for _, t := range r.Tasks {
			fmt.Fprintf(&b, "  %-20s %-10s %-10s %s .. %s\n", t.Name, t.Type, t.Status, t.Started, t.Finished)
		}
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "\nFailures (%d):\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s %s at %s: %s\n", f.Code, f.Task, f.Time, f.Message)
		}
	}
	if r.Samples != nil {
		fmt.Fprintf(&b, "\nSamples of %s (%d):\n", r.Samples.Resource, len(r.Samples.Points))
		for _, p := range r.Samples.Points {
			fmt.Fprintf(&b, "  %-8s %s\n", p.Time, p.Value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RunList is the output of show without a run id.
type RunList struct {
	Runs         []RunListEntry `json:"runs"`
	FailureCodes map[string]int `json:"failure_codes,omitempty"`
}

// RunListEntry is one stored run in a listing.
type RunListEntry struct {
	RunID   string `json:"run_id"`
	Plan    string `json:"plan"`
	Horizon string `json:"horizon"`
	Halted  bool   `json:"halted"`
}

func (l RunList) String() string {
	if len(l.Runs) == 0 {
		return "No runs recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d run(s):", len(l.Runs))
	for _, r := range l.Runs {
		mark := "✓"
		if r.Halted {
			mark = "✗"
		}
		fmt.Fprintf(&b, "\n  %s %s %-16s %s", mark, r.RunID, r.Plan, r.Horizon)
	}
	if len(l.FailureCodes) > 0 {
		codes := make([]string, 0, len(l.FailureCodes))
		for code := range l.FailureCodes {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		b.WriteString("\n\nFailures by code:")
		for _, code := range codes {
			fmt.Fprintf(&b, "\n  %-36s %d", code, l.FailureCodes[code])
		}
	}
	return b.String()
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show runs recorded in a database",
		Long: `Show a run recorded by simulate --db, with its schedule, tasks and
failures. --resource adds the recorded samples of one resource.

Without a run id, lists every recorded run in the order it was written,
with failure counts by code. --plan-hash lists only the runs of one plan
against the current model version.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var runID string
			if len(args) == 1 {
				runID = args[0]
			}
			return runShow(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.PlanHash, "plan-hash", "", "list only runs of the plan with this hash")
	cmd.Flags().StringVar(&opts.Resource, "resource", "", "include the samples of this resource")

	return cmd
}

func runShow(opts *ShowOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("failed to open database: %v", err))
	}
	defer st.Close()

	switch {
	case runID == "" && opts.Resource != "":
		return outputCommandError(formatter, ErrCodeGeneric, "--resource requires a run id")
	case runID != "" && opts.PlanHash != "":
		return outputCommandError(formatter, ErrCodeGeneric, "--plan-hash lists runs and excludes a run id")
	case runID == "":
		return showRuns(ctx, opts, st, formatter)
	}

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return outputCommandError(formatter, ErrCodeRunNotFound, fmt.Sprintf("run %q not found", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	formatter.VerboseLog("Loaded run %s (seq %d)", run.ID, run.Seq)

	tasks, err := st.ReadTasks(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read tasks", err)
	}
	failures, err := st.ReadFailures(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read failures", err)
	}
	plan, err := st.ReadPlan(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read plan", err)
	}

	out := StoredRun{
		RunID:          run.ID,
		Plan:           run.PlanName,
		PlanHash:       run.PlanHash,
		Model:          run.Model,
		ModelVersion:   run.ModelVersion,
		Start:          run.Start.UTC().Format(time.RFC3339Nano),
		Duration:       run.Duration.String(),
		Horizon:        run.Horizon.String(),
		SamplingPeriod: run.SamplingPeriod.String(),
		Points:         run.Points,
		Error:          run.Error,
		Directives:     make([]StoredDirective, len(plan.Directives)),
		Tasks:          make([]StoredTask, len(tasks)),
		Failures:       make([]FailureSummary, len(failures)),
	}
	for i, d := range plan.Directives {
		out.Directives[i] = StoredDirective{ID: d.ID, Type: d.Type, Offset: d.Offset.String()}
	}
	for i, t := range tasks {
		out.Tasks[i] = StoredTask{
			Name:      t.Name,
			Type:      t.ActivityType,
			Directive: t.Directive,
			Status:    t.Status.String(),
			Started:   t.Started.String(),
			Finished:  t.Finished.String(),
		}
	}
	for i, f := range failures {
		out.Failures[i] = FailureSummary{
			Directive: f.Directive,
			Task:      f.Task,
			Code:      string(f.Code),
			Time:      f.Time.String(),
			Message:   strings.Join(f.Messages, "; "),
		}
	}

	if opts.Resource != "" {
		samples, err := st.ReadSamples(ctx, runID, opts.Resource)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read samples", err)
		}
		if len(samples) == 0 {
			return outputCommandError(formatter, ErrCodeGeneric,
				fmt.Sprintf("no samples of %q in run %q", opts.Resource, runID))
		}
		out.Samples = &StoredSamples{Resource: opts.Resource, Points: make([]StoredSample, len(samples))}
		for i, sm := range samples {
			out.Samples.Points[i] = StoredSample{Time: sm.Time.String(), Value: renderValue(sm.Value)}
		}
	}
	return formatter.Success(out)
}

// showRuns lists stored runs, or the runs of one plan under the current
// model version.
func showRuns(ctx context.Context, opts *ShowOptions, st *store.Store, formatter *OutputFormatter) error {
	var runs []store.RunSummary
	var err error
	if opts.PlanHash != "" {
		model := opts.model()
		runs, err = st.RunsForPlan(ctx, opts.PlanHash, model.Name, model.Version)
	} else {
		runs, err = st.ListRuns(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	list := RunList{Runs: make([]RunListEntry, len(runs))}
	for i, r := range runs {
		list.Runs[i] = RunListEntry{RunID: r.ID, Plan: r.PlanName, Horizon: r.Horizon.String(), Halted: r.Error != ""}
	}

	if opts.PlanHash == "" {
		counts, err := st.CountFailuresByCode(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count failures", err)
		}
		if len(counts) > 0 {
			list.FailureCodes = make(map[string]int, len(counts))
			for code, n := range counts {
				list.FailureCodes[string(code)] = n
			}
		}
	}
	return formatter.Success(list)
}
