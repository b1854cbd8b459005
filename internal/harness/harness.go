package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/compiler"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/mission"
)

// DefaultSample is the sampling period of scenarios that do not set one.
const DefaultSample = duration.Minute

// Harness runs scenarios against one model with a fixed run id and
// discarded logs, so identical scenarios produce identical results.
type Harness struct {
	model     *engine.Model
	logger    *slog.Logger
	stepQuota int
}

// Option configures a Harness.
type Option func(*Harness)

// WithModel sets the model scenarios run against.
//
// Default: the mission model.
func WithModel(m *engine.Model) Option {
	return func(h *Harness) {
		h.model = m
	}
}

// WithLogger sets the logger handed to the engine.
//
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithStepQuota sets the engine's same-instant step quota.
func WithStepQuota(n int) Option {
	return func(h *Harness) {
		h.stepQuota = n
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		stepQuota: engine.DefaultStepQuota,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.model == nil {
		h.model = mission.New()
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	return New(opts...).Run(ctx, scenario)
}

// Run executes a test scenario and returns the result.
//
// An error is returned when the scenario cannot run at all: the plan does
// not compile, the model does not match, or the context is done. A run
// that halts on an effect conflict or step quota is a result, which
// passes only if the scenario expected that error.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario.Model != "" && scenario.Model != h.model.Name {
		return nil, fmt.Errorf("scenario %q is written for model %q, harness runs %q",
			scenario.Name, scenario.Model, h.model.Name)
	}

	plan, err := scenarioPlan(scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	sample := DefaultSample
	if scenario.Sample != nil {
		sample = scenario.Sample.Value()
	}

	eng, err := engine.New(h.model,
		engine.WithLogger(h.logger),
		engine.WithStepQuota(h.stepQuota),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	res, simErr := eng.SimulatePlan(ctx, *plan, sample)
	if res == nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, simErr)
	}
	if simErr != nil && (errors.Is(simErr, context.Canceled) || errors.Is(simErr, context.DeadlineExceeded)) {
		return nil, simErr
	}

	result := NewResult()
	result.Results = res
	result.Halted = simErr

	got := haltKind(simErr)
	switch {
	case simErr != nil && got == "":
		result.AddError(fmt.Sprintf("simulation failed: %v", simErr))
	case got != scenario.ExpectError && scenario.ExpectError == "":
		result.AddError(fmt.Sprintf("simulation halted unexpectedly: %v", simErr))
	case got != scenario.ExpectError:
		result.AddError(fmt.Sprintf("expected simulation to halt with %s, got %s", scenario.ExpectError, describeHalt(simErr)))
	}

	for _, msg := range EvaluateAssertions(res, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors),
	)
	return result, nil
}

// scenarioPlan compiles the scenario's plan file or converts its inline
// schedule.
func scenarioPlan(s *Scenario) (*ir.Plan, error) {
	if s.Plan != "" {
		return compiler.LoadPlan(s.Plan, s.PlanName)
	}

	start, err := time.Parse(time.RFC3339Nano, s.Schedule.Start)
	if err != nil {
		return nil, fmt.Errorf("schedule.start: %w", err)
	}
	plan := &ir.Plan{
		Name:       s.Name,
		Start:      start,
		Duration:   s.Schedule.Duration.Value(),
		Directives: make([]ir.Directive, len(s.Schedule.Activities)),
	}
	for i, a := range s.Schedule.Activities {
		args, err := convertArgs(a.Args)
		if err != nil {
			return nil, fmt.Errorf("schedule.activities[%d].args: %w", i, err)
		}
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", a.Type, i+1)
		}
		plan.Directives[i] = ir.Directive{
			ID:     id,
			Offset: a.Offset.Value(),
			Type:   a.Type,
			Args:   args,
		}
	}
	return plan, nil
}

// convertArgs converts YAML-decoded arguments to an ir.Map. YAML integers
// become Int and YAML floats Real.
func convertArgs(args map[string]any) (ir.Map, error) {
	if args == nil {
		return nil, nil
	}
	v, err := ir.FromGo(args)
	if err != nil {
		return nil, err
	}
	return v.(ir.Map), nil
}

// haltKind names a halting error the way scenarios spell it.
func haltKind(err error) string {
	switch {
	case err == nil:
		return ""
	case cell.IsEffectConflict(err):
		return ExpectEffectConflict
	case engine.IsStepsExceededError(err):
		return ExpectStepsExceeded
	default:
		return ""
	}
}

func describeHalt(err error) string {
	if err == nil {
		return "no error"
	}
	return err.Error()
}
