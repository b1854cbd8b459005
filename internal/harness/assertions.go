package harness

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

// realTolerance is the relative tolerance for comparing numeric samples.
const realTolerance = 1e-9

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Context  []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\nContext:\n")
		for _, line := range e.Context {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}

	return buf.String()
}

// assertSample checks the sampled value of a resource at one instant.
func assertSample(res *engine.Results, a Assertion) error {
	samples, ok := res.Sample(a.Resource)
	if !ok {
		return &AssertionError{
			Type:     AssertSample,
			Expected: fmt.Sprintf("samples of %s", a.Resource),
			Actual:   fmt.Sprintf("no such resource; have %s", strings.Join(sortedResources(res), ", ")),
		}
	}

	at := a.At.Value()
	idx := -1
	for i, ts := range res.Timestamps {
		if ts == at {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &AssertionError{
			Type:     AssertSample,
			Expected: fmt.Sprintf("a sample of %s at %s", a.Resource, at),
			Actual:   fmt.Sprintf("no sample at %s (period %s, horizon %s)", at, res.SamplingPeriod, res.Horizon),
		}
	}

	want, err := ir.FromGo(a.Value)
	if err != nil {
		return fmt.Errorf("sample assertion on %s: %w", a.Resource, err)
	}
	got := samples[idx]
	if !valuesMatch(want, got) {
		return &AssertionError{
			Type:     AssertSample,
			Expected: fmt.Sprintf("%s = %s at %s", a.Resource, render(want), at),
			Actual:   fmt.Sprintf("%s = %s", a.Resource, render(got)),
			Context:  sampleContext(res, samples),
		}
	}
	return nil
}

// assertTask checks a task record's status and times.
func assertTask(res *engine.Results, a Assertion) error {
	rec, ok := res.Task(a.Task)
	if !ok {
		names := make([]string, len(res.Tasks))
		for i, t := range res.Tasks {
			names[i] = t.Name
		}
		return &AssertionError{
			Type:     AssertTask,
			Expected: fmt.Sprintf("task %s", a.Task),
			Actual:   "not found",
			Context:  names,
		}
	}

	want, err := engine.ParseTaskStatus(a.Status)
	if err != nil {
		return fmt.Errorf("task assertion on %s: %w", a.Task, err)
	}
	if rec.Status != want {
		return &AssertionError{
			Type:     AssertTask,
			Expected: fmt.Sprintf("task %s %s", a.Task, want),
			Actual:   fmt.Sprintf("task %s %s", a.Task, rec.Status),
		}
	}
	if a.Started != nil && rec.Started != a.Started.Value() {
		return &AssertionError{
			Type:     AssertTask,
			Expected: fmt.Sprintf("task %s started at %s", a.Task, a.Started.Value()),
			Actual:   fmt.Sprintf("started at %s", rec.Started),
		}
	}
	if a.Finished != nil && rec.Finished != a.Finished.Value() {
		return &AssertionError{
			Type:     AssertTask,
			Expected: fmt.Sprintf("task %s finished at %s", a.Task, a.Finished.Value()),
			Actual:   fmt.Sprintf("finished at %s", rec.Finished),
		}
	}
	return nil
}

// assertFailure checks that a failure with the code was reported, for the
// directive when one is named.
func assertFailure(res *engine.Results, a Assertion) error {
	for _, f := range res.Failures {
		if string(f.Code) == a.Code && (a.Directive == "" || f.Directive == a.Directive) {
			return nil
		}
	}

	expected := fmt.Sprintf("failure %s", a.Code)
	if a.Directive != "" {
		expected += " for " + a.Directive
	}
	return &AssertionError{
		Type:     AssertFailure,
		Expected: expected,
		Actual:   "not reported",
		Context:  failureContext(res),
	}
}

// assertFailureCount checks the number of reported failures.
func assertFailureCount(res *engine.Results, a Assertion) error {
	if len(res.Failures) != *a.Count {
		return &AssertionError{
			Type:     AssertFailureCount,
			Expected: fmt.Sprintf("%d failures", *a.Count),
			Actual:   fmt.Sprintf("%d failures", len(res.Failures)),
			Context:  failureContext(res),
		}
	}
	return nil
}

// assertWindows solves the condition over the run and compares the exact
// windows.
func assertWindows(res *engine.Results, a Assertion) error {
	cond, err := assertionCondition(a)
	if err != nil {
		return fmt.Errorf("windows assertion on %s: %w", a.Resource, err)
	}
	got, err := res.Windows(a.Resource, cond)
	if err != nil {
		return &AssertionError{
			Type:     AssertWindows,
			Expected: fmt.Sprintf("windows where %s %s", a.Resource, cond),
			Actual:   err.Error(),
		}
	}

	want := make([]resource.Window, len(a.Windows))
	for i, w := range a.Windows {
		want[i] = resource.Span(w[0].Value(), w[1].Value())
	}
	wantSet := resource.NewWindows(want...)

	if wantSet.String() != got.String() {
		return &AssertionError{
			Type:     AssertWindows,
			Expected: fmt.Sprintf("%s %s during %s", a.Resource, cond, wantSet),
			Actual:   fmt.Sprintf("during %s", got),
		}
	}
	return nil
}

// assertionCondition builds the condition of a windows assertion.
func assertionCondition(a Assertion) (resource.Condition, error) {
	if a.Equals != nil {
		v, err := ir.FromGo(a.Equals)
		if err != nil {
			return nil, err
		}
		return resource.DiscreteEquals(v), nil
	}
	iv := resource.Everything()
	if a.Min != nil {
		iv.Min = *a.Min
	}
	if a.Max != nil {
		iv.Max = *a.Max
	}
	if iv.IsEmpty() {
		return nil, fmt.Errorf("min %v exceeds max %v", iv.Min, iv.Max)
	}
	return resource.RealWithin(iv), nil
}

// assertHorizon checks how far the results reach.
func assertHorizon(res *engine.Results, a Assertion) error {
	if res.Horizon != a.At.Value() {
		return &AssertionError{
			Type:     AssertHorizon,
			Expected: fmt.Sprintf("horizon %s", a.At.Value()),
			Actual:   fmt.Sprintf("horizon %s", res.Horizon),
		}
	}
	return nil
}

// valuesMatch compares an expected value with a sampled one. Numbers
// compare by value within a relative tolerance, so "36000" matches a real
// battery level; everything else compares exactly.
func valuesMatch(want, got ir.Value) bool {
	w, wok := ir.AsReal(want)
	g, gok := ir.AsReal(got)
	if wok && gok {
		return math.Abs(w-g) <= realTolerance*math.Max(1, math.Abs(w))
	}
	return ir.Equal(want, got)
}

func render(v ir.Value) string {
	data, err := ir.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func sortedResources(res *engine.Results) []string {
	names := make([]string, 0, len(res.Samples))
	for name := range res.Samples {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func sampleContext(res *engine.Results, samples []ir.Value) []string {
	lines := make([]string, len(samples))
	for i, v := range samples {
		lines[i] = fmt.Sprintf("%s: %s", res.Timestamps[i], render(v))
	}
	return lines
}

func failureContext(res *engine.Results) []string {
	lines := make([]string, len(res.Failures))
	for i, f := range res.Failures {
		lines[i] = fmt.Sprintf("%s %s at %s: %s", f.Code, f.Directive, f.Time, strings.Join(f.Messages, "; "))
	}
	return lines
}

// EvaluateAssertions evaluates all assertions against the results.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(res *engine.Results, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSample:
			err = assertSample(res, assertion)
		case AssertTask:
			err = assertTask(res, assertion)
		case AssertFailure:
			err = assertFailure(res, assertion)
		case AssertFailureCount:
			err = assertFailureCount(res, assertion)
		case AssertWindows:
			err = assertWindows(res, assertion)
		case AssertHorizon:
			err = assertHorizon(res, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
