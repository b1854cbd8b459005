package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orbit/internal/duration"
)

// Scenario defines a simulation test scenario.
// A scenario names a plan, runs it against a model and asserts on the
// sampled resources, task records and failures of the run.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model, when set, must match the name of the model the harness runs.
	Model string `yaml:"model,omitempty"`

	// Plan is a path to a CUE plan file or directory.
	// Relative paths are resolved against the base path given when loading.
	Plan string `yaml:"plan,omitempty"`

	// PlanName selects one plan when Plan defines several.
	PlanName string `yaml:"plan_name,omitempty"`

	// Schedule is an inline plan, used instead of Plan.
	Schedule *Schedule `yaml:"schedule,omitempty"`

	// Sample is the sampling period. Defaults to one minute.
	Sample *Duration `yaml:"sample,omitempty"`

	// RunID is the fixed run id, so golden results are reproducible.
	// Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// ExpectError names the halting error the run must end with:
	// "effect_conflict" or "steps_exceeded". Empty means the run must
	// reach the end of the plan.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the results.
	Assertions []Assertion `yaml:"assertions"`
}

// Schedule is a plan written inline in a scenario.
type Schedule struct {
	Start      string              `yaml:"start"`
	Duration   Duration            `yaml:"duration"`
	Activities []ScheduledActivity `yaml:"activities"`
}

// ScheduledActivity is one directive of an inline schedule.
type ScheduledActivity struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Offset Duration       `yaml:"offset,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
}

// Assertion validates one aspect of the results.
type Assertion struct {
	// Type specifies the assertion type:
	// - "sample": Resource has Value at instant At
	// - "task": Task has Status, and optionally Started/Finished
	// - "failure": A failure with Code (and Directive, if set) was reported
	// - "failure_count": Exactly Count failures were reported
	// - "windows": Resource satisfies Min/Max (or Equals) over exactly Windows
	// - "horizon": The results cover up to At
	Type string `yaml:"type"`

	Resource string    `yaml:"resource,omitempty"`
	At       *Duration `yaml:"at,omitempty"`
	Value    any       `yaml:"value,omitempty"`

	Task     string    `yaml:"task,omitempty"`
	Status   string    `yaml:"status,omitempty"`
	Started  *Duration `yaml:"started,omitempty"`
	Finished *Duration `yaml:"finished,omitempty"`

	Code      string `yaml:"code,omitempty"`
	Directive string `yaml:"directive,omitempty"`
	Count     *int   `yaml:"count,omitempty"`

	Min     *float64     `yaml:"min,omitempty"`
	Max     *float64     `yaml:"max,omitempty"`
	Equals  any          `yaml:"equals,omitempty"`
	Windows [][]Duration `yaml:"windows,omitempty"`
}

// Assertion type constants.
const (
	AssertSample       = "sample"
	AssertTask         = "task"
	AssertFailure      = "failure"
	AssertFailureCount = "failure_count"
	AssertWindows      = "windows"
	AssertHorizon      = "horizon"
)

// Expected halting errors.
const (
	ExpectEffectConflict = "effect_conflict"
	ExpectStepsExceeded  = "steps_exceeded"
)

// DefaultRunID is the run id of scenarios that do not set one.
const DefaultRunID = "test-run"

// Duration is a simulated duration written as "90s", "1h30m" or integer
// microseconds.
type Duration duration.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	v, err := duration.Parse(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Value returns d as a duration.Duration.
func (d Duration) Value() duration.Duration { return duration.Duration(d) }

// LoadScenario reads and parses a scenario YAML file. A relative plan path
// is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the plan path relative to basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Plan != "" && !filepath.IsAbs(scenario.Plan) && basePath != "" {
		scenario.Plan = filepath.Join(basePath, scenario.Plan)
	}
	if scenario.Plan != "" {
		if _, err := os.Stat(scenario.Plan); os.IsNotExist(err) {
			return nil, &PlanNotFoundError{Scenario: scenario.Name, ResolvedPath: scenario.Plan}
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field validation, which
// catches typos like "assertion:" for "assertions:".
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Plan == "" && s.Schedule == nil:
		return fmt.Errorf("one of plan or schedule is required")
	case s.Plan != "" && s.Schedule != nil:
		return fmt.Errorf("plan and schedule are mutually exclusive")
	case s.PlanName != "" && s.Plan == "":
		return fmt.Errorf("plan_name requires plan")
	}

	if s.Schedule != nil {
		if _, err := time.Parse(time.RFC3339Nano, s.Schedule.Start); err != nil {
			return fmt.Errorf("schedule.start: %w", err)
		}
		if s.Schedule.Duration < 0 {
			return fmt.Errorf("schedule.duration must be non-negative")
		}
		for i, a := range s.Schedule.Activities {
			if a.Type == "" {
				return fmt.Errorf("schedule.activities[%d]: type is required", i)
			}
		}
	}

	if s.Sample != nil && *s.Sample <= 0 {
		return fmt.Errorf("sample must be positive")
	}

	switch s.ExpectError {
	case "", ExpectEffectConflict, ExpectStepsExceeded:
	default:
		return fmt.Errorf("unknown expect_error %q", s.ExpectError)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSample:
		if a.Resource == "" || a.At == nil {
			return fmt.Errorf("assertions[%d]: resource and at are required for sample", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for sample", index)
		}
	case AssertTask:
		if a.Task == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: task and status are required for task", index)
		}
	case AssertFailure:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for failure", index)
		}
	case AssertFailureCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for failure_count", index)
		}
	case AssertWindows:
		if a.Resource == "" {
			return fmt.Errorf("assertions[%d]: resource is required for windows", index)
		}
		if a.Equals == nil && a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: one of min, max or equals is required for windows", index)
		}
		if a.Equals != nil && (a.Min != nil || a.Max != nil) {
			return fmt.Errorf("assertions[%d]: equals excludes min and max", index)
		}
		for j, w := range a.Windows {
			if len(w) != 2 {
				return fmt.Errorf("assertions[%d]: windows[%d] must be [start, end]", index, j)
			}
		}
	case AssertHorizon:
		if a.At == nil {
			return fmt.Errorf("assertions[%d]: at is required for horizon", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
