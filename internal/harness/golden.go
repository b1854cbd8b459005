package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/orbit/internal/ir"
)

// Snapshot renders a scenario result for golden comparison: the scenario
// name, the full results and the halting error, if any, as canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := ir.Map{
		"scenario": ir.String(scenarioName),
		"results":  result.Results.ToValue(),
	}
	if result.Halted != nil {
		snapshot["halted"] = ir.String(result.Halted.Error())
	}
	return ir.MarshalCanonical(snapshot)
}

// RunWithGolden executes a scenario and compares its results against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the results don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a result against a golden file without re-running
// the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
