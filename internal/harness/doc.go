// Package harness runs simulation scenarios and checks their results.
//
// A scenario names a plan, runs it against a model with a fixed run id and
// asserts on the sampled resources, task records and failures of the run.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	model: orbit-demo
//	plan: ../plans/pass.cue    # or an inline schedule:
//	plan_name: pass            # when the file defines several plans
//	sample: 1m
//	expect_error: effect_conflict
//	schedule:
//	  start: "2030-01-01T00:00:00Z"
//	  duration: 10m
//	  activities:
//	    - { id: obs, type: observe, offset: 1m, args: { target: m31 } }
//	assertions:
//	  - { type: sample, resource: battery, at: 1m, value: 36120 }
//	  - { type: task, task: obs, status: completed, finished: 190s }
//	  - { type: failure, code: TASK_FAILED, directive: obs }
//	  - { type: failure_count, count: 0 }
//	  - { type: windows, resource: data, min: 100, windows: [[140s, 400s]] }
//	  - { type: horizon, at: 10m }
//
// Durations are written in Go syntax ("90s", "1h30m") or as integer
// microseconds.
//
// # Assertion Types
//
//   - sample: the resource's sampled value at an instant
//   - task: a task's status, and optionally its start and finish
//   - failure: a failure with the code was reported
//   - failure_count: exactly count failures were reported
//   - windows: the exact windows where a resource meets a condition
//   - horizon: how far the results reach
//
// # Deterministic Testing
//
// Every run uses a fixed run id and discards engine logs, so a scenario
// produces byte-identical results across runs. Results are snapshotted as
// canonical JSON and compared against golden files with goldie, or by
// RunSuite against a golden/ directory next to each scenario file.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/pass.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
