package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

// Results is what a simulation produces.
//
// Samples[name][i] is the value of resource name at Timestamps[i].
// Horizon is the last instant the results cover: the requested duration
// on success, or the instant before a halting error.
type Results struct {
	RunID          string
	Model          string
	ModelVersion   string
	Start          time.Time
	Duration       duration.Duration
	Horizon        duration.Duration
	SamplingPeriod duration.Duration

	Timestamps []duration.Duration
	Samples    map[string][]ir.Value
	Profiles   map[string]resource.Profile

	Tasks    []TaskRecord
	Failures []Failure
	Points   int
}

// TaskRecord summarizes one task at the end of a run. Started is -1 for a
// task that never ran; Finished is -1 for one that never settled.
type TaskRecord struct {
	Name         string
	ActivityType string
	Directive    string
	Status       TaskStatus
	Started      duration.Duration
	Finished     duration.Duration
}

// Failure is a structured, non-retried problem reported by a run.
type Failure struct {
	Directive    string
	Task         string
	ActivityType string
	Code         RuntimeErrorCode
	Time         duration.Duration
	Messages     []string
}

func newFailure(directive, taskName, activityType string, at duration.Duration, err error) Failure {
	f := Failure{
		Directive:    directive,
		Task:         taskName,
		ActivityType: activityType,
		Code:         ErrCodeTaskFailed,
		Time:         at,
		Messages:     []string{err.Error()},
	}
	var re *RuntimeError
	var pe *ParameterError
	switch {
	case errors.As(err, &pe):
		f.Code = ErrCodeInvalidParameters
		f.Messages = append([]string(nil), pe.Messages...)
	case errors.As(err, &re):
		f.Code = re.Code
		f.Messages = []string{re.Message}
	case IsStepsExceededError(err):
		f.Code = ErrCodeStepsExceeded
	}
	return f
}

// Sample returns the sampled values of one resource.
func (r *Results) Sample(name string) ([]ir.Value, bool) {
	v, ok := r.Samples[name]
	return v, ok
}

// Task finds a task record by name.
func (r *Results) Task(name string) (TaskRecord, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskRecord{}, false
}

// Windows solves cond over the whole run for one resource.
func (r *Results) Windows(name string, cond resource.Condition) (resource.Windows, error) {
	p, ok := r.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("no profile for resource %q", name)
	}
	if r.Horizon < 0 {
		return nil, nil
	}
	return resource.WindowsOver(p, cond, resource.Span(0, r.Horizon))
}

// ToValue is the wire form of the results, used for golden files, the run
// store and the results cache. Map keys are emitted canonically by
// ir.MarshalCanonical.
func (r *Results) ToValue() ir.Value {
	timestamps := make(ir.List, len(r.Timestamps))
	for i, ts := range r.Timestamps {
		timestamps[i] = ir.Int(ts)
	}

	samples := ir.Map{}
	for name, values := range r.Samples {
		samples[name] = ir.List(append([]ir.Value(nil), values...))
	}

	profiles := ir.Map{}
	for name, p := range r.Profiles {
		segments := make(ir.List, len(p.Segments))
		for i, s := range p.Segments {
			segments[i] = ir.Map{
				"start":    ir.Int(s.Start),
				"dynamics": resource.Serialize(s.Dynamics),
			}
		}
		profiles[name] = ir.Map{"segments": segments, "end": ir.Int(p.End)}
	}

	tasks := make(ir.List, len(r.Tasks))
	for i, t := range r.Tasks {
		tasks[i] = ir.Map{
			"name":          ir.String(t.Name),
			"activity_type": ir.String(t.ActivityType),
			"directive":     ir.String(t.Directive),
			"status":        ir.String(t.Status.String()),
			"started":       ir.Int(t.Started),
			"finished":      ir.Int(t.Finished),
		}
	}

	failures := make(ir.List, len(r.Failures))
	for i, f := range r.Failures {
		messages := make(ir.List, len(f.Messages))
		for j, m := range f.Messages {
			messages[j] = ir.String(m)
		}
		failures[i] = ir.Map{
			"directive":     ir.String(f.Directive),
			"task":          ir.String(f.Task),
			"activity_type": ir.String(f.ActivityType),
			"code":          ir.String(string(f.Code)),
			"time":          ir.Int(f.Time),
			"messages":      messages,
		}
	}

	return ir.Map{
		"run_id":          ir.String(r.RunID),
		"model":           ir.String(r.Model),
		"model_version":   ir.String(r.ModelVersion),
		"start":           ir.String(r.Start.UTC().Format(time.RFC3339Nano)),
		"duration":        ir.Int(r.Duration),
		"horizon":         ir.Int(r.Horizon),
		"sampling_period": ir.Int(r.SamplingPeriod),
		"timestamps":      timestamps,
		"samples":         samples,
		"profiles":        profiles,
		"tasks":           tasks,
		"failures":        failures,
		"points":          ir.Int(r.Points),
	}
}

// ResultsFromValue is the inverse of ToValue.
func ResultsFromValue(v ir.Value) (*Results, error) {
	m, ok := v.(ir.Map)
	if !ok {
		return nil, fmt.Errorf("results: expected map, got %s", ir.TypeName(v))
	}
	d := decoder{m: m}

	r := &Results{
		RunID:          d.str("run_id"),
		Model:          d.str("model"),
		ModelVersion:   d.str("model_version"),
		Duration:       d.dur("duration"),
		Horizon:        d.dur("horizon"),
		SamplingPeriod: d.dur("sampling_period"),
		Points:         int(d.dur("points")),
	}
	if s := d.str("start"); s != "" {
		start, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("results: start: %w", err)
		}
		r.Start = start
	}

	for _, ts := range d.list("timestamps") {
		n, ok := ts.(ir.Int)
		if !ok {
			return nil, fmt.Errorf("results: timestamp %v is not an int", ts)
		}
		r.Timestamps = append(r.Timestamps, duration.Duration(n))
	}

	if samples := d.sub("samples"); samples != nil {
		r.Samples = make(map[string][]ir.Value, len(samples))
		for name, values := range samples {
			list, ok := values.(ir.List)
			if !ok {
				return nil, fmt.Errorf("results: samples %q: expected list", name)
			}
			r.Samples[name] = []ir.Value(list)
		}
	}

	if profiles := d.sub("profiles"); profiles != nil {
		r.Profiles = make(map[string]resource.Profile, len(profiles))
		for name, raw := range profiles {
			pm, ok := raw.(ir.Map)
			if !ok {
				return nil, fmt.Errorf("results: profile %q: expected map", name)
			}
			pd := decoder{m: pm}
			p := resource.Profile{Name: name, End: pd.dur("end")}
			for _, seg := range pd.list("segments") {
				sm, ok := seg.(ir.Map)
				if !ok {
					return nil, fmt.Errorf("results: profile %q: segment is not a map", name)
				}
				dyn, err := resource.Deserialize(sm["dynamics"])
				if err != nil {
					return nil, fmt.Errorf("results: profile %q: %w", name, err)
				}
				p.Segments = append(p.Segments, resource.Segment{
					Start:    (&decoder{m: sm}).dur("start"),
					Dynamics: dyn,
				})
			}
			r.Profiles[name] = p
		}
	}

	for _, raw := range d.list("tasks") {
		tm, ok := raw.(ir.Map)
		if !ok {
			return nil, fmt.Errorf("results: task is not a map")
		}
		td := decoder{m: tm}
		status, err := ParseTaskStatus(td.str("status"))
		if err != nil {
			return nil, err
		}
		r.Tasks = append(r.Tasks, TaskRecord{
			Name:         td.str("name"),
			ActivityType: td.str("activity_type"),
			Directive:    td.str("directive"),
			Status:       status,
			Started:      td.dur("started"),
			Finished:     td.dur("finished"),
		})
	}

	for _, raw := range d.list("failures") {
		fm, ok := raw.(ir.Map)
		if !ok {
			return nil, fmt.Errorf("results: failure is not a map")
		}
		fd := decoder{m: fm}
		f := Failure{
			Directive:    fd.str("directive"),
			Task:         fd.str("task"),
			ActivityType: fd.str("activity_type"),
			Code:         RuntimeErrorCode(fd.str("code")),
			Time:         fd.dur("time"),
		}
		for _, msg := range fd.list("messages") {
			if s, ok := msg.(ir.String); ok {
				f.Messages = append(f.Messages, string(s))
			}
		}
		r.Failures = append(r.Failures, f)
	}

	if d.err != nil {
		return nil, d.err
	}
	return r, nil
}

// ParseTaskStatus is the inverse of TaskStatus.String.
func ParseTaskStatus(s string) (TaskStatus, error) {
	for st := StatusCreated; st <= StatusFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("results: unknown task status %q", s)
}

// decoder reads typed fields from a map and keeps the first error.
type decoder struct {
	m   ir.Map
	err error
}

func (d *decoder) fail(key, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("results: field %q: expected %s, got %s", key, want, ir.TypeName(d.m[key]))
	}
}

func (d *decoder) str(key string) string {
	v, present := d.m[key]
	if !present {
		return ""
	}
	s, ok := v.(ir.String)
	if !ok {
		d.fail(key, "string")
	}
	return string(s)
}

func (d *decoder) dur(key string) duration.Duration {
	v, present := d.m[key]
	if !present {
		return 0
	}
	n, ok := v.(ir.Int)
	if !ok {
		d.fail(key, "int")
	}
	return duration.Duration(n)
}

func (d *decoder) list(key string) ir.List {
	v, present := d.m[key]
	if !present {
		return nil
	}
	l, ok := v.(ir.List)
	if !ok {
		d.fail(key, "list")
	}
	return l
}

func (d *decoder) sub(key string) ir.Map {
	v, present := d.m[key]
	if !present {
		return nil
	}
	m, ok := v.(ir.Map)
	if !ok {
		d.fail(key, "map")
	}
	return m
}
