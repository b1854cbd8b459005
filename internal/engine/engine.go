package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/graph"
	"github.com/roach88/orbit/internal/history"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

// DefaultCheckpointInterval is how many points pass between timeline
// snapshots used to speed up sampling.
const DefaultCheckpointInterval = 64

// Model is everything a simulation runs against: the cells, the resources
// projected from them, and the activity types a schedule may name.
//
// A Model is a template. Cells are cloned into each run, so one Model can
// serve many simulations, including concurrent ones.
type Model struct {
	Name       string
	Version    string
	Cells      []cell.State
	Resources  *resource.Registry
	Activities *Registry
}

// Validate checks that cell ids are unique and every resource projects a
// cell of the model.
func (m *Model) Validate() error {
	if m == nil {
		return fmt.Errorf("model is nil")
	}
	if m.Activities == nil {
		return fmt.Errorf("model %q has no activity registry", m.Name)
	}
	ids := make(map[cell.ID]bool, len(m.Cells))
	for _, c := range m.Cells {
		if ids[c.ID()] {
			return fmt.Errorf("model %q: duplicate cell %q", m.Name, c.ID())
		}
		ids[c.ID()] = true
	}
	if m.Resources != nil {
		for _, e := range m.Resources.Entries() {
			if !ids[e.Resource.Cell()] {
				return fmt.Errorf("model %q: resource %q projects unknown cell %q", m.Name, e.Name, e.Resource.Cell())
			}
		}
	}
	return nil
}

// Engine runs simulations of one model.
type Engine struct {
	model           *Model
	stepQuota       int
	checkpointEvery int
	logger          *slog.Logger
	runIDs          RunIDGenerator
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithStepQuota sets the maximum number of batches at one instant.
//
// Default: 1000 (DefaultStepQuota). Zero disables the guard.
func WithStepQuota(n int) Option {
	return func(e *Engine) {
		e.stepQuota = n
	}
}

// WithCheckpointInterval sets how often the timeline snapshots cells.
// Zero makes every query replay from the origin.
func WithCheckpointInterval(n int) Option {
	return func(e *Engine) {
		e.checkpointEvery = n
	}
}

// WithLogger routes engine and task logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRunIDGenerator sets how runs are named. Tests use a FixedGenerator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.runIDs = g
		}
	}
}

// New creates an Engine for model.
func New(model *Model, opts ...Option) (*Engine, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		model:           model,
		stepQuota:       DefaultStepQuota,
		checkpointEvery: DefaultCheckpointInterval,
		logger:          slog.Default(),
		runIDs:          UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Model returns the engine's model.
func (e *Engine) Model() *Model { return e.model }

// Simulate creates an Engine for model and runs one simulation.
func Simulate(
	ctx context.Context,
	model *Model,
	schedule []ir.Directive,
	start time.Time,
	total duration.Duration,
	samplingPeriod duration.Duration,
	opts ...Option,
) (*Results, error) {
	e, err := New(model, opts...)
	if err != nil {
		return nil, err
	}
	return e.Simulate(ctx, schedule, start, total, samplingPeriod)
}

// SimulatePlan runs a compiled plan.
func (e *Engine) SimulatePlan(ctx context.Context, plan ir.Plan, samplingPeriod duration.Duration) (*Results, error) {
	return e.Simulate(ctx, plan.Directives, plan.Start, plan.Duration, samplingPeriod)
}

// Simulate runs schedule from start for total simulated time and samples
// every resource each samplingPeriod.
//
// Directives that cannot be instantiated are reported in Results.Failures
// and the rest of the schedule still runs. Reaching the duration bound is
// not an error: tasks still suspended are reported as waiting.
//
// On an effect conflict, step quota overrun or context cancellation the
// simulation halts. The returned Results cover every instant before the
// one that failed, and the error is returned alongside them.
func (e *Engine) Simulate(
	ctx context.Context,
	schedule []ir.Directive,
	start time.Time,
	total duration.Duration,
	samplingPeriod duration.Duration,
) (res *Results, err error) {
	if total < 0 {
		return nil, fmt.Errorf("simulate: negative duration %s", total)
	}
	if samplingPeriod <= 0 {
		return nil, fmt.Errorf("simulate: sampling period must be positive, got %s", samplingPeriod)
	}

	began := time.Now()
	ctx, span := startSimulateSpan(ctx, e.model.Name, len(schedule))
	defer func() {
		setSimulateSpanResult(span, res, err)
		span.End()
		recordSimulateMetrics(ctx, time.Since(began), e.model.Name, err == nil)
	}()

	tl, err := history.NewTimeline(e.model.Cells, history.WithCheckpointInterval(e.checkpointEvery))
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	clock := NewClock()
	s := &simulation{
		ctx:      ctx,
		model:    e.model,
		logger:   e.logger,
		start:    start,
		end:      total,
		timeline: tl,
		clock:    clock,
		agenda:   newAgenda(clock),
		quota:    NewStepQuota(e.stepQuota),
		writes:   make(map[cell.ID][]*history.View),
		profiles: make(map[string]*resource.Profile),
		results: &Results{
			RunID:          e.runIDs.Generate(),
			Model:          e.model.Name,
			ModelVersion:   e.model.Version,
			Start:          start,
			Duration:       total,
			SamplingPeriod: samplingPeriod,
		},
	}

	s.logger.Info("simulation starting",
		"run_id", s.results.RunID,
		"model", e.model.Name,
		"directives", len(schedule),
		"duration", total.String(),
	)

	if err := s.recordProfiles(); err != nil {
		return nil, err
	}
	s.instantiate(schedule)

	runErr := s.run()
	horizon := total
	if runErr != nil {
		horizon = s.now.Minus(duration.Epsilon)
		s.logger.Error("simulation halted",
			"run_id", s.results.RunID,
			"sim_time", s.now.String(),
			"error", runErr,
		)
	}

	if err := s.finish(horizon, samplingPeriod); err != nil {
		return s.results, err
	}

	s.logger.Info("simulation finished",
		"run_id", s.results.RunID,
		"points", s.results.Points,
		"failures", len(s.results.Failures),
		"horizon", horizon.String(),
	)
	return s.results, runErr
}

// simulation is the state of one run. It is only touched from the
// goroutine that called Simulate and from task coroutines, which never
// run at the same time as the driver.
type simulation struct {
	ctx    context.Context
	model  *Model
	logger *slog.Logger
	start  time.Time
	end    duration.Duration

	timeline *history.Timeline
	clock    *Clock
	agenda   *agenda
	quota    *StepQuota

	now   duration.Duration
	batch int
	// writes records, per cell, the view layers that wrote it during the
	// current batch.
	writes  map[cell.ID][]*history.View
	touched []*task
	tasks   []*task

	profiles map[string]*resource.Profile
	results  *Results
}

// instantiate turns directives into root tasks, in offset order with ties
// kept in schedule order.
func (s *simulation) instantiate(schedule []ir.Directive) {
	type indexed struct {
		pos int
		d   ir.Directive
	}
	sorted := make([]indexed, len(schedule))
	for i, d := range schedule {
		sorted[i] = indexed{pos: i, d: d}
	}
	slices.SortStableFunc(sorted, func(a, b indexed) int {
		switch {
		case a.d.Offset < b.d.Offset:
			return -1
		case a.d.Offset > b.d.Offset:
			return 1
		}
		return 0
	})

	for _, entry := range sorted {
		d := entry.d
		name := d.ID
		if name == "" {
			name = fmt.Sprintf("%s-%d", d.Type, entry.pos+1)
		}

		if d.Offset < 0 {
			s.fail(name, name, d.Type, d.Offset, &RuntimeError{
				Code:         ErrCodeUnconstructableActivity,
				Message:      fmt.Sprintf("negative offset %s", d.Offset),
				Directive:    name,
				ActivityType: d.Type,
			})
			continue
		}

		fn, err := s.model.Activities.Instantiate(d.Type, d.Args)
		if err != nil {
			s.logger.Warn("directive rejected",
				"directive", name,
				"type", d.Type,
				"error", err,
			)
			s.fail(name, name, d.Type, d.Offset, err)
			continue
		}

		t := s.newTask(name, fn)
		t.activityType = d.Type
		t.directive = name
		s.agenda.schedule(t, d.Offset)
	}
}

// run is the driver loop: one batch per iteration until the agenda is
// empty or the next resumption lies past the end.
func (s *simulation) run() error {
	for {
		at, ok := s.agenda.next()
		if !ok || at > s.end {
			return nil
		}
		s.now = at

		if err := s.ctx.Err(); err != nil {
			return err
		}
		if err := s.quota.Check(at); err != nil {
			s.logger.Error("step quota exceeded",
				"sim_time", at.String(),
				"limit", s.quota.Limit(),
			)
			return err
		}
		if err := s.timeline.Advance(at); err != nil {
			return err
		}
		s.batch++
		clear(s.writes)

		if err := s.runBatch(s.agenda.popAt(at)); err != nil {
			return err
		}
	}
}

// runBatch resumes every task due at the current instant, each in its own
// branch, and commits the joined event graph as one point.
func (s *simulation) runBatch(due []*task) error {
	graphs := make([]graph.Graph[history.Event], 0, len(due))
	for _, t := range due {
		t.view = history.NewView(s.timeline)
		t.frame = history.NewFrame()
		s.resume(t)
		graphs = append(graphs, t.frame.Graph())
	}
	defer s.release()

	segment := graph.ConcurrentlyAll(graphs...)
	if segment.IsEmpty() {
		return nil
	}

	p, err := s.timeline.Commit(segment)
	if err != nil {
		if c, ok := cell.AsEffectConflict(err); ok {
			s.logger.Error("effect conflict",
				"cell", string(c.Cell),
				"sim_time", s.now.String(),
				"left", fmt.Sprint(c.Left),
				"right", fmt.Sprint(c.Right),
			)
		}
		return fmt.Errorf("commit at %s: %w", s.now, err)
	}

	s.results.Points++
	recordPoint(s.ctx)
	s.logger.Debug("point committed",
		"index", p.Index,
		"sim_time", p.Time.String(),
		"step", p.Step,
		"events", graph.Size(segment),
	)
	return s.recordProfiles()
}

// release drops the branch views and frames of the batch just finished.
func (s *simulation) release() {
	for _, t := range s.touched {
		t.view = nil
		t.frame = nil
	}
	s.touched = s.touched[:0]
}

// resume runs t until it suspends or finishes. Spawned children run to
// their own first suspension before the parent continues.
func (s *simulation) resume(t *task) {
	if t.status == StatusCreated {
		t.started = s.now
		s.logger.Debug("task started", "task", t.name, "sim_time", s.now.String())
	}
	s.touched = append(s.touched, t)
	t.status = StatusRunning

	for {
		req, ok := t.next()
		if !ok {
			s.settle(t)
			return
		}

		switch req.kind {
		case reqSpawn:
			child := req.target
			parentView, childView := t.view.Fork()
			t.view = parentView
			child.view = childView
			child.frame = t.frame.Fork()
			s.resume(child)
			t.status = StatusRunning

		case reqDelay:
			t.status = StatusWaiting
			s.agenda.schedule(t, s.now.Plus(req.delay))
			return

		case reqSettle:
			t.status = StatusWaiting
			s.agenda.schedule(t, s.now)
			return

		case reqWait:
			t.status = StatusWaiting
			if req.target.status.Terminal() {
				s.agenda.schedule(t, s.now)
			} else {
				req.target.waiters = append(req.target.waiters, t)
			}
			return
		}
	}
}

// settle records a finished task and wakes its waiters in the next batch.
func (s *simulation) settle(t *task) {
	t.finished = s.now
	t.settledAt = s.batch
	if t.err != nil {
		t.status = StatusFailed
		s.logger.Warn("task failed",
			"task", t.name,
			"sim_time", s.now.String(),
			"error", t.err,
		)
		s.fail(t.directive, t.name, t.activityType, s.now, t.err)
	} else {
		t.status = StatusCompleted
		s.logger.Debug("task completed", "task", t.name, "sim_time", s.now.String())
	}
	recordTask(s.ctx, t.status)

	for _, w := range t.waiters {
		s.agenda.schedule(w, s.now)
	}
	t.waiters = nil
}

// settled reports whether t is terminal and its effects are committed.
func (s *simulation) settled(t *task) bool {
	return t.status.Terminal() && t.settledAt < s.batch
}

func (s *simulation) noteWrite(id cell.ID, layer *history.View) {
	layers := s.writes[id]
	if n := len(layers); n > 0 && layers[n-1] == layer {
		return
	}
	s.writes[id] = append(layers, layer)
}

// unresolved reports whether a branch concurrent with view has written id
// during the current batch.
func (s *simulation) unresolved(id cell.ID, view *history.View) bool {
	for _, layer := range s.writes[id] {
		if !view.Sees(layer) {
			return true
		}
	}
	return false
}

func (s *simulation) fail(directive, taskName, activityType string, at duration.Duration, err error) {
	f := newFailure(directive, taskName, activityType, at, err)
	s.results.Failures = append(s.results.Failures, f)
	recordFailure(s.ctx, f.Code)
}

// recordProfiles observes every resource at the current head.
func (s *simulation) recordProfiles() error {
	if s.model.Resources == nil {
		return nil
	}
	for _, e := range s.model.Resources.Entries() {
		st, ok := s.timeline.Lookup(e.Resource.Cell())
		if !ok {
			return fmt.Errorf("resource %q: unknown cell %q", e.Name, e.Resource.Cell())
		}
		d, err := e.Sample(st.Get())
		if err != nil {
			return fmt.Errorf("sample at %s: %w", s.now, err)
		}
		p := s.profiles[e.Name]
		if p == nil {
			p = &resource.Profile{Name: e.Name}
			s.profiles[e.Name] = p
		}
		if err := p.Append(s.now, d); err != nil {
			return err
		}
	}
	return nil
}

// finish stops suspended tasks, then fills in task records, profiles and
// samples up to horizon.
func (s *simulation) finish(horizon, period duration.Duration) error {
	s.agenda.drain()
	for _, t := range s.tasks {
		if !t.status.Terminal() {
			t.stop()
		}
	}

	r := s.results
	r.Horizon = horizon
	r.Tasks = make([]TaskRecord, len(s.tasks))
	for i, t := range s.tasks {
		r.Tasks[i] = TaskRecord{
			Name:         t.name,
			ActivityType: t.activityType,
			Directive:    t.directive,
			Status:       t.status,
			Started:      t.started,
			Finished:     t.finished,
		}
		if t.status == StatusCreated {
			r.Tasks[i].Started = -1
		}
	}

	if s.model.Resources == nil {
		return nil
	}
	entries := s.model.Resources.Entries()
	r.Profiles = make(map[string]resource.Profile, len(entries))
	for _, e := range entries {
		p := *s.profiles[e.Name]
		p.End = horizon
		r.Profiles[e.Name] = p
	}

	r.Samples = make(map[string][]ir.Value, len(entries))
	for ts := duration.Zero; ts <= horizon; {
		r.Timestamps = append(r.Timestamps, ts)
		for _, e := range entries {
			st, err := s.timeline.StateAtTime(e.Resource.Cell(), ts)
			if err != nil {
				return fmt.Errorf("sample %q at %s: %w", e.Name, ts, err)
			}
			d, err := e.Sample(st.Get())
			if err != nil {
				return fmt.Errorf("sample at %s: %w", ts, err)
			}
			r.Samples[e.Name] = append(r.Samples[e.Name], d.ValueAt(0))
		}
		next := ts.Plus(period)
		if next <= ts {
			break
		}
		ts = next
	}
	return nil
}
