package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/history"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

// TaskStatus is a task's lifecycle state. Completed and Failed are
// terminal.
type TaskStatus int

const (
	StatusCreated TaskStatus = iota
	StatusRunning
	StatusWaiting
	StatusCompleted
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusRunning:
		return "running"
	case StatusWaiting:
		return "waiting"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("TaskStatus(%d)", int(s))
	}
}

// Terminal reports whether s is Completed or Failed.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type requestKind int

const (
	reqDelay requestKind = iota + 1
	reqWait
	reqSpawn
	reqSettle
)

// request is what a task hands the driver when it yields.
type request struct {
	kind   requestKind
	delay  duration.Duration
	target *task
}

// abortTask unwinds a task body whose coroutine is being stopped.
type abortTask struct{}

// failTask unwinds a task body with an error from inside a helper that
// has no error return.
type failTask struct{ err error }

type task struct {
	seq          int64
	name         string
	activityType string
	directive    string
	run          TaskFunc

	status   TaskStatus
	err      error
	started  duration.Duration
	finished duration.Duration
	// settledAt is the batch in which the task reached a terminal status.
	settledAt int
	waiters   []*task
	children  int

	next func() (request, bool)
	stop func()

	// Per-batch branch state, replaced at the start of every batch.
	view  *history.View
	frame *history.Frame
}

func (t *task) failure() error {
	return &ActivityError{Task: t.name, Err: t.err}
}

// Branch is a handle on a spawned task, used to wait for it.
type Branch struct {
	t *task
}

// Name is the task's path.
func (b *Branch) Name() string { return b.t.name }

// Status is the task's current lifecycle state.
func (b *Branch) Status() TaskStatus { return b.t.status }

// Err is the task's failure, once it has failed.
func (b *Branch) Err() error {
	if b.t.status != StatusFailed {
		return nil
	}
	return b.t.failure()
}

// TaskContext is the explicit handle a task body uses to interact with
// simulated time and cells. It is only valid inside the task it was given
// to.
type TaskContext struct {
	sim   *simulation
	task  *task
	yield func(request) bool
}

// Context returns the simulation's context.
func (tc *TaskContext) Context() context.Context { return tc.sim.ctx }

// Name is the task's path, e.g. "obs-1/slew".
func (tc *TaskContext) Name() string { return tc.task.name }

// Now is the current simulated time since the start of the run.
func (tc *TaskContext) Now() duration.Duration { return tc.sim.now }

// Time is the current simulated time as a wall-clock instant.
func (tc *TaskContext) Time() time.Time {
	return tc.sim.start.Add(tc.sim.now.Std())
}

// Logger returns the simulation logger annotated with the task and the
// simulated time at the moment of the call.
func (tc *TaskContext) Logger() *slog.Logger {
	return tc.sim.logger.With("task", tc.task.name, "sim_time", tc.sim.now.String())
}

// Delay suspends the task for d of simulated time. Delay(0) resumes at
// the same instant in a later step. A negative delay fails the task.
func (tc *TaskContext) Delay(d duration.Duration) {
	if d < 0 {
		panic(failTask{err: fmt.Errorf("negative delay %s", d)})
	}
	tc.suspend(request{kind: reqDelay, delay: d})
}

// Spawn starts fn as a child branch at the current instant. The child
// runs until its first suspension before Spawn returns. Effects the child
// emits are concurrent with everything the parent emits afterwards.
func (tc *TaskContext) Spawn(name string, fn TaskFunc) *Branch {
	return tc.spawn(name, "", fn)
}

func (tc *TaskContext) spawn(name, activityType string, fn TaskFunc) *Branch {
	parent := tc.task
	parent.children++
	if name == "" {
		name = fmt.Sprintf("%d", parent.children)
		if activityType != "" {
			name = activityType + "-" + name
		}
	}
	child := tc.sim.newTask(parent.name+"/"+name, fn)
	child.activityType = activityType
	child.directive = parent.directive
	tc.suspend(request{kind: reqSpawn, target: child})
	return &Branch{t: child}
}

// WaitFor suspends until every branch has completed or failed and its
// effects are committed. It returns the failures joined, or nil.
func (tc *TaskContext) WaitFor(branches ...*Branch) error {
	var errs []error
	for _, b := range branches {
		if b == nil {
			continue
		}
		if b.t == tc.task {
			return fmt.Errorf("task %s cannot wait for itself", tc.task.name)
		}
		for !tc.sim.settled(b.t) {
			tc.suspend(request{kind: reqWait, target: b.t})
		}
		if b.t.status == StatusFailed {
			errs = append(errs, b.t.failure())
		}
	}
	return errors.Join(errs...)
}

// Call spawns fn and waits for it.
func (tc *TaskContext) Call(name string, fn TaskFunc) error {
	return tc.WaitFor(tc.Spawn(name, fn))
}

// SpawnActivity instantiates a registered activity type as a child branch.
// An empty name defaults to the type and a counter. Instantiation errors
// are returned without spawning anything.
func (tc *TaskContext) SpawnActivity(name, activityType string, args ir.Map) (*Branch, error) {
	fn, err := tc.sim.model.Activities.Instantiate(activityType, args)
	if err != nil {
		return nil, err
	}
	return tc.spawn(name, activityType, fn), nil
}

// CallActivity instantiates a registered activity type and waits for it.
func (tc *TaskContext) CallActivity(activityType string, args ir.Map) error {
	b, err := tc.SpawnActivity("", activityType, args)
	if err != nil {
		return err
	}
	return tc.WaitFor(b)
}

// Resource reads the current dynamics of a registered resource.
func (tc *TaskContext) Resource(name string) (resource.Dynamics, error) {
	entry, ok := tc.sim.model.Resources.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown resource %q", name)
	}
	s, err := tc.read(entry.Resource.Cell())
	if err != nil {
		return nil, err
	}
	return entry.Sample(s.Get())
}

// Get reads a cell as seen by the calling task: the committed state plus
// the task's own earlier effects. If a concurrent branch has written the
// cell at this instant, the task first suspends until that write is
// committed.
func Get[V, F any](tc *TaskContext, ref cell.Ref[V, F]) (V, error) {
	s, err := tc.read(ref.ID())
	if err != nil {
		var zero V
		return zero, err
	}
	return ref.Value(s)
}

// Emit applies effect to the cell in the task's branch and records it in
// the branch's event graph.
func Emit[V, F any](tc *TaskContext, ref cell.Ref[V, F], effect F) error {
	return tc.emit(ref.ID(), effect)
}

// MustEmit is like Emit but fails the task on error.
func MustEmit[V, F any](tc *TaskContext, ref cell.Ref[V, F], effect F) {
	if err := tc.emit(ref.ID(), effect); err != nil {
		panic(failTask{err: err})
	}
}

func (tc *TaskContext) read(id cell.ID) (cell.State, error) {
	for tc.sim.unresolved(id, tc.task.view) {
		tc.suspend(request{kind: reqSettle})
	}
	s, ok := tc.task.view.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown cell %q", id)
	}
	return s, nil
}

func (tc *TaskContext) emit(id cell.ID, effect any) error {
	t := tc.task
	s, err := t.view.Mutable(id)
	if err != nil {
		return err
	}
	if err := s.ApplyEffect(effect); err != nil {
		return err
	}
	t.frame.Emit(history.Event{Cell: id, Effect: effect})
	tc.sim.noteWrite(id, t.view)
	return nil
}

func (tc *TaskContext) suspend(req request) {
	if !tc.yield(req) {
		panic(abortTask{})
	}
}

// newTask wraps fn in a coroutine. The coroutine does not start until the
// driver first resumes it.
func (s *simulation) newTask(name string, fn TaskFunc) *task {
	t := &task{
		seq:      s.clock.Next(),
		name:     name,
		run:      fn,
		status:   StatusCreated,
		finished: -1,
	}
	body := func(yield func(request) bool) {
		tc := &TaskContext{sim: s, task: t, yield: yield}
		defer func() {
			if r := recover(); r != nil {
				switch sig := r.(type) {
				case abortTask:
				case failTask:
					t.err = sig.err
				default:
					t.err = fmt.Errorf("panic: %v", r)
				}
			}
		}()
		t.err = t.run(tc)
	}
	t.next, t.stop = iter.Pull(body)
	s.tasks = append(s.tasks, t)
	return t
}
