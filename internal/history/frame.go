package history

import (
	"fmt"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/graph"
)

// Event is one effect addressed to a cell.
type Event struct {
	Cell   cell.ID
	Effect any
}

func (e Event) String() string {
	return fmt.Sprintf("%s:%v", e.Cell, e.Effect)
}

// Frame builds the event graph one branch emits during a point. Events
// emitted in order are sequential. A Fork splits off a child branch that
// is concurrent with everything the parent emits afterwards.
type Frame struct {
	tip   graph.Graph[Event]
	forks []fork
}

type fork struct {
	prefix graph.Graph[Event]
	child  *Frame
}

// NewFrame returns an empty frame.
func NewFrame() *Frame { return &Frame{} }

// Emit appends an event after everything emitted so far.
func (f *Frame) Emit(e Event) {
	f.tip = graph.Sequentially(f.tip, graph.Atom(e))
}

// Fork starts a child branch. The child's events follow the parent's
// events so far and run concurrently with the parent's later events.
func (f *Frame) Fork() *Frame {
	child := &Frame{}
	f.forks = append(f.forks, fork{prefix: f.tip, child: child})
	f.tip = graph.Empty[Event]()
	return child
}

// Graph assembles sequentially(prefix, concurrently(child, continuation))
// for every fork, innermost last.
func (f *Frame) Graph() graph.Graph[Event] {
	g := f.tip
	for i := len(f.forks) - 1; i >= 0; i-- {
		fk := f.forks[i]
		g = graph.Sequentially(fk.prefix, graph.Concurrently(fk.child.Graph(), g))
	}
	return g
}
