package engine

import (
	"container/heap"

	"github.com/roach88/orbit/internal/duration"
)

// resumption is one pending wake-up of a task.
type resumption struct {
	at   duration.Duration
	seq  int64
	task *task
}

// agenda is the time-ordered queue of pending resumptions.
//
// Entries are ordered by simulated time, then by the sequence number they
// were scheduled with. The driver pops one instant at a time; entries
// pushed for that same instant while a batch runs land in the next batch.
type agenda struct {
	clock *Clock
	items resumptions
}

func newAgenda(clock *Clock) *agenda {
	return &agenda{clock: clock}
}

// schedule queues t to resume at instant at.
func (a *agenda) schedule(t *task, at duration.Duration) {
	heap.Push(&a.items, resumption{at: at, seq: a.clock.Next(), task: t})
}

// Len is the number of pending resumptions.
func (a *agenda) Len() int { return len(a.items) }

// next returns the earliest pending instant.
func (a *agenda) next() (duration.Duration, bool) {
	if len(a.items) == 0 {
		return 0, false
	}
	return a.items[0].at, true
}

// popAt removes every resumption due at instant at, in sequence order.
func (a *agenda) popAt(at duration.Duration) []*task {
	var out []*task
	for len(a.items) > 0 && a.items[0].at == at {
		r := heap.Pop(&a.items).(resumption)
		out = append(out, r.task)
	}
	return out
}

// drain removes and returns every pending task, earliest first.
func (a *agenda) drain() []*task {
	out := make([]*task, 0, len(a.items))
	for len(a.items) > 0 {
		out = append(out, heap.Pop(&a.items).(resumption).task)
	}
	return out
}

type resumptions []resumption

func (r resumptions) Len() int { return len(r) }

func (r resumptions) Less(i, j int) bool {
	if r[i].at != r[j].at {
		return r[i].at < r[j].at
	}
	return r[i].seq < r[j].seq
}

func (r resumptions) Swap(i, j int) { r[i], r[j] = r[j], r[i] }

func (r *resumptions) Push(x any) { *r = append(*r, x.(resumption)) }

func (r *resumptions) Pop() any {
	old := *r
	n := len(old)
	item := old[n-1]
	*r = old[:n-1]
	return item
}
