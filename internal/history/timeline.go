package history

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/graph"
)

// Point is one committed discrete step. Several points may share a Time;
// Step orders them within the instant.
type Point struct {
	Index   int
	Time    duration.Duration
	Step    int
	Segment graph.Graph[Event]
}

// Timeline is the committed history of a set of cells.
//
// The head holds the cells as of the latest point and is what new views
// read from. Queries about earlier points replay segments from the origin,
// starting from the nearest checkpoint when checkpoints are enabled.
type Timeline struct {
	order   []cell.ID
	origin  map[cell.ID]cell.State
	head    map[cell.ID]cell.State
	now     duration.Duration
	points  []Point
	every   int
	keeps   []checkpoint
	replays int
}

type checkpoint struct {
	index int
	time  duration.Duration
	cells map[cell.ID]cell.State
}

// TimelineOption configures a Timeline.
type TimelineOption func(*Timeline)

// WithCheckpointInterval snapshots every cell after every n points so
// queries replay at most n segments. Zero disables checkpoints.
func WithCheckpointInterval(n int) TimelineOption {
	return func(t *Timeline) {
		if n > 0 {
			t.every = n
		}
	}
}

// NewTimeline starts a history at time zero with the given cells, which
// are cloned. Cell IDs must be unique.
func NewTimeline(cells []cell.State, opts ...TimelineOption) (*Timeline, error) {
	t := &Timeline{
		origin: make(map[cell.ID]cell.State, len(cells)),
		head:   make(map[cell.ID]cell.State, len(cells)),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, c := range cells {
		id := c.ID()
		if _, dup := t.origin[id]; dup {
			return nil, fmt.Errorf("duplicate cell %q", id)
		}
		t.order = append(t.order, id)
		t.origin[id] = c.Clone()
		t.head[id] = c.Clone()
	}
	return t, nil
}

// Lookup implements Source over the head.
func (t *Timeline) Lookup(id cell.ID) (cell.State, bool) {
	s, ok := t.head[id]
	return s, ok
}

// Cells lists cell IDs in registration order.
func (t *Timeline) Cells() []cell.ID { return slices.Clone(t.order) }

// Now is the time the head has been stepped to.
func (t *Timeline) Now() duration.Duration { return t.now }

// Len is the number of committed points.
func (t *Timeline) Len() int { return len(t.points) }

// Point returns the committed point at index.
func (t *Timeline) Point(index int) Point { return t.points[index] }

// Points returns all committed points.
func (t *Timeline) Points() []Point { return slices.Clone(t.points) }

// Advance steps every head cell forward to time to.
func (t *Timeline) Advance(to duration.Duration) error {
	if to < t.now {
		return fmt.Errorf("cannot advance from %s back to %s", t.now, to)
	}
	elapsed := to - t.now
	if elapsed == 0 {
		return nil
	}
	for _, id := range t.order {
		t.head[id].Step(elapsed)
	}
	t.now = to
	return nil
}

// Commit applies segment to the head as a new point at the current time.
// Each cell receives the subgraph of events addressed to it and reconciles
// it under its own policy. If any cell rejects its subgraph, nothing is
// committed and the error (usually a *cell.EffectConflict) is returned.
func (t *Timeline) Commit(segment graph.Graph[Event]) (Point, error) {
	parts := split(segment)
	staged := make([]cell.State, len(parts))
	for i, part := range parts {
		s, ok := t.head[part.id]
		if !ok {
			return Point{}, fmt.Errorf("event for unknown cell %q", part.id)
		}
		next := s.Clone()
		if err := next.ApplyEvents(part.events, t.now); err != nil {
			return Point{}, err
		}
		staged[i] = next
	}
	for i, part := range parts {
		t.head[part.id] = staged[i]
	}

	step := 0
	if n := len(t.points); n > 0 && t.points[n-1].Time == t.now {
		step = t.points[n-1].Step + 1
	}
	p := Point{Index: len(t.points), Time: t.now, Step: step, Segment: segment}
	t.points = append(t.points, p)

	if t.every > 0 && len(t.points)%t.every == 0 {
		t.keeps = append(t.keeps, checkpoint{index: p.Index, time: p.Time, cells: cloneAll(t.head)})
	}
	return p, nil
}

type projection struct {
	id     cell.ID
	events graph.Graph[any]
}

// split projects a mixed segment onto each cell it touches, in order of
// each cell's first event.
func split(segment graph.Graph[Event]) []projection {
	var out []projection
	seen := make(map[cell.ID]bool)
	for _, e := range graph.Atoms(segment) {
		if seen[e.Cell] {
			continue
		}
		seen[e.Cell] = true
		out = append(out, projection{id: e.Cell, events: project(segment, e.Cell)})
	}
	return out
}

func project(segment graph.Graph[Event], id cell.ID) graph.Graph[any] {
	return graph.FilterMap(segment, func(ev Event) (any, bool) {
		return ev.Effect, ev.Cell == id
	})
}

// ValueAt returns the value of a cell immediately after point index, by
// replay. Index -1 means the origin.
func (t *Timeline) ValueAt(id cell.ID, index int) (any, error) {
	s, err := t.stateAt(id, index)
	if err != nil {
		return nil, err
	}
	return s.Get(), nil
}

// ValueAtTime returns the value of a cell at simulated time at: the state
// after every point with Time <= at, stepped forward to at.
func (t *Timeline) ValueAtTime(id cell.ID, at duration.Duration) (any, error) {
	s, err := t.StateAtTime(id, at)
	if err != nil {
		return nil, err
	}
	return s.Get(), nil
}

// StateAtTime is ValueAtTime returning the reconstructed cell itself.
// The returned state is private to the caller.
func (t *Timeline) StateAtTime(id cell.ID, at duration.Duration) (cell.State, error) {
	index := t.PointAt(at)
	s, err := t.stateAt(id, index)
	if err != nil {
		return nil, err
	}
	from := duration.Zero
	if index >= 0 {
		from = t.points[index].Time
	}
	if at > from {
		s.Step(at - from)
	}
	return s, nil
}

// PointAt returns the index of the last point with Time <= at, or -1.
func (t *Timeline) PointAt(at duration.Duration) int {
	return sort.Search(len(t.points), func(i int) bool { return t.points[i].Time > at }) - 1
}

// Replays counts segments replayed by queries, for observing checkpoint
// effectiveness.
func (t *Timeline) Replays() int { return t.replays }

func (t *Timeline) stateAt(id cell.ID, index int) (cell.State, error) {
	if index < -1 || index >= len(t.points) {
		return nil, fmt.Errorf("point %d out of range [-1, %d)", index, len(t.points))
	}
	base, ok := t.origin[id]
	if !ok {
		return nil, fmt.Errorf("unknown cell %q", id)
	}

	s := base.Clone()
	start, now := 0, duration.Zero
	if k := t.nearestCheckpoint(index); k != nil {
		s = k.cells[id].Clone()
		start, now = k.index+1, k.time
	}

	for i := start; i <= index; i++ {
		p := t.points[i]
		if p.Time > now {
			s.Step(p.Time - now)
			now = p.Time
		}
		if err := s.ApplyEvents(project(p.Segment, id), p.Time); err != nil {
			return nil, fmt.Errorf("replay point %d: %w", i, err)
		}
		t.replays++
	}
	return s, nil
}

func (t *Timeline) nearestCheckpoint(index int) *checkpoint {
	i := sort.Search(len(t.keeps), func(i int) bool { return t.keeps[i].index > index }) - 1
	if i < 0 {
		return nil
	}
	return &t.keeps[i]
}

func cloneAll(cells map[cell.ID]cell.State) map[cell.ID]cell.State {
	out := make(map[cell.ID]cell.State, len(cells))
	for id, s := range cells {
		out[id] = s.Clone()
	}
	return out
}
