package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/graph"
)

func newTimeline(t *testing.T, opts ...TimelineOption) *Timeline {
	t.Helper()
	tl, err := NewTimeline([]cell.State{
		cell.NewRegister[int]("mode", 0),
		cell.NewCounter("count", 0),
		cell.NewAccumulator("battery", cell.Volume{Amount: 100, Rate: -1}),
	}, opts...)
	require.NoError(t, err)
	return tl
}

func ev(id cell.ID, effect any) graph.Graph[Event] {
	return graph.Atom(Event{Cell: id, Effect: effect})
}

func TestView_CopyOnWrite(t *testing.T) {
	tl := newTimeline(t)
	root := NewView(tl)

	parent, child := root.Fork()
	assert.Equal(t, 0, child.Owned())

	s, err := child.Mutable("count")
	require.NoError(t, err)
	require.NoError(t, s.ApplyEffect(cell.Add(5)))
	assert.Equal(t, 1, child.Owned(), "only the written cell is duplicated")

	got, ok := child.Get("count")
	require.True(t, ok)
	assert.Equal(t, int64(5), got.Get())

	got, ok = parent.Get("count")
	require.True(t, ok)
	assert.Equal(t, int64(0), got.Get(), "siblings never see each other's writes")

	head, _ := tl.Lookup("count")
	assert.Equal(t, int64(0), head.Get(), "views never write through to the timeline")

	_, err = root.Mutable("count")
	assert.Error(t, err, "forked views are frozen")

	_, err = child.Mutable("nope")
	assert.Error(t, err)
	_, ok = child.Get("nope")
	assert.False(t, ok)
}

func TestView_NestedForksSeeAncestorWrites(t *testing.T) {
	tl := newTimeline(t)
	root := NewView(tl)

	s, err := root.Mutable("mode")
	require.NoError(t, err)
	require.NoError(t, s.ApplyEffect(cell.SetTo(3)))

	a, _ := root.Fork()
	a1, a2 := a.Fork()
	for _, v := range []*View{a1, a2} {
		got, ok := v.Get("mode")
		require.True(t, ok)
		assert.Equal(t, 3, got.Get())
	}
}

func TestView_Sees(t *testing.T) {
	root := NewView(newTimeline(t))
	a, b := root.Fork()
	a1, _ := a.Fork()

	assert.True(t, a1.Sees(a1))
	assert.True(t, a1.Sees(a))
	assert.True(t, a1.Sees(root))
	assert.False(t, a1.Sees(b), "siblings are concurrent")
	assert.False(t, a.Sees(a1), "parents do not see descendants")
}

func TestFrame_Graph(t *testing.T) {
	f := NewFrame()
	f.Emit(Event{Cell: "a", Effect: 1})
	child := f.Fork()
	child.Emit(Event{Cell: "b", Effect: 2})
	f.Emit(Event{Cell: "a", Effect: 3})
	f.Emit(Event{Cell: "a", Effect: 4})

	assert.Equal(t, "(a:1; (b:2 | (a:3; a:4)))", f.Graph().String())
}

func TestFrame_MultipleForks(t *testing.T) {
	f := NewFrame()
	c1 := f.Fork()
	c1.Emit(Event{Cell: "x", Effect: 1})
	c2 := f.Fork()
	c2.Emit(Event{Cell: "y", Effect: 2})
	f.Emit(Event{Cell: "z", Effect: 3})

	assert.Equal(t, "(x:1 | (y:2 | z:3))", f.Graph().String())
	assert.True(t, NewFrame().Graph().IsEmpty())
}

func TestTimeline_CommitAndQuery(t *testing.T) {
	tl := newTimeline(t)

	require.NoError(t, tl.Advance(5*duration.Second))
	p, err := tl.Commit(ev("mode", cell.SetTo(7)))
	require.NoError(t, err)
	assert.Equal(t, Point{Index: 0, Time: 5 * duration.Second, Step: 0, Segment: ev("mode", cell.SetTo(7))}, p)

	at3, err := tl.ValueAtTime("mode", 3*duration.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, at3)

	at6, err := tl.ValueAtTime("mode", 6*duration.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, at6)

	battery, err := tl.ValueAtTime("battery", 8*duration.Second)
	require.NoError(t, err)
	assert.InDelta(t, 92.0, battery.(cell.Volume).Amount, 1e-9)

	origin, err := tl.ValueAt("mode", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, origin)

	_, err = tl.ValueAt("mode", 1)
	assert.Error(t, err)
	_, err = tl.ValueAt("ghost", 0)
	assert.Error(t, err)
}

func TestTimeline_SameInstantPointsAreStepped(t *testing.T) {
	tl := newTimeline(t)
	require.NoError(t, tl.Advance(duration.Second))

	p0, err := tl.Commit(ev("count", cell.Add(1)))
	require.NoError(t, err)
	p1, err := tl.Commit(ev("count", cell.Add(2)))
	require.NoError(t, err)

	assert.Equal(t, 0, p0.Step)
	assert.Equal(t, 1, p1.Step)
	assert.Equal(t, 1, tl.PointAt(duration.Second))
	assert.Equal(t, -1, tl.PointAt(0))

	mid, err := tl.ValueAt("count", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mid)

	end, err := tl.ValueAt("count", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), end)
}

func TestTimeline_ConflictCommitsNothing(t *testing.T) {
	tl := newTimeline(t)

	segment := graph.Sequentially(
		ev("count", cell.Add(1)),
		graph.Concurrently(ev("mode", cell.SetTo(1)), ev("mode", cell.SetTo(2))),
	)
	_, err := tl.Commit(segment)
	require.Error(t, err)
	assert.True(t, cell.IsEffectConflict(err))

	assert.Equal(t, 0, tl.Len())
	head, _ := tl.Lookup("count")
	assert.Equal(t, int64(0), head.Get(), "cells touched before the conflict are rolled back")

	_, err = tl.Commit(ev("ghost", cell.Add(1)))
	assert.Error(t, err)
}

func TestTimeline_DisjointConcurrentBranches(t *testing.T) {
	tl := newTimeline(t)

	_, err := tl.Commit(graph.Concurrently(ev("mode", cell.SetTo(4)), ev("count", cell.Add(9))))
	require.NoError(t, err)

	mode, _ := tl.Lookup("mode")
	count, _ := tl.Lookup("count")
	assert.Equal(t, 4, mode.Get())
	assert.Equal(t, int64(9), count.Get())
}

func TestTimeline_CheckpointsMatchReplay(t *testing.T) {
	plain := newTimeline(t)
	fast := newTimeline(t, WithCheckpointInterval(4))

	for i := 1; i <= 20; i++ {
		for _, tl := range []*Timeline{plain, fast} {
			require.NoError(t, tl.Advance(duration.Of(int64(i), duration.Second)))
			_, err := tl.Commit(graph.Concurrently(
				ev("count", cell.Add(int64(i))),
				ev("battery", cell.AddRate(0.25)),
			))
			require.NoError(t, err)
		}
	}

	for _, index := range []int{-1, 0, 3, 4, 9, 19} {
		a, err := plain.ValueAt("battery", index)
		require.NoError(t, err)
		b, err := fast.ValueAt("battery", index)
		require.NoError(t, err)
		assert.InDelta(t, a.(cell.Volume).Amount, b.(cell.Volume).Amount, 1e-9, "index %d", index)

		c1, err := plain.ValueAt("count", index)
		require.NoError(t, err)
		c2, err := fast.ValueAt("count", index)
		require.NoError(t, err)
		assert.Equal(t, c1, c2)
	}

	before := fast.Replays()
	_, err := fast.ValueAt("count", 19)
	require.NoError(t, err)
	assert.Equal(t, 0, fast.Replays()-before, "point 19 is itself a checkpoint")

	total, err := plain.ValueAt("count", 19)
	require.NoError(t, err)
	assert.Equal(t, int64(210), total)
}

func TestTimeline_Errors(t *testing.T) {
	_, err := NewTimeline([]cell.State{cell.NewCounter("x", 0), cell.NewCounter("x", 1)})
	assert.Error(t, err)

	tl := newTimeline(t)
	require.NoError(t, tl.Advance(duration.Second))
	assert.Error(t, tl.Advance(0))
	assert.Equal(t, []cell.ID{"mode", "count", "battery"}, tl.Cells())
}
