// Package history threads cells through simulated time.
//
// A Timeline is the committed record: an ordered list of discrete points,
// each carrying the event graph emitted at that point. Cells at any point
// can be recovered by replaying the segments from the origin.
//
// While a point is being computed, every branch of execution works in a
// View: a copy-on-write layer over the committed cells. Forking a view
// freezes it and hands out two children that share it; a child duplicates
// a cell into its own layer only on first write. A Frame records, per
// branch, the event graph the branch emits, so the point's segment
// preserves which effects were sequential and which were concurrent.
package history

import (
	"fmt"

	"github.com/roach88/orbit/internal/cell"
)

// Source supplies committed cells to a root View. Cells returned by a
// Source are never mutated through a View.
type Source interface {
	Lookup(id cell.ID) (cell.State, bool)
}

// View is a copy-on-write layer of cells for one branch.
type View struct {
	source Source
	parent *View
	local  map[cell.ID]cell.State
	frozen bool
}

// NewView creates a root view over source.
func NewView(source Source) *View {
	return &View{source: source}
}

// Get returns the cell visible in this view. The returned state is shared
// and must not be mutated; use Mutable for writes.
func (v *View) Get(id cell.ID) (cell.State, bool) {
	for cur := v; cur != nil; cur = cur.parent {
		if s, ok := cur.local[id]; ok {
			return s, true
		}
		if cur.parent == nil && cur.source != nil {
			return cur.source.Lookup(id)
		}
	}
	return nil, false
}

// Mutable returns a cell owned by this view, duplicating it from an
// ancestor on first use.
func (v *View) Mutable(id cell.ID) (cell.State, error) {
	if v.frozen {
		return nil, fmt.Errorf("write to cell %q through a forked view", id)
	}
	if s, ok := v.local[id]; ok {
		return s, nil
	}
	shared, ok := v.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown cell %q", id)
	}
	if v.local == nil {
		v.local = make(map[cell.ID]cell.State)
	}
	owned := shared.Clone()
	v.local[id] = owned
	return owned, nil
}

// Fork freezes v and returns two children that both see its cells.
// The caller continues in one and hands the other to the new branch.
func (v *View) Fork() (*View, *View) {
	v.frozen = true
	return &View{parent: v}, &View{parent: v}
}

// Owned reports how many cells this layer has duplicated.
func (v *View) Owned() int { return len(v.local) }

// Sees reports whether writes made through layer are visible in v, which
// holds when layer is v itself or one of its ancestors.
func (v *View) Sees(layer *View) bool {
	for cur := v; cur != nil; cur = cur.parent {
		if cur == layer {
			return true
		}
	}
	return false
}
