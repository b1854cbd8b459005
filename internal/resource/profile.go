package resource

import (
	"fmt"
	"sort"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/ir"
)

// Segment is a stretch of a profile during which Dynamics apply, with
// Start as their origin.
type Segment struct {
	Start    duration.Duration
	Dynamics Dynamics
}

// Profile is the piecewise history of one resource over a run. Segment i
// covers [Segments[i].Start, Segments[i+1].Start) and the last segment
// runs to End.
type Profile struct {
	Name     string
	Segments []Segment
	End      duration.Duration
}

// Append records dynamics observed at instant at. Observations that
// continue the current segment are dropped, and a later observation at
// the same instant replaces the earlier one.
func (p *Profile) Append(at duration.Duration, d Dynamics) error {
	if n := len(p.Segments); n > 0 {
		last := p.Segments[n-1]
		switch {
		case at < last.Start:
			return fmt.Errorf("profile %q: observation at %s precedes %s", p.Name, at, last.Start)
		case at == last.Start:
			p.Segments[n-1].Dynamics = d
			p.compact()
			return nil
		case EqualDynamics(Shift(last.Dynamics, at-last.Start), d):
			return nil
		}
	}
	p.Segments = append(p.Segments, Segment{Start: at, Dynamics: d})
	return nil
}

// compact merges the last segment into the previous one when a same-instant
// replacement made them continuous.
func (p *Profile) compact() {
	n := len(p.Segments)
	if n < 2 {
		return
	}
	prev, last := p.Segments[n-2], p.Segments[n-1]
	if EqualDynamics(Shift(prev.Dynamics, last.Start-prev.Start), last.Dynamics) {
		p.Segments = p.Segments[:n-1]
	}
}

// segmentAt returns the index of the segment covering t, or -1.
func (p Profile) segmentAt(t duration.Duration) int {
	return sort.Search(len(p.Segments), func(i int) bool { return p.Segments[i].Start > t }) - 1
}

// ValueAt evaluates the profile at t.
func (p Profile) ValueAt(t duration.Duration) (ir.Value, bool) {
	i := p.segmentAt(t)
	if i < 0 || t > p.End {
		return nil, false
	}
	s := p.Segments[i]
	return s.Dynamics.ValueAt(t - s.Start), true
}

// Span returns the window covered by segment i.
func (p Profile) Span(i int) Window {
	end := p.End
	if i+1 < len(p.Segments) {
		end = p.Segments[i+1].Start - duration.Epsilon
	}
	return Window{Start: p.Segments[i].Start, End: end}
}

// WindowsOver solves cond across every segment of p that intersects domain.
func WindowsOver(p Profile, cond Condition, domain Window) (Windows, error) {
	var out Windows
	for i, s := range p.Segments {
		span := p.Span(i).Intersect(domain)
		if span.IsEmpty() {
			continue
		}
		ws, err := Solve(cond, s.Dynamics, s.Start, span)
		if err != nil {
			return nil, fmt.Errorf("profile %q at %s: %w", p.Name, s.Start, err)
		}
		out = out.Union(ws)
	}
	return out, nil
}
