package resource

import (
	"slices"
	"strings"

	"github.com/roach88/orbit/internal/duration"
)

// Window is the closed span of simulated time [Start, End]. Times are
// microseconds, so a window holds every microsecond between its bounds.
type Window struct {
	Start duration.Duration `json:"start"`
	End   duration.Duration `json:"end"`
}

// Span returns [start, end].
func Span(start, end duration.Duration) Window { return Window{Start: start, End: end} }

// At returns the single-instant window [t, t].
func At(t duration.Duration) Window { return Window{Start: t, End: t} }

// IsEmpty reports whether the window contains no instant.
func (w Window) IsEmpty() bool { return w.Start > w.End }

// Contains reports whether t lies in the window.
func (w Window) Contains(t duration.Duration) bool { return w.Start <= t && t <= w.End }

// Intersect returns the common part of two windows, possibly empty.
func (w Window) Intersect(o Window) Window {
	return Window{Start: duration.Greater(w.Start, o.Start), End: duration.Less(w.End, o.End)}
}

// Length is End - Start, the measure of the window.
func (w Window) Length() duration.Duration {
	if w.IsEmpty() {
		return 0
	}
	return w.End.Minus(w.Start)
}

func (w Window) String() string {
	if w.IsEmpty() {
		return "[]"
	}
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}

// Windows is a normalized set of disjoint, non-empty windows in ascending
// order. Build one with NewWindows or the set operations; never append to
// the slice directly.
type Windows []Window

// NewWindows normalizes arbitrary windows: empties are dropped, and
// windows that overlap or abut at consecutive microseconds are merged.
func NewWindows(ws ...Window) Windows {
	var in []Window
	for _, w := range ws {
		if !w.IsEmpty() {
			in = append(in, w)
		}
	}
	if len(in) == 0 {
		return nil
	}
	slices.SortFunc(in, func(a, b Window) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	out := Windows{in[0]}
	for _, w := range in[1:] {
		last := &out[len(out)-1]
		if w.Start <= last.End.Plus(duration.Epsilon) {
			last.End = duration.Greater(last.End, w.End)
			continue
		}
		out = append(out, w)
	}
	return out
}

// Union merges two window sets.
func (ws Windows) Union(o Windows) Windows {
	return NewWindows(append(slices.Clone(ws), o...)...)
}

// Intersect keeps the instants present in both sets.
func (ws Windows) Intersect(o Windows) Windows {
	var out []Window
	i, j := 0, 0
	for i < len(ws) && j < len(o) {
		if c := ws[i].Intersect(o[j]); !c.IsEmpty() {
			out = append(out, c)
		}
		if ws[i].End < o[j].End {
			i++
		} else {
			j++
		}
	}
	return NewWindows(out...)
}

// Complement returns the instants of domain not covered by ws.
func (ws Windows) Complement(domain Window) Windows {
	if domain.IsEmpty() {
		return nil
	}
	var out []Window
	cursor := domain.Start
	for _, w := range ws.Intersect(Windows{domain}) {
		if w.Start > cursor {
			out = append(out, Window{Start: cursor, End: w.Start - duration.Epsilon})
		}
		if w.End == duration.Max {
			return NewWindows(out...)
		}
		cursor = w.End + duration.Epsilon
	}
	if cursor <= domain.End {
		out = append(out, Window{Start: cursor, End: domain.End})
	}
	return NewWindows(out...)
}

// Contains reports whether t lies in any window.
func (ws Windows) Contains(t duration.Duration) bool {
	_, found := slices.BinarySearchFunc(ws, t, func(w Window, t duration.Duration) int {
		switch {
		case w.End < t:
			return -1
		case w.Start > t:
			return 1
		}
		return 0
	})
	return found
}

// Total is the summed length of all windows.
func (ws Windows) Total() duration.Duration {
	var total duration.Duration
	for _, w := range ws {
		total = total.Plus(w.Length())
	}
	return total
}

func (ws Windows) String() string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
