// Package graph implements immutable series-parallel event graphs.
//
// A Graph records the effects emitted during one discrete step of a
// simulation: effects emitted one after another on the same branch are
// composed with Sequentially, effects emitted by logically concurrent
// branches are composed with Concurrently.
//
// Graphs are built only through the smart constructors in this file. The
// constructors elide Empty operands, so the identity laws
//
//	Sequentially(Empty, x) == x == Sequentially(x, Empty)
//	Concurrently(Empty, x) == x == Concurrently(x, Empty)
//
// hold structurally, not just after evaluation. Graphs are never mutated
// after construction and may be shared freely between readers.
//
// A Graph carries no meaning of its own. Meaning is assigned by folding it
// through an Algebra with Evaluate; several algebras may evaluate the same
// graph (one for rendering, one for applying effects to a cell, and so on).
package graph

// Kind tags the four graph variants.
type Kind uint8

const (
	// KindEmpty is the identity graph. The zero Graph is Empty.
	KindEmpty Kind = iota
	// KindAtom holds a single event.
	KindAtom
	// KindSequentially orders a prefix before a suffix.
	KindSequentially
	// KindConcurrently composes two causally unordered graphs.
	KindConcurrently
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindAtom:
		return "atom"
	case KindSequentially:
		return "sequentially"
	case KindConcurrently:
		return "concurrently"
	default:
		return "unknown"
	}
}

// Graph is a series-parallel composition of events of type E.
type Graph[E any] struct {
	kind  Kind
	event E
	left  *Graph[E]
	right *Graph[E]
}

// Empty returns the identity graph.
func Empty[E any]() Graph[E] {
	return Graph[E]{}
}

// Atom returns a graph holding exactly one event.
func Atom[E any](event E) Graph[E] {
	return Graph[E]{kind: KindAtom, event: event}
}

// Sequentially orders prefix before suffix. If either side is Empty the
// other side is returned unchanged.
func Sequentially[E any](prefix, suffix Graph[E]) Graph[E] {
	if prefix.kind == KindEmpty {
		return suffix
	}
	if suffix.kind == KindEmpty {
		return prefix
	}
	return Graph[E]{kind: KindSequentially, left: &prefix, right: &suffix}
}

// Concurrently composes two graphs with no causal order between them. If
// either side is Empty the other side is returned unchanged.
func Concurrently[E any](left, right Graph[E]) Graph[E] {
	if left.kind == KindEmpty {
		return right
	}
	if right.kind == KindEmpty {
		return left
	}
	return Graph[E]{kind: KindConcurrently, left: &left, right: &right}
}

// SequentiallyAll folds graphs left to right with Sequentially.
func SequentiallyAll[E any](graphs ...Graph[E]) Graph[E] {
	acc := Empty[E]()
	for _, g := range graphs {
		acc = Sequentially(acc, g)
	}
	return acc
}

// ConcurrentlyAll folds graphs left to right with Concurrently.
func ConcurrentlyAll[E any](graphs ...Graph[E]) Graph[E] {
	acc := Empty[E]()
	for _, g := range graphs {
		acc = Concurrently(acc, g)
	}
	return acc
}

// Kind returns the variant tag.
func (g Graph[E]) Kind() Kind { return g.kind }

// IsEmpty reports whether g is the identity graph.
func (g Graph[E]) IsEmpty() bool { return g.kind == KindEmpty }

// Event returns the event held by an Atom.
func (g Graph[E]) Event() (E, bool) {
	if g.kind != KindAtom {
		var zero E
		return zero, false
	}
	return g.event, true
}

// Operands returns the two operands of a Sequentially or Concurrently node.
// For other kinds both results are Empty.
func (g Graph[E]) Operands() (Graph[E], Graph[E]) {
	if g.kind != KindSequentially && g.kind != KindConcurrently {
		return Empty[E](), Empty[E]()
	}
	return *g.left, *g.right
}
