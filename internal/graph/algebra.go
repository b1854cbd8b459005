package graph

import (
	"fmt"
	"strings"
)

// Algebra assigns meaning to graphs. Implementations must satisfy:
//
//   - Sequentially is associative with identity Empty()
//   - Concurrently is associative and commutative with identity Empty()
//
// Evaluate does not check these laws. Commutativity in particular is the
// responsibility of the conflict-resolution layer that consumes the result.
type Algebra[R any] interface {
	Empty() R
	Sequentially(prefix, suffix R) R
	Concurrently(left, right R) R
}

// Funcs adapts three functions to the Algebra interface.
type Funcs[R any] struct {
	EmptyFunc        func() R
	SequentiallyFunc func(prefix, suffix R) R
	ConcurrentlyFunc func(left, right R) R
}

func (f Funcs[R]) Empty() R                        { return f.EmptyFunc() }
func (f Funcs[R]) Sequentially(prefix, suffix R) R { return f.SequentiallyFunc(prefix, suffix) }
func (f Funcs[R]) Concurrently(left, right R) R    { return f.ConcurrentlyFunc(left, right) }

// Evaluate folds g bottom-up through alg, mapping each atom with substitution.
func Evaluate[E, R any](g Graph[E], alg Algebra[R], substitution func(E) R) R {
	switch g.kind {
	case KindEmpty:
		return alg.Empty()
	case KindAtom:
		return substitution(g.event)
	case KindSequentially:
		return alg.Sequentially(
			Evaluate(*g.left, alg, substitution),
			Evaluate(*g.right, alg, substitution),
		)
	case KindConcurrently:
		return alg.Concurrently(
			Evaluate(*g.left, alg, substitution),
			Evaluate(*g.right, alg, substitution),
		)
	default:
		panic(fmt.Sprintf("graph: unknown kind %d", g.kind))
	}
}

// FilterMap projects every atom through f, dropping atoms for which f
// reports false. Structure is rebuilt through the smart constructors, so
// subgraphs that lose all their atoms collapse to Empty.
func FilterMap[E, F any](g Graph[E], f func(E) (F, bool)) Graph[F] {
	switch g.kind {
	case KindEmpty:
		return Empty[F]()
	case KindAtom:
		if mapped, ok := f(g.event); ok {
			return Atom(mapped)
		}
		return Empty[F]()
	case KindSequentially:
		return Sequentially(FilterMap(*g.left, f), FilterMap(*g.right, f))
	case KindConcurrently:
		return Concurrently(FilterMap(*g.left, f), FilterMap(*g.right, f))
	default:
		panic(fmt.Sprintf("graph: unknown kind %d", g.kind))
	}
}

// Map projects every atom through f.
func Map[E, F any](g Graph[E], f func(E) F) Graph[F] {
	return FilterMap(g, func(e E) (F, bool) { return f(e), true })
}

// Filter keeps only the atoms for which keep reports true.
func Filter[E any](g Graph[E], keep func(E) bool) Graph[E] {
	return FilterMap(g, func(e E) (E, bool) { return e, keep(e) })
}

// Atoms lists the events of g in left-to-right order.
func Atoms[E any](g Graph[E]) []E {
	var out []E
	var walk func(Graph[E])
	walk = func(n Graph[E]) {
		switch n.kind {
		case KindAtom:
			out = append(out, n.event)
		case KindSequentially, KindConcurrently:
			walk(*n.left)
			walk(*n.right)
		}
	}
	walk(g)
	return out
}

// Size counts the atoms in g.
func Size[E any](g Graph[E]) int {
	return Evaluate(g, Funcs[int]{
		EmptyFunc:        func() int { return 0 },
		SequentiallyFunc: func(a, b int) int { return a + b },
		ConcurrentlyFunc: func(a, b int) int { return a + b },
	}, func(E) int { return 1 })
}

// renderAlgebra prints sequential composition as "a; b" and concurrent
// composition as "a | b", parenthesizing every compound node.
type renderAlgebra struct{}

func (renderAlgebra) Empty() string { return "" }

func (renderAlgebra) Sequentially(prefix, suffix string) string {
	return "(" + prefix + "; " + suffix + ")"
}

func (renderAlgebra) Concurrently(left, right string) string {
	return "(" + left + " | " + right + ")"
}

// Render formats g for logs and test failures.
func Render[E any](g Graph[E], format func(E) string) string {
	if format == nil {
		format = func(e E) string { return fmt.Sprint(e) }
	}
	return Evaluate[E, string](g, renderAlgebra{}, format)
}

// String implements fmt.Stringer using Render.
func (g Graph[E]) String() string {
	s := Render(g, nil)
	if s == "" {
		return "∅"
	}
	return strings.TrimSpace(s)
}
