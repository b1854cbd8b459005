package resource

import (
	"fmt"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/ir"
)

// Resource is a read-only projection of one cell into Dynamics.
type Resource interface {
	Cell() cell.ID
	Dynamics(value any) (Dynamics, error)
}

type projection[V, F any] struct {
	ref     cell.Ref[V, F]
	project func(V) Dynamics
}

func (p projection[V, F]) Cell() cell.ID { return p.ref.ID() }

func (p projection[V, F]) Dynamics(value any) (Dynamics, error) {
	v, ok := value.(V)
	if !ok {
		var zero V
		return nil, fmt.Errorf("resource on cell %q: expected %T, got %T", p.ref.ID(), zero, value)
	}
	return p.project(v), nil
}

// Project builds a Resource from a cell and a projection function.
func Project[V, F any](ref cell.Ref[V, F], project func(V) Dynamics) Resource {
	return projection[V, F]{ref: ref, project: project}
}

// DiscreteOf projects a cell whose value converts directly with ir.FromGo.
func DiscreteOf[V, F any](ref cell.Ref[V, F]) Resource {
	return Project(ref, func(v V) Dynamics {
		val, err := ir.FromGo(v)
		if err != nil {
			return Discrete{Value: ir.Null{}}
		}
		return Discrete{Value: val}
	})
}

// VolumeOf projects an accumulator as affine Real dynamics.
func VolumeOf(ref cell.Ref[cell.Volume, cell.Delta]) Resource {
	return Project(ref, func(v cell.Volume) Dynamics {
		return Real{Initial: v.Amount, Rate: v.Rate}
	})
}

// Entry is one registered resource.
type Entry struct {
	Name     string
	Schema   ir.Schema
	Resource Resource
}

// Sample projects value and checks it against the entry's schema.
func (e Entry) Sample(value any) (Dynamics, error) {
	d, err := e.Resource.Dynamics(value)
	if err != nil {
		return nil, err
	}
	if problems := ir.Conforms(e.Schema, d.ValueAt(0)); len(problems) > 0 {
		return nil, fmt.Errorf("resource %q: %s", e.Name, problems[0])
	}
	return d, nil
}

// Registry maps resource names to their schema and projection. Entries
// keep registration order.
type Registry struct {
	entries []Entry
	byName  map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds a resource. Names must be unique and schemas well formed.
func (r *Registry) Register(name string, schema ir.Schema, res Resource) error {
	if name == "" {
		return fmt.Errorf("resource name is empty")
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("resource %q already registered", name)
	}
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("resource %q: %w", name, err)
	}
	r.byName[name] = len(r.entries)
	r.entries = append(r.entries, Entry{Name: name, Schema: schema, Resource: res})
	return nil
}

// MustRegister is like Register but panics on error.
// Use only when wiring a static model.
func (r *Registry) MustRegister(name string, schema ir.Schema, res Resource) {
	if err := r.Register(name, schema, res); err != nil {
		panic(err)
	}
}

// Lookup finds a resource by name. A nil Registry holds no resources.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	i, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries lists resources in registration order.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names lists resource names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Name
	}
	return out
}
