package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/orbit/internal/ir"
)

// TaskFunc is the body of a task. It runs as a coroutine: calls on tc that
// suspend (Delay, WaitFor, Call) return control to the driver and resume
// later in simulated time.
type TaskFunc func(tc *TaskContext) error

// ActivityType describes one kind of activity a schedule may name.
type ActivityType struct {
	// Name is the type name directives refer to.
	Name string

	// Description is shown by the CLI.
	Description string

	// NewParams returns a pointer to a zero parameters struct. Arguments are
	// decoded into it through JSON and checked with `validate` struct tags.
	// Nil means the activity takes no arguments.
	NewParams func() any

	// Run executes an instance with decoded parameters.
	Run func(tc *TaskContext, params any) error
}

// Activity builds an ActivityType whose parameters are a P.
func Activity[P any](name, description string, run func(tc *TaskContext, params *P) error) ActivityType {
	return ActivityType{
		Name:        name,
		Description: description,
		NewParams:   func() any { return new(P) },
		Run: func(tc *TaskContext, params any) error {
			return run(tc, params.(*P))
		},
	}
}

// Registry maps activity type names to their definitions.
type Registry struct {
	types    map[string]ActivityType
	order    []string
	validate *validator.Validate
}

// NewRegistry creates an empty registry. Validation messages name fields
// by their JSON names.
func NewRegistry() *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Registry{
		types:    make(map[string]ActivityType),
		validate: v,
	}
}

// Register adds an activity type. Names must be unique.
func (r *Registry) Register(t ActivityType) error {
	if t.Name == "" {
		return fmt.Errorf("activity type name is empty")
	}
	if t.Run == nil {
		return fmt.Errorf("activity type %q has no Run", t.Name)
	}
	if _, dup := r.types[t.Name]; dup {
		return fmt.Errorf("activity type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is like Register but panics on error.
// Use only when wiring a static model.
func (r *Registry) MustRegister(types ...ActivityType) {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Lookup finds an activity type by name.
func (r *Registry) Lookup(name string) (ActivityType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names lists activity types in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Instantiate builds the task for an activity of the named type with args.
//
// Errors:
//   - *RuntimeError with ErrCodeUnknownActivityType if the type is missing
//   - *RuntimeError with ErrCodeUnconstructableActivity if args cannot be
//     decoded (wrong JSON types, unknown fields)
//   - *ParameterError listing every validation failure
func (r *Registry) Instantiate(typeName string, args ir.Map) (TaskFunc, error) {
	t, ok := r.types[typeName]
	if !ok {
		return nil, &RuntimeError{
			Code:         ErrCodeUnknownActivityType,
			Message:      fmt.Sprintf("no activity type %q is registered", typeName),
			ActivityType: typeName,
		}
	}

	params, err := r.decode(t, args)
	if err != nil {
		return nil, err
	}
	return func(tc *TaskContext) error {
		return t.Run(tc, params)
	}, nil
}

// Check reports whether args would instantiate typeName, without running
// anything.
func (r *Registry) Check(typeName string, args ir.Map) error {
	_, err := r.Instantiate(typeName, args)
	return err
}

func (r *Registry) decode(t ActivityType, args ir.Map) (any, error) {
	if t.NewParams == nil {
		if len(args) > 0 {
			return nil, &RuntimeError{
				Code:         ErrCodeUnconstructableActivity,
				Message:      fmt.Sprintf("takes no arguments, got %s", strings.Join(args.SortedKeys(), ", ")),
				ActivityType: t.Name,
			}
		}
		return nil, nil
	}

	if args == nil {
		args = ir.Map{}
	}
	data, err := ir.Marshal(args)
	if err != nil {
		return nil, &RuntimeError{
			Code:         ErrCodeUnconstructableActivity,
			Message:      fmt.Sprintf("encode arguments: %v", err),
			ActivityType: t.Name,
		}
	}

	params := t.NewParams()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return nil, &RuntimeError{
			Code:         ErrCodeUnconstructableActivity,
			Message:      fmt.Sprintf("decode arguments: %v", err),
			ActivityType: t.Name,
		}
	}

	if err := r.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, &RuntimeError{
				Code:         ErrCodeUnconstructableActivity,
				Message:      err.Error(),
				ActivityType: t.Name,
			}
		}
		messages := make([]string, len(verrs))
		for i, fe := range verrs {
			messages[i] = describeViolation(fe)
		}
		return nil, &ParameterError{ActivityType: t.Name, Messages: messages}
	}
	return params, nil
}

// describeViolation renders one validation failure for people.
func describeViolation(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s fails %s", field, fe.Tag())
	}
}
