package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/ir"
)

// Entry is one activity of a plan as written, before anchors are resolved.
// Offset is relative to Anchor's start, or to the plan start when Anchor
// is empty.
type Entry struct {
	ID     string
	Type   string
	Anchor string
	Offset duration.Duration
	Args   ir.Map
	Pos    token.Pos
}

// CompilePlans parses every plan under the top-level `plan` field, in
// source order. A file with no plans is an error.
//
//	plan: downlink_pass: {
//		start:    "2030-01-01T00:00:00Z"
//		duration: "2h"
//		activities: [
//			{id: "warm", type: "power_on", args: {mode: "standby", warmup: "5m"}},
//			{id: "obs", type: "observe", anchor: "warm", offset: "10m", args: {...}},
//		]
//	}
func CompilePlans(root cue.Value) ([]*ir.Plan, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	plansVal := root.LookupPath(cue.ParsePath("plan"))
	if !plansVal.Exists() {
		return nil, &CompileError{Field: "plan", Message: "no plan defined", Pos: root.Pos()}
	}

	iter, err := plansVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var plans []*ir.Plan
	for iter.Next() {
		p, err := CompilePlan(iter.Value())
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if len(plans) == 0 {
		return nil, &CompileError{Field: "plan", Message: "no plan defined", Pos: plansVal.Pos()}
	}
	return plans, nil
}

// CompilePlan parses one CUE plan struct into an ir.Plan. The plan is named
// by its label; directive offsets come out relative to the plan start.
func CompilePlan(v cue.Value) (*ir.Plan, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	plan := &ir.Plan{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		plan.Name = labels[len(labels)-1].Unquoted()
	}

	startVal := v.LookupPath(cue.ParsePath("start"))
	if !startVal.Exists() {
		return nil, &CompileError{Field: "start", Message: "start is required", Pos: v.Pos()}
	}
	startStr, err := startVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	plan.Start, err = time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return nil, &CompileError{
			Field:   "start",
			Message: fmt.Sprintf("start must be an RFC 3339 timestamp: %v", err),
			Pos:     startVal.Pos(),
		}
	}

	durVal := v.LookupPath(cue.ParsePath("duration"))
	if !durVal.Exists() {
		return nil, &CompileError{Field: "duration", Message: "duration is required", Pos: v.Pos()}
	}
	plan.Duration, err = durationOf(durVal, "duration")
	if err != nil {
		return nil, err
	}

	entries, err := parseActivities(v)
	if err != nil {
		return nil, err
	}
	plan.Directives, err = ResolveAnchors(entries)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// parseActivities extracts the activity list. Activities without an id are
// named after their type and position.
func parseActivities(v cue.Value) ([]Entry, error) {
	listVal := v.LookupPath(cue.ParsePath("activities"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entries []Entry
	seen := make(map[string]bool)
	for i := 0; iter.Next(); i++ {
		av := iter.Value()
		field := fmt.Sprintf("activities[%d]", i)
		e := Entry{Pos: av.Pos()}

		typeVal := av.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return nil, &CompileError{Field: field + ".type", Message: "activity type is required", Pos: av.Pos()}
		}
		if e.Type, err = typeVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		e.ID = fmt.Sprintf("%s-%d", e.Type, i+1)
		if idVal := av.LookupPath(cue.ParsePath("id")); idVal.Exists() {
			if e.ID, err = idVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if seen[e.ID] {
			return nil, &CompileError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate activity id %q", e.ID),
				Pos:     av.Pos(),
			}
		}
		seen[e.ID] = true

		if offVal := av.LookupPath(cue.ParsePath("offset")); offVal.Exists() {
			if e.Offset, err = durationOf(offVal, field+".offset"); err != nil {
				return nil, err
			}
		}

		if anchorVal := av.LookupPath(cue.ParsePath("anchor")); anchorVal.Exists() {
			if e.Anchor, err = anchorVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		if argsVal := av.LookupPath(cue.ParsePath("args")); argsVal.Exists() {
			args, err := valueOf(argsVal, field+".args")
			if err != nil {
				return nil, err
			}
			m, ok := args.(ir.Map)
			if !ok {
				return nil, &CompileError{Field: field + ".args", Message: "args must be a struct", Pos: argsVal.Pos()}
			}
			e.Args = m
		}

		entries = append(entries, e)
	}
	return entries, nil
}

// durationOf reads a duration written as a string ("90s", "1h30m") or as
// integer microseconds.
func durationOf(v cue.Value, field string) (duration.Duration, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		d, err := duration.Parse(s)
		if err != nil {
			return 0, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return d, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return duration.Duration(n), nil
	default:
		return 0, &CompileError{
			Field:   field,
			Message: "must be a duration string or integer microseconds",
			Pos:     v.Pos(),
		}
	}
}

// valueOf converts a concrete CUE value to an ir.Value. Ints stay ints and
// floats stay reals.
func valueOf(v cue.Value, field string) (ir.Value, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Real(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			item, err := valueOf(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m := ir.Map{}
		for iter.Next() {
			name := iter.Label()
			item, err := valueOf(iter.Value(), field+"."+name)
			if err != nil {
				return nil, err
			}
			m[name] = item
		}
		return m, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
