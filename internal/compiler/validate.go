package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Plan errors (E100-E109)
	ErrPlanNameEmpty     = "E100" // plan has no name
	ErrNegativeDuration  = "E101" // plan duration below zero
	ErrDuplicateID       = "E102" // two directives share an id
	ErrNegativeOffset    = "E103" // directive starts before the plan
	ErrOffsetAfterEnd    = "E104" // directive starts after the plan ends
	ErrEmptyActivityType = "E105" // directive has no type

	// Activity errors (E110-E119)
	ErrUnknownActivityType = "E110" // no such activity type in the model
	ErrUnconstructable     = "E111" // arguments cannot be decoded
	ErrInvalidParameter    = "E112" // arguments fail validation
)

// ValidationError represents a plan validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled plan, and its directives against activities
// when that is not nil. Returns all errors found (does not fail-fast).
func Validate(plan *ir.Plan, activities *engine.Registry) []ValidationError {
	var errs []ValidationError

	// E100: plans are named by their label
	if strings.TrimSpace(plan.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "plan name is required",
			Code:    ErrPlanNameEmpty,
		})
	}

	// E101
	if plan.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "duration",
			Message: fmt.Sprintf("duration %s is negative", plan.Duration),
			Code:    ErrNegativeDuration,
		})
	}

	ids := make(map[string]bool)
	for i, d := range plan.Directives {
		field := fmt.Sprintf("activities[%d]", i)

		// E102
		if d.ID != "" && ids[d.ID] {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate activity id %q", d.ID),
				Code:    ErrDuplicateID,
			})
		}
		ids[d.ID] = true

		// E103, E104
		switch {
		case d.Offset < 0:
			errs = append(errs, ValidationError{
				Field:   field + ".offset",
				Message: fmt.Sprintf("%s starts %s before the plan", d.ID, -d.Offset),
				Code:    ErrNegativeOffset,
			})
		case plan.Duration >= 0 && d.Offset > plan.Duration:
			errs = append(errs, ValidationError{
				Field:   field + ".offset",
				Message: fmt.Sprintf("%s starts at %s, after the plan ends at %s", d.ID, d.Offset, plan.Duration),
				Code:    ErrOffsetAfterEnd,
			})
		}

		// E105
		if strings.TrimSpace(d.Type) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: "activity type is required",
				Code:    ErrEmptyActivityType,
			})
			continue
		}

		if activities != nil {
			errs = append(errs, validateDirective(field, d, activities)...)
		}
	}

	return errs
}

// validateDirective checks that a directive would instantiate, reporting
// every parameter violation separately.
func validateDirective(field string, d ir.Directive, activities *engine.Registry) []ValidationError {
	err := activities.Check(d.Type, d.Args)
	if err == nil {
		return nil
	}

	var pe *engine.ParameterError
	if errors.As(err, &pe) {
		errs := make([]ValidationError, len(pe.Messages))
		for i, msg := range pe.Messages {
			errs[i] = ValidationError{
				Field:   field + ".args",
				Message: msg,
				Code:    ErrInvalidParameter,
			}
		}
		return errs
	}

	code := ErrUnconstructable
	if engine.IsUnknownActivityType(err) {
		code = ErrUnknownActivityType
	}
	return []ValidationError{{
		Field:   field + ".type",
		Message: err.Error(),
		Code:    code,
	}}
}
