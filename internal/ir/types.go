package ir

import (
	"time"

	"github.com/roach88/orbit/internal/duration"
)

// Directive is one schedule entry: an activity of Type instantiated with
// Args, starting Offset after the plan start.
type Directive struct {
	ID     string            `json:"id"`
	Offset duration.Duration `json:"offset"`
	Type   string            `json:"type"`
	Args   Map               `json:"args"`
}

// Plan is a named schedule of directives over a bounded horizon.
type Plan struct {
	Name       string            `json:"name"`
	Start      time.Time         `json:"start"`
	Duration   duration.Duration `json:"duration"`
	Directives []Directive       `json:"directives"`
}

// ToValue is the canonical wire form of a directive.
func (d Directive) ToValue() Value {
	args := d.Args
	if args == nil {
		args = Map{}
	}
	return Map{
		"id":     String(d.ID),
		"offset": Int(d.Offset),
		"type":   String(d.Type),
		"args":   args,
	}
}

// ToValue is the canonical wire form of a plan. Start is rendered in UTC
// so equal instants hash equally regardless of zone.
func (p Plan) ToValue() Value {
	directives := make(List, len(p.Directives))
	for i, d := range p.Directives {
		directives[i] = d.ToValue()
	}
	return Map{
		"name":       String(p.Name),
		"start":      String(p.Start.UTC().Format(time.RFC3339Nano)),
		"duration":   Int(p.Duration),
		"directives": directives,
	}
}
