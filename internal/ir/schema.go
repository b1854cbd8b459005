package ir

import (
	"fmt"
	"slices"
	"strings"
)

// SchemaKind names a variant of the value schema taxonomy.
type SchemaKind string

const (
	SchemaReal     SchemaKind = "real"
	SchemaInt      SchemaKind = "int"
	SchemaBoolean  SchemaKind = "boolean"
	SchemaString   SchemaKind = "string"
	SchemaDuration SchemaKind = "duration"
	SchemaPath     SchemaKind = "path"
	SchemaSeries   SchemaKind = "series"
	SchemaStruct   SchemaKind = "struct"
	SchemaVariant  SchemaKind = "variant"
)

// Schema describes the set of values a resource or parameter may take.
//
// Item is set for series, Fields for struct and Choices for variant.
// Metadata is free-form annotation (units, descriptions) that never affects
// conformance.
type Schema struct {
	Kind     SchemaKind
	Item     *Schema
	Fields   []Field
	Choices  []Choice
	Metadata Map
}

// Field is one named member of a struct schema.
type Field struct {
	Name   string
	Schema Schema
}

// Choice is one tagged alternative of a variant schema.
type Choice struct {
	Key   string
	Label string
}

func RealSchema() Schema     { return Schema{Kind: SchemaReal} }
func IntSchema() Schema      { return Schema{Kind: SchemaInt} }
func BooleanSchema() Schema  { return Schema{Kind: SchemaBoolean} }
func StringSchema() Schema   { return Schema{Kind: SchemaString} }
func DurationSchema() Schema { return Schema{Kind: SchemaDuration} }
func PathSchema() Schema     { return Schema{Kind: SchemaPath} }

// SeriesOf describes a homogeneous list of item.
func SeriesOf(item Schema) Schema {
	return Schema{Kind: SchemaSeries, Item: &item}
}

// StructOf describes a record with exactly the given fields.
func StructOf(fields ...Field) Schema {
	return Schema{Kind: SchemaStruct, Fields: fields}
}

// F is shorthand for a struct Field.
func F(name string, schema Schema) Field {
	return Field{Name: name, Schema: schema}
}

// VariantOf describes an enumeration. Each key doubles as its label.
func VariantOf(keys ...string) Schema {
	choices := make([]Choice, len(keys))
	for i, k := range keys {
		choices[i] = Choice{Key: k, Label: k}
	}
	return Schema{Kind: SchemaVariant, Choices: choices}
}

// WithMetadata returns a copy of s carrying metadata.
func (s Schema) WithMetadata(metadata Map) Schema {
	s.Metadata = metadata
	return s
}

// Field looks up a struct field by name.
func (s Schema) Field(name string) (Schema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Schema, true
		}
	}
	return Schema{}, false
}

// HasChoice reports whether key is one of a variant's choices.
func (s Schema) HasChoice(key string) bool {
	return slices.ContainsFunc(s.Choices, func(c Choice) bool { return c.Key == key })
}

// String renders the schema compactly, e.g. "struct{mode: variant(off|on)}".
func (s Schema) String() string {
	switch s.Kind {
	case SchemaSeries:
		if s.Item == nil {
			return "series(?)"
		}
		return "series(" + s.Item.String() + ")"
	case SchemaStruct:
		parts := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			parts[i] = f.Name + ": " + f.Schema.String()
		}
		return "struct{" + strings.Join(parts, ", ") + "}"
	case SchemaVariant:
		keys := make([]string, len(s.Choices))
		for i, c := range s.Choices {
			keys[i] = c.Key
		}
		return "variant(" + strings.Join(keys, "|") + ")"
	default:
		return string(s.Kind)
	}
}

// ToValue describes the schema itself as a Value, for storage and display.
func (s Schema) ToValue() Value {
	out := Map{"type": String(s.Kind)}
	switch s.Kind {
	case SchemaSeries:
		if s.Item != nil {
			out["items"] = s.Item.ToValue()
		}
	case SchemaStruct:
		fields := make(Map, len(s.Fields))
		for _, f := range s.Fields {
			fields[f.Name] = f.Schema.ToValue()
		}
		out["fields"] = fields
	case SchemaVariant:
		choices := make(List, len(s.Choices))
		for i, c := range s.Choices {
			choices[i] = Map{"key": String(c.Key), "label": String(c.Label)}
		}
		out["variants"] = choices
	}
	if len(s.Metadata) > 0 {
		out["metadata"] = s.Metadata
	}
	return out
}

// Validate checks that the schema itself is well formed.
func (s Schema) Validate() error {
	switch s.Kind {
	case SchemaReal, SchemaInt, SchemaBoolean, SchemaString, SchemaDuration, SchemaPath:
		return nil
	case SchemaSeries:
		if s.Item == nil {
			return fmt.Errorf("series schema has no item schema")
		}
		return s.Item.Validate()
	case SchemaStruct:
		seen := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			if f.Name == "" {
				return fmt.Errorf("struct schema has an unnamed field")
			}
			if seen[f.Name] {
				return fmt.Errorf("struct schema repeats field %q", f.Name)
			}
			seen[f.Name] = true
			if err := f.Schema.Validate(); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return nil
	case SchemaVariant:
		if len(s.Choices) == 0 {
			return fmt.Errorf("variant schema has no choices")
		}
		seen := make(map[string]bool, len(s.Choices))
		for _, c := range s.Choices {
			if seen[c.Key] {
				return fmt.Errorf("variant schema repeats choice %q", c.Key)
			}
			seen[c.Key] = true
		}
		return nil
	default:
		return fmt.Errorf("unknown schema kind %q", s.Kind)
	}
}
