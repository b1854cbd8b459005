package ir

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/orbit/internal/duration"
)

// Serialize converts a plain Go value into its wire form under schema.
//
// Accepted Go representations per kind:
//
//	real      float64 (float32 and integers widen)
//	int       int64 (int widens)
//	boolean   bool
//	string    string
//	duration  duration.Duration, serialized as Int microseconds
//	path      string
//	series    []any
//	struct    map[string]any with exactly the schema's fields
//	variant   string naming one of the choices
func Serialize(schema Schema, v any) (Value, error) {
	switch schema.Kind {
	case SchemaReal:
		switch x := v.(type) {
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("real %v is not representable", x)
			}
			return Real(x), nil
		case float32:
			return Real(x), nil
		case int:
			return Real(x), nil
		case int64:
			return Real(x), nil
		}
	case SchemaInt:
		switch x := v.(type) {
		case int64:
			return Int(x), nil
		case int:
			return Int(x), nil
		}
	case SchemaBoolean:
		if x, ok := v.(bool); ok {
			return Bool(x), nil
		}
	case SchemaString, SchemaPath:
		if x, ok := v.(string); ok {
			return String(x), nil
		}
	case SchemaDuration:
		if x, ok := v.(duration.Duration); ok {
			return Int(x), nil
		}
	case SchemaSeries:
		items, ok := v.([]any)
		if !ok {
			break
		}
		if schema.Item == nil {
			return nil, fmt.Errorf("series schema has no item schema")
		}
		out := make(List, len(items))
		for i, item := range items {
			sv, err := Serialize(*schema.Item, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = sv
		}
		return out, nil
	case SchemaStruct:
		fields, ok := v.(map[string]any)
		if !ok {
			break
		}
		out := make(Map, len(schema.Fields))
		for _, f := range schema.Fields {
			fv, present := fields[f.Name]
			if !present {
				return nil, fmt.Errorf("missing field %q", f.Name)
			}
			sv, err := Serialize(f.Schema, fv)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			out[f.Name] = sv
		}
		for name := range fields {
			if _, known := schema.Field(name); !known {
				return nil, fmt.Errorf("unknown field %q", name)
			}
		}
		return out, nil
	case SchemaVariant:
		key, ok := v.(string)
		if !ok {
			break
		}
		if !schema.HasChoice(key) {
			return nil, fmt.Errorf("%q is not one of %s", key, schema)
		}
		return String(key), nil
	default:
		return nil, fmt.Errorf("unknown schema kind %q", schema.Kind)
	}
	return nil, fmt.Errorf("cannot serialize %T as %s", v, schema)
}

// Deserialize converts a wire value back into the Go representation that
// Serialize accepts, so Deserialize(s, Serialize(s, x)) == x for every x
// in that representation. Int values are accepted where a real is expected.
func Deserialize(schema Schema, v Value) (any, error) {
	switch schema.Kind {
	case SchemaReal:
		if f, ok := AsReal(v); ok {
			return f, nil
		}
	case SchemaInt:
		if x, ok := v.(Int); ok {
			return int64(x), nil
		}
	case SchemaBoolean:
		if x, ok := v.(Bool); ok {
			return bool(x), nil
		}
	case SchemaString, SchemaPath:
		if x, ok := v.(String); ok {
			return string(x), nil
		}
	case SchemaDuration:
		if x, ok := v.(Int); ok {
			return duration.Duration(x), nil
		}
	case SchemaSeries:
		items, ok := v.(List)
		if !ok {
			break
		}
		if schema.Item == nil {
			return nil, fmt.Errorf("series schema has no item schema")
		}
		out := make([]any, len(items))
		for i, item := range items {
			dv, err := Deserialize(*schema.Item, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = dv
		}
		return out, nil
	case SchemaStruct:
		fields, ok := v.(Map)
		if !ok {
			break
		}
		if problems := Conforms(schema, v); len(problems) > 0 {
			return nil, fmt.Errorf("%s", problems[0])
		}
		out := make(map[string]any, len(schema.Fields))
		for _, f := range schema.Fields {
			dv, err := Deserialize(f.Schema, fields[f.Name])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			out[f.Name] = dv
		}
		return out, nil
	case SchemaVariant:
		key, ok := v.(String)
		if !ok {
			break
		}
		if !schema.HasChoice(string(key)) {
			return nil, fmt.Errorf("%q is not one of %s", key, schema)
		}
		return string(key), nil
	default:
		return nil, fmt.Errorf("unknown schema kind %q", schema.Kind)
	}
	return nil, fmt.Errorf("expected %s, got %s", schema, TypeName(v))
}

// Conforms lists every way v fails to match schema. An empty result means
// v conforms. Messages carry a path prefix such as "targets[2].mode".
func Conforms(schema Schema, v Value) []string {
	var problems []string
	conforms(schema, v, "", &problems)
	return problems
}

func conforms(schema Schema, v Value, path string, problems *[]string) {
	fail := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if path != "" {
			msg = path + ": " + msg
		}
		*problems = append(*problems, msg)
	}

	switch schema.Kind {
	case SchemaReal:
		if _, ok := AsReal(v); !ok {
			fail("expected real, got %s", TypeName(v))
		}
	case SchemaInt, SchemaDuration:
		if _, ok := v.(Int); !ok {
			fail("expected %s, got %s", schema.Kind, TypeName(v))
		}
	case SchemaBoolean:
		if _, ok := v.(Bool); !ok {
			fail("expected boolean, got %s", TypeName(v))
		}
	case SchemaString, SchemaPath:
		if _, ok := v.(String); !ok {
			fail("expected %s, got %s", schema.Kind, TypeName(v))
		}
	case SchemaSeries:
		items, ok := v.(List)
		if !ok {
			fail("expected series, got %s", TypeName(v))
			return
		}
		if schema.Item == nil {
			fail("series schema has no item schema")
			return
		}
		for i, item := range items {
			conforms(*schema.Item, item, path+"["+strconv.Itoa(i)+"]", problems)
		}
	case SchemaStruct:
		fields, ok := v.(Map)
		if !ok {
			fail("expected struct, got %s", TypeName(v))
			return
		}
		for _, f := range schema.Fields {
			fv, present := fields[f.Name]
			if !present {
				fail("missing field %q", f.Name)
				continue
			}
			conforms(f.Schema, fv, joinPath(path, f.Name), problems)
		}
		for _, name := range fields.SortedKeys() {
			if _, known := schema.Field(name); !known {
				fail("unknown field %q", name)
			}
		}
	case SchemaVariant:
		key, ok := v.(String)
		if !ok {
			fail("expected variant, got %s", TypeName(v))
			return
		}
		if !schema.HasChoice(string(key)) {
			fail("%q is not one of %s", string(key), schema)
		}
	default:
		fail("unknown schema kind %q", schema.Kind)
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
