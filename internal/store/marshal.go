package store

import (
	"fmt"

	"github.com/roach88/orbit/internal/ir"
)

// marshalValue converts a value to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalValue(v ir.Value) (string, error) {
	if v == nil {
		v = ir.Null{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses canonical JSON TEXT. Integers stay integers.
func unmarshalValue(data string) (ir.Value, error) {
	v, err := ir.Unmarshal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// marshalArgs stores directive arguments. Missing arguments are stored as
// an empty object so reads never see NULL.
func marshalArgs(args ir.Map) (string, error) {
	if args == nil {
		args = ir.Map{}
	}
	return marshalValue(args)
}

func unmarshalArgs(data string) (ir.Map, error) {
	if data == "" || data == "{}" {
		return ir.Map{}, nil
	}
	v, err := unmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	m, ok := v.(ir.Map)
	if !ok {
		return nil, fmt.Errorf("unmarshal args: expected object, got %s", ir.TypeName(v))
	}
	return m, nil
}

func marshalMessages(messages []string) (string, error) {
	list := make(ir.List, len(messages))
	for i, m := range messages {
		list[i] = ir.String(m)
	}
	return marshalValue(list)
}

func unmarshalMessages(data string) ([]string, error) {
	v, err := unmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	list, ok := v.(ir.List)
	if !ok {
		return nil, fmt.Errorf("unmarshal messages: expected array, got %s", ir.TypeName(v))
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(ir.String)
		if !ok {
			return nil, fmt.Errorf("unmarshal messages: expected string, got %s", ir.TypeName(item))
		}
		out = append(out, string(s))
	}
	return out, nil
}
