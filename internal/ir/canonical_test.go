package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"min int64", Int(-9223372036854775808), "-9223372036854775808"},
		{"real", Real(0.25), "0.25"},
		{"integral real", Real(-2), "-2.0"},
		{"bool", Bool(true), "true"},
		{"null", Null{}, "null"},
		{"empty list", List{}, "[]"},
		{"empty map", Map{}, "{}"},
		{"nested keys sorted", Map{"z": Map{"b": Int(1), "a": Int(2)}, "a": Int(3)}, `{"a":3,"z":{"a":2,"b":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	m := Map{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}

	result, err := MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(String("<downlink> & <uplink>"))
	require.NoError(t, err)
	assert.Equal(t, `"<downlink> & <uplink>"`, string(result))

	plain, err := Marshal(String("<"))
	require.NoError(t, err)
	assert.Equal(t, `"<"`, string(plain))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// U+00E9 written as e plus a combining acute accent normalizes to the single code point.
	decomposed := String("e\u0301")
	composed := String("\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))

	keys, err := MarshalCanonical(Map{"e\u0301": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\u00e9\":1}", string(keys))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by the text u2028 stays escaped.
	result, err = MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalControlCharacters(t *testing.T) {
	result, err := MarshalCanonical(String("tab\there\n"))
	require.NoError(t, err)
	assert.Equal(t, `"tab\there\n"`, string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(Map{"x": Real(1.0 / zero())})
	assert.Error(t, err)
}

func TestMarshalCanonicalGo(t *testing.T) {
	result, err := MarshalCanonicalGo(map[string]any{"b": 1, "a": []any{"x", 0.5}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",0.5],"b":1}`, string(result))

	_, err = MarshalCanonicalGo(make(chan int))
	assert.Error(t, err)
}

func zero() float64 { return 0 }
