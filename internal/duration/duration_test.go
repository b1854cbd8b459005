package duration

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnits(t *testing.T) {
	assert.Equal(t, Duration(1_000_000), Second)
	assert.Equal(t, Duration(3_600_000_000), Hour)
	assert.Equal(t, 5*Second, Of(5, Second))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Duration
	}{
		{"5s", 5 * Second},
		{"1h30m", Hour + 30*Minute},
		{"250ms", 250 * Millisecond},
		{"42", 42 * Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("soon")
	assert.Error(t, err)
}

func TestRoundingIsInward(t *testing.T) {
	third := 1.0 / 3.0
	assert.Equal(t, Duration(333334), Ceil(third))
	assert.Equal(t, Duration(333333), Floor(third))
	assert.Equal(t, 2*Second, Ceil(2))
	assert.Equal(t, Max, Ceil(math.Inf(1)))
	assert.Equal(t, Min, Floor(math.Inf(-1)))
}

func TestSaturatingArithmetic(t *testing.T) {
	assert.Equal(t, Max, Max.Plus(Second))
	assert.Equal(t, Min, Min.Minus(Second))
	assert.Equal(t, 3*Second, (5 * Second).Minus(2*Second))
}

func TestStdConversion(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, (1500 * Millisecond).Std())
	assert.Equal(t, 2*Second, FromStd(2*time.Second))
	assert.Equal(t, "1m0s", Minute.String())
	assert.Equal(t, "+inf", Max.String())
}

func TestUnmarshalJSON(t *testing.T) {
	var got struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"90s","b":250}`), &got))
	assert.Equal(t, 90*Second, got.A)
	assert.Equal(t, Duration(250), got.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &got))
	assert.Error(t, json.Unmarshal([]byte(`{"a":"later"}`), &got))
}
