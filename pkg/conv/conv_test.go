package conv

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{10.5, 10.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(-4), -4, true},
		{uint32(7), 7, true},
		{json.Number("1.25"), 1.25, true},
		{" 12.50 ", 12.5, true},
		{"", 0, false},
		{"cheap", 0, false},
		{math.NaN(), 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat64(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestParams(t *testing.T) {
	params := map[string]any{"n": 3, "half": 2.5, "threshold": "0.7", "expr": "record.name"}

	assert.Equal(t, 3, ParamInt(params, "n", 0))
	assert.Equal(t, 9, ParamInt(params, "half", 9))
	assert.Equal(t, 9, ParamInt(params, "missing", 9))
	assert.Equal(t, 0.7, ParamFloat(params, "threshold", 0.6))
	assert.Equal(t, 0.6, ParamFloat(nil, "threshold", 0.6))
	assert.Equal(t, "record.name", ParamString(params, "expr", ""))
	assert.Equal(t, "x", ParamString(params, "n", "x"))
}

func TestMapSlice(t *testing.T) {
	evens := MapSlice([]int{1, 2, 3, 4}, func(v int) (int, bool) { return v * 10, v%2 == 0 })
	assert.Equal(t, []int{20, 40}, evens)
	assert.Nil(t, MapSlice[int, int](nil, nil))
}
