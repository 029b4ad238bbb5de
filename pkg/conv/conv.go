// Package conv 把记录字段值与谓词/分类器参数转换为 Go 类型。
//
// 记录来自 JSON（数字为 float64）、YAML（整数为 int）、Redis（全部为字符串）
// 和 Feast（数值统一为 float64），同一字段在不同来源下的动态类型不同。
package conv

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToFloat64 把数值型字段值转为 float64。
// 接受各类整数/浮点数、json.Number 与可解析的数字字符串（如 Redis 中的 "12.50"）；
// 空白字符串、NaN 与其他类型返回 (0, false)。
func ToFloat64(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint64:
		f = float64(val)
	case uint32:
		f = float64(val)
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// MapSlice 对每个元素调用 fn，丢弃 fn 返回 false 的元素。
func MapSlice[T, U any](in []T, fn func(T) (U, bool)) []U {
	if in == nil {
		return nil
	}
	out := make([]U, 0, len(in))
	for _, v := range in {
		if u, ok := fn(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// ParamString 读取字符串参数，缺失或类型不符时返回 def
func ParamString(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return def
}

// ParamFloat 读取数值参数（YAML 的 int、JSON 的 float64 或数字字符串），缺失时返回 def
func ParamFloat(params map[string]any, key string, def float64) float64 {
	if f, ok := ToFloat64(params[key]); ok {
		return f
	}
	return def
}

// ParamInt 读取整数参数；带小数部分的值视为无效，返回 def
func ParamInt(params map[string]any, key string, def int) int {
	f, ok := ToFloat64(params[key])
	if !ok || f != math.Trunc(f) {
		return def
	}
	return int(f)
}
