// Package textutil 提供谓词与比较器共用的文本规范化和切分工具。
package textutil

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/rushteam/dedupekit/pkg/conv"
)

// Normalize 做 NFKC 规范化、转小写、去首尾空白并折叠连续空白。
func Normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Tokens 按非字母数字字符切分规范化后的文本。
func Tokens(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// NGrams 返回去掉空白后的字符 n-gram；文本短于 n 时返回整个文本。
func NGrams(s string, n int) []string {
	runes := []rune(strings.ReplaceAll(Normalize(s), " ", ""))
	if len(runes) == 0 {
		return nil
	}
	if n <= 0 || len(runes) <= n {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

// Integers 返回文本中的连续数字串（去掉前导零）。
func Integers(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) {
		trimmed := strings.TrimLeft(f, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		out = append(out, trimmed)
	}
	return out
}

// ToString 把字段值转为字符串；nil 与空白字符串返回 ("", false)。
func ToString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(val) == "" {
			return "", false
		}
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case bool:
		return strconv.FormatBool(val), true
	case []byte:
		return string(val), len(val) > 0
	default:
		return "", false
	}
}

// ToStrings 把集合型字段值（[]any / []string）转为字符串切片；标量视为单元素集合。
func ToStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		return conv.MapSlice(val, ToString)
	default:
		if s, ok := ToString(v); ok {
			return []string{s}
		}
		return nil
	}
}
