package feature

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/agext/levenshtein"

	"github.com/rushteam/dedupekit/pkg/conv"
	"github.com/rushteam/dedupekit/pkg/textutil"
)

// 变量类型
const (
	TypeString      = "String"
	TypeShortString = "ShortString"
	TypeText        = "Text"
	TypeExact       = "Exact"
	TypePrice       = "Price"
	TypeSet         = "Set"
)

// Comparator 比较两个字段值，返回距离（0 表示完全相同）。
// ok 为 false 表示值缺失或无法比较，此时按缺失处理。
type Comparator interface {
	Compare(a, b any) (dist float64, ok bool)
	// Validate 检查单个字段值是否能被比较（nil 总是合法）
	Validate(v any) error
}

// ComparatorFunc 把普通函数适配为只做比较、不做校验的 Comparator
type ComparatorFunc func(a, b any) (float64, bool)

func (f ComparatorFunc) Compare(a, b any) (float64, bool) { return f(a, b) }
func (f ComparatorFunc) Validate(any) error               { return nil }

var (
	comparators   = make(map[string]Comparator)
	comparatorsMu sync.RWMutex
)

func init() {
	RegisterComparator(TypeString, stringComparator{})
	RegisterComparator(TypeShortString, stringComparator{})
	RegisterComparator(TypeText, textComparator{})
	RegisterComparator(TypeExact, exactComparator{})
	RegisterComparator(TypePrice, priceComparator{})
	RegisterComparator(TypeSet, setComparator{})
}

// RegisterComparator 注册变量类型对应的比较器，可覆盖内置类型。
func RegisterComparator(typeName string, c Comparator) {
	if typeName == "" || c == nil {
		return
	}
	comparatorsMu.Lock()
	defer comparatorsMu.Unlock()
	comparators[typeName] = c
}

// SupportedTypes 返回已注册的变量类型（排序）
func SupportedTypes() []string {
	comparatorsMu.RLock()
	defer comparatorsMu.RUnlock()
	out := make([]string, 0, len(comparators))
	for t := range comparators {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func lookupComparator(typeName string) (Comparator, error) {
	comparatorsMu.RLock()
	defer comparatorsMu.RUnlock()
	c, ok := comparators[typeName]
	if !ok {
		return nil, fmt.Errorf("unsupported variable type %q (supported: %v)", typeName, sortedKeys(comparators))
	}
	return c, nil
}

func sortedKeys(m map[string]Comparator) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func validateScalar(v any) error {
	switch v.(type) {
	case nil, string, float64, float32, int, int64, int32, bool:
		return nil
	default:
		return fmt.Errorf("expected a scalar value, got %T", v)
	}
}

// stringComparator 是归一化编辑距离：Levenshtein / 较长字符串的字符数。
type stringComparator struct{}

func (stringComparator) Compare(a, b any) (float64, bool) {
	sa, okA := textutil.ToString(a)
	sb, okB := textutil.ToString(b)
	if !okA || !okB {
		return 0, false
	}
	sa, sb = textutil.Normalize(sa), textutil.Normalize(sb)
	longest := max(len([]rune(sa)), len([]rune(sb)))
	if longest == 0 {
		return 0, false
	}
	return float64(levenshtein.Distance(sa, sb, nil)) / float64(longest), true
}

func (stringComparator) Validate(v any) error { return validateScalar(v) }

// textComparator 是词集合的 Jaccard 距离。
type textComparator struct{}

func (textComparator) Compare(a, b any) (float64, bool) {
	sa, okA := textutil.ToString(a)
	sb, okB := textutil.ToString(b)
	if !okA || !okB {
		return 0, false
	}
	return jaccardDistance(textutil.Tokens(sa), textutil.Tokens(sb))
}

func (textComparator) Validate(v any) error { return validateScalar(v) }

type exactComparator struct{}

func (exactComparator) Compare(a, b any) (float64, bool) {
	sa, okA := textutil.ToString(a)
	sb, okB := textutil.ToString(b)
	if !okA || !okB {
		return 0, false
	}
	if textutil.Normalize(sa) == textutil.Normalize(sb) {
		return 0, true
	}
	return 1, true
}

func (exactComparator) Validate(v any) error { return validateScalar(v) }

// priceComparator 是对数尺度上的差：|log10(a) - log10(b)|，非正数视为缺失。
type priceComparator struct{}

func (priceComparator) Compare(a, b any) (float64, bool) {
	fa, okA := conv.ToFloat64(a)
	fb, okB := conv.ToFloat64(b)
	if !okA || !okB || fa <= 0 || fb <= 0 {
		return 0, false
	}
	return math.Abs(math.Log10(fa) - math.Log10(fb)), true
}

func (priceComparator) Validate(v any) error {
	if v == nil {
		return nil
	}
	if _, ok := conv.ToFloat64(v); !ok {
		return fmt.Errorf("expected a number, got %T", v)
	}
	return nil
}

type setComparator struct{}

func (setComparator) Compare(a, b any) (float64, bool) {
	return jaccardDistance(textutil.ToStrings(a), textutil.ToStrings(b))
}

func (setComparator) Validate(v any) error {
	switch v.(type) {
	case nil, []any, []string:
		return nil
	default:
		return fmt.Errorf("expected a list value, got %T", v)
	}
}

func jaccardDistance(a, b []string) (float64, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[textutil.Normalize(s)] = true
	}
	inter, union := 0, len(set)
	seen := make(map[string]bool, len(b))
	for _, s := range b {
		n := textutil.Normalize(s)
		if seen[n] {
			continue
		}
		seen[n] = true
		if set[n] {
			inter++
		} else {
			union++
		}
	}
	return 1 - float64(inter)/float64(union), true
}
