package predicate

import (
	"sort"

	"github.com/rushteam/dedupekit/core"
)

// 字段类型（与 feature 包的变量类型同名）
const (
	KindString      = "String"
	KindShortString = "ShortString"
	KindText        = "Text"
	KindExact       = "Exact"
	KindPrice       = "Price"
	KindSet         = "Set"
)

// IndexThresholds 是候选索引谓词使用的相似度阈值
var IndexThresholds = []float64{0.4, 0.6, 0.8}

// Candidates 返回字段类型对应的候选谓词全集，用于学习分块规则。
// index 为 true 时包含 TF-IDF 索引谓词。
func Candidates(field, kind string, index bool) []core.Predicate {
	var out []core.Predicate
	add := func(typ string, n int) { out = append(out, MustField(typ, field, n)) }

	switch kind {
	case KindString, KindShortString, KindText:
		add(TypeWholeField, 0)
		add(TypeTokenField, 0)
		add(TypeFirstToken, 0)
		add(TypeFirstTwoTokens, 0)
		add(TypeCommonInteger, 0)
		add(TypeNearIntegers, 0)
		add(TypeAlphaNumeric, 0)
		add(TypeSortedAcronym, 0)
		add(TypePrefix, 3)
		add(TypePrefix, 5)
		add(TypeSuffix, 3)
		if kind == KindText {
			add(TypeNGram, 4)
		}
		if index {
			for _, th := range IndexThresholds {
				p, _ := NewTfidfSearch(field, th, 0)
				out = append(out, p)
				if kind != KindText {
					p, _ = NewTfidfSearch(field, th, 3)
					out = append(out, p)
				}
			}
		}
	case KindSet:
		add(TypeCommonSetElement, 0)
	case KindPrice:
		add(TypeWholeField, 0)
		add(TypeNearIntegers, 0)
	default:
		add(TypeWholeField, 0)
	}
	return out
}

// BroadRules 返回用于抽取训练样本的宽松规则：字符串字段取首词与 3 字前缀，其他字段取整字段。
func BroadRules(fields map[string]string) []Rule {
	var rules []Rule
	for _, field := range sortedKeys(fields) {
		switch fields[field] {
		case KindString, KindShortString, KindText:
			rules = append(rules,
				Rule{MustField(TypeFirstToken, field, 0)},
				Rule{MustField(TypePrefix, field, 3)})
		case KindSet:
			rules = append(rules, Rule{MustField(TypeCommonSetElement, field, 0)})
		default:
			rules = append(rules, Rule{MustField(TypeWholeField, field, 0)})
		}
	}
	return rules
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
