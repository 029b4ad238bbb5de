package predicate

import (
	"fmt"
	"strings"

	"github.com/rushteam/dedupekit/core"
)

// Rule 是一条分块规则：谓词的有序合取。
// 规则的键是各谓词键的笛卡尔积，用 ":" 连接；任一谓词无键则规则无键。
type Rule []core.Predicate

// KeyFunc 计算单个谓词的键，Blocker 用它接入缓存。
type KeyFunc func(p core.Predicate, rec core.Record) ([]string, error)

func directKeys(p core.Predicate, rec core.Record) ([]string, error) { return p.Keys(rec) }

func (r Rule) Name() string {
	names := make([]string, len(r))
	for i, p := range r {
		names[i] = p.Name()
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// Keys 直接计算规则的键
func (r Rule) Keys(rec core.Record) ([]string, error) {
	return r.KeysWith(rec, directKeys)
}

// KeysWith 使用给定的 KeyFunc 计算规则的键。
func (r Rule) KeysWith(rec core.Record, fn KeyFunc) ([]string, error) {
	if len(r) == 0 {
		return nil, nil
	}
	combos := []string{""}
	for i, p := range r {
		keys, err := fn(p, rec)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, nil
		}
		next := make([]string, 0, len(combos)*len(keys))
		for _, prefix := range combos {
			for _, k := range keys {
				if i == 0 {
					next = append(next, k)
				} else {
					next = append(next, prefix+":"+k)
				}
			}
		}
		combos = next
	}
	return uniqueStrings(combos), nil
}

// IndexPredicates 返回规则中的索引谓词
func (r Rule) IndexPredicates() []core.IndexPredicate {
	var out []core.IndexPredicate
	for _, p := range r {
		if ip, ok := p.(core.IndexPredicate); ok {
			out = append(out, ip)
		}
	}
	return out
}

// Specs 导出规则中每个谓词的 Spec。
func (r Rule) Specs() ([]Spec, error) {
	specs := make([]Spec, len(r))
	for i, p := range r {
		s, err := SpecOf(p)
		if err != nil {
			return nil, err
		}
		specs[i] = s
	}
	return specs, nil
}

// BuildRule 从 Spec 列表重建规则。
func BuildRule(specs []Spec) (Rule, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("rule must contain at least one predicate")
	}
	r := make(Rule, len(specs))
	for i, s := range specs {
		p, err := Build(s)
		if err != nil {
			return nil, err
		}
		r[i] = p
	}
	return r, nil
}

// BuildRules 从 Spec 列表的列表重建规则集合。
func BuildRules(specs [][]Spec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		r, err := BuildRule(s)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// RuleSpecs 导出规则集合的 Spec。
func RuleSpecs(rules []Rule) ([][]Spec, error) {
	out := make([][]Spec, len(rules))
	for i, r := range rules {
		s, err := r.Specs()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
