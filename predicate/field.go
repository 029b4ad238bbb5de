package predicate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/conv"
	"github.com/rushteam/dedupekit/pkg/textutil"
)

// 字段谓词类型
const (
	TypeWholeField       = "whole_field"
	TypeTokenField       = "token_field"
	TypeFirstToken       = "first_token"
	TypeFirstTwoTokens   = "first_two_tokens"
	TypeCommonInteger    = "common_integer"
	TypeNearIntegers     = "near_integers"
	TypeAlphaNumeric     = "alpha_numeric"
	TypePrefix           = "prefix"
	TypeSuffix           = "suffix"
	TypeNGram            = "ngram"
	TypeSortedAcronym    = "sorted_acronym"
	TypeCommonSetElement = "common_set_element"
)

type keyFunc func(v any, n int) []string

type family struct {
	fn       keyFunc
	defaultN int
}

var families = map[string]family{
	TypeWholeField:       {fn: wholeField},
	TypeTokenField:       {fn: tokenField},
	TypeFirstToken:       {fn: firstToken},
	TypeFirstTwoTokens:   {fn: firstTwoTokens},
	TypeCommonInteger:    {fn: commonInteger},
	TypeNearIntegers:     {fn: nearIntegers},
	TypeAlphaNumeric:     {fn: alphaNumeric},
	TypePrefix:           {fn: prefix, defaultN: 3},
	TypeSuffix:           {fn: suffix, defaultN: 3},
	TypeNGram:            {fn: ngram, defaultN: 3},
	TypeSortedAcronym:    {fn: sortedAcronym},
	TypeCommonSetElement: {fn: commonSetElement},
}

func init() {
	for name := range families {
		typeName := name
		Register(typeName, func(field string, params map[string]any) (core.Predicate, error) {
			n := conv.ParamInt(params, "n", 0)
			return NewField(typeName, field, n)
		})
	}
}

// FieldPredicate 是作用于单个字段的纯函数谓词。
// 字段值先经 textutil 规范化，缺失或空白字段不产生任何键。
type FieldPredicate struct {
	kind  string
	field string
	n     int
	fn    keyFunc
}

var (
	_ core.Predicate = (*FieldPredicate)(nil)
	_ Describer      = (*FieldPredicate)(nil)
)

// NewField 创建字段谓词；n 仅对 prefix/suffix/ngram 有效，<= 0 时使用默认值 3。
func NewField(kind, field string, n int) (*FieldPredicate, error) {
	f, ok := families[kind]
	if !ok {
		return nil, fmt.Errorf("unknown field predicate %q", kind)
	}
	if field == "" {
		return nil, fmt.Errorf("field predicate %s requires a field", kind)
	}
	if f.defaultN == 0 {
		n = 0
	} else if n <= 0 {
		n = f.defaultN
	}
	return &FieldPredicate{kind: kind, field: field, n: n, fn: f.fn}, nil
}

// MustField 同 NewField，出错时 panic（用于内置候选集）
func MustField(kind, field string, n int) *FieldPredicate {
	p, err := NewField(kind, field, n)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *FieldPredicate) Name() string {
	if p.n > 0 {
		return fmt.Sprintf("%s%d(%s)", p.kind, p.n, p.field)
	}
	return fmt.Sprintf("%s(%s)", p.kind, p.field)
}

// Field 返回谓词作用的字段
func (p *FieldPredicate) Field() string { return p.field }

// Kind 返回谓词类型
func (p *FieldPredicate) Kind() string { return p.kind }

func (p *FieldPredicate) Keys(rec core.Record) ([]string, error) {
	return uniqueStrings(p.fn(rec[p.field], p.n)), nil
}

func (p *FieldPredicate) Spec() Spec {
	s := Spec{Type: p.kind, Field: p.field}
	if p.n > 0 {
		s.Params = map[string]any{"n": p.n}
	}
	return s
}

func normalized(v any) (string, bool) {
	s, ok := textutil.ToString(v)
	if !ok {
		return "", false
	}
	s = textutil.Normalize(s)
	return s, s != ""
}

func wholeField(v any, _ int) []string {
	if s, ok := normalized(v); ok {
		return []string{s}
	}
	return nil
}

func tokenField(v any, _ int) []string {
	s, ok := textutil.ToString(v)
	if !ok {
		return nil
	}
	return textutil.Tokens(s)
}

func firstToken(v any, _ int) []string {
	toks := tokenField(v, 0)
	if len(toks) == 0 {
		return nil
	}
	return toks[:1]
}

func firstTwoTokens(v any, _ int) []string {
	toks := tokenField(v, 0)
	if len(toks) < 2 {
		return nil
	}
	return []string{toks[0] + " " + toks[1]}
}

func commonInteger(v any, _ int) []string {
	s, ok := textutil.ToString(v)
	if !ok {
		return nil
	}
	return textutil.Integers(s)
}

func nearIntegers(v any, _ int) []string {
	var out []string
	for _, s := range commonInteger(v, 0) {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out = append(out,
			strconv.FormatInt(i-1, 10),
			strconv.FormatInt(i, 10),
			strconv.FormatInt(i+1, 10))
	}
	return out
}

func alphaNumeric(v any, _ int) []string {
	var out []string
	for _, tok := range tokenField(v, 0) {
		hasLetter := strings.IndexFunc(tok, unicode.IsLetter) >= 0
		hasDigit := strings.IndexFunc(tok, unicode.IsDigit) >= 0
		if hasLetter && hasDigit {
			out = append(out, tok)
		}
	}
	return out
}

func compact(v any) []rune {
	s, ok := normalized(v)
	if !ok {
		return nil
	}
	return []rune(strings.ReplaceAll(s, " ", ""))
}

func prefix(v any, n int) []string {
	r := compact(v)
	if len(r) == 0 {
		return nil
	}
	if len(r) > n {
		r = r[:n]
	}
	return []string{string(r)}
}

func suffix(v any, n int) []string {
	r := compact(v)
	if len(r) == 0 {
		return nil
	}
	if len(r) > n {
		r = r[len(r)-n:]
	}
	return []string{string(r)}
}

func ngram(v any, n int) []string {
	s, ok := textutil.ToString(v)
	if !ok {
		return nil
	}
	return textutil.NGrams(s, n)
}

func sortedAcronym(v any, _ int) []string {
	toks := tokenField(v, 0)
	if len(toks) == 0 {
		return nil
	}
	initials := make([]string, len(toks))
	for i, tok := range toks {
		initials[i] = string([]rune(tok)[:1])
	}
	sort.Strings(initials)
	return []string{strings.Join(initials, "")}
}

func commonSetElement(v any, _ int) []string {
	var out []string
	for _, s := range textutil.ToStrings(v) {
		if n := textutil.Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
