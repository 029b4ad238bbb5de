package predicate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/dedupekit/core"
)

func TestFieldPredicates(t *testing.T) {
	rec := core.Record{"name": "Acme Widgets 42", "tags": []any{"B", "a"}, "empty": "  "}

	tests := []struct {
		kind  string
		field string
		n     int
		want  []string
	}{
		{TypeWholeField, "name", 0, []string{"acme widgets 42"}},
		{TypeTokenField, "name", 0, []string{"acme", "widgets", "42"}},
		{TypeFirstToken, "name", 0, []string{"acme"}},
		{TypeFirstTwoTokens, "name", 0, []string{"acme widgets"}},
		{TypeCommonInteger, "name", 0, []string{"42"}},
		{TypeNearIntegers, "name", 0, []string{"41", "42", "43"}},
		{TypePrefix, "name", 4, []string{"acme"}},
		{TypeSuffix, "name", 0, []string{"s42"}},
		{TypeSortedAcronym, "name", 0, []string{"4aw"}},
		{TypeCommonSetElement, "tags", 0, []string{"b", "a"}},
		{TypeWholeField, "empty", 0, nil},
		{TypeWholeField, "missing", 0, nil},
	}
	for _, tt := range tests {
		p, err := NewField(tt.kind, tt.field, tt.n)
		require.NoError(t, err)
		t.Run(p.Name(), func(t *testing.T) {
			got, err := p.Keys(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewField("nope", "name", 0)
	assert.Error(t, err)
}

func TestExpressionPredicate(t *testing.T) {
	p, err := NewExpression("zip3", `record.zip.substring(0, 3)`, `size(record.zip) >= 3`)
	require.NoError(t, err)

	keys, err := p.Keys(core.Record{"zip": "10001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, keys)

	keys, err = p.Keys(core.Record{"zip": "10"})
	require.NoError(t, err)
	assert.Empty(t, keys)

	// 缺失字段不报错
	keys, err = p.Keys(core.Record{})
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, "expr(zip3)", p.Name())
}

func TestTfidfSearch_RequiresIndex(t *testing.T) {
	p, err := NewTfidfSearch("name", 0.5, 0)
	require.NoError(t, err)

	_, err = p.Keys(core.Record{"name": "acme corp"})
	require.Error(t, err)
	assert.True(t, core.IsPredicateNotIndexed(err))

	p.Index([]string{"acme corporation", "acme corp", "globex inc"})
	assert.True(t, p.Indexed())

	a, err := p.Keys(core.Record{"name": "Acme Corp"})
	require.NoError(t, err)
	b, err := p.Keys(core.Record{"name": "acme corp"})
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)

	c, err := p.Keys(core.Record{"name": "globex inc"})
	require.NoError(t, err)
	assert.NotEmpty(t, c)
	assert.NotEqual(t, a, c)

	p.Unindex([]string{"acme corp"})
	p.Unindex([]string{"acme corporation"})
	a, err = p.Keys(core.Record{"name": "acme corp"})
	require.NoError(t, err)
	assert.Empty(t, a)

	p.Reset()
	assert.False(t, p.Indexed())
}

func TestRule_CartesianKeys(t *testing.T) {
	r := Rule{
		MustField(TypeTokenField, "name", 0),
		MustField(TypeWholeField, "city", 0),
	}
	keys, err := r.Keys(core.Record{"name": "a b", "city": "Rome"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:rome", "b:rome"}, keys)

	keys, err = r.Keys(core.Record{"name": "a b"})
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, "(token_field(name), whole_field(city))", r.Name())
}

func TestRuleSpecs_RoundTrip(t *testing.T) {
	expr, err := NewExpression("", `record.zip`, "")
	require.NoError(t, err)
	tfidf, err := NewTfidfSearch("name", 0.8, 3)
	require.NoError(t, err)
	rules := []Rule{
		{MustField(TypePrefix, "name", 5), MustField(TypeWholeField, "city", 0)},
		{expr},
		{tfidf},
	}

	specs, err := RuleSpecs(rules)
	require.NoError(t, err)
	data, err := json.Marshal(specs)
	require.NoError(t, err)

	var decoded [][]Spec
	require.NoError(t, json.Unmarshal(data, &decoded))
	rebuilt, err := BuildRules(decoded)
	require.NoError(t, err)

	require.Len(t, rebuilt, len(rules))
	for i := range rules {
		assert.Equal(t, rules[i].Name(), rebuilt[i].Name())
	}
	assert.Len(t, rebuilt[2].IndexPredicates(), 1)
}

func TestBuild_Unsupported(t *testing.T) {
	_, err := Build(Spec{Type: "soundex", Field: "name"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whole_field")
	assert.True(t, IsSupported(TypeTfidfTextSearch))
}

func TestCandidates(t *testing.T) {
	withIndex := Candidates("name", KindString, true)
	without := Candidates("name", KindString, false)
	assert.Greater(t, len(withIndex), len(without))
	assert.Len(t, Candidates("tags", KindSet, true), 1)

	rules := BroadRules(map[string]string{"name": KindString, "city": KindExact})
	require.Len(t, rules, 3)
	assert.Equal(t, "(whole_field(city))", rules[0].Name())
}
