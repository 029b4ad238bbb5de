package blocking

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/predicate"
)

func nameRules() []predicate.Rule {
	return []predicate.Rule{
		{predicate.MustField(predicate.TypeFirstToken, "name", 0)},
		{predicate.MustField(predicate.TypeWholeField, "name", 0)},
	}
}

func newBlocker(t *testing.T, rules []predicate.Rule) *Blocker {
	t.Helper()
	b, err := NewBlocker(rules)
	require.NoError(t, err)
	return b
}

func collect(t *testing.T, it core.PairIterator) []core.Pair {
	t.Helper()
	var out []core.Pair
	for it.Next() {
		out = append(out, it.Pair())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return out
}

func collectBlocks(t *testing.T, it core.BlockIterator) []core.Block {
	t.Helper()
	var out []core.Block
	for it.Next() {
		out = append(out, it.Block())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return out
}

func TestBlocker_KeysCarryRuleIndex(t *testing.T) {
	b := newBlocker(t, nameRules())
	keys, err := b.Keys(core.Record{"name": "Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme:0", "acme corp:1"}, keys)

	// 第二次命中缓存，结果一致
	keys, err = b.Keys(core.Record{"name": "Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme:0", "acme corp:1"}, keys)

	keys, err = b.Keys(core.Record{"name": nil})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestBlocker_IndexPredicateRequiresIndex(t *testing.T) {
	tfidf, err := predicate.NewTfidfSearch("name", 0.8, 0)
	require.NoError(t, err)
	b := newBlocker(t, []predicate.Rule{{tfidf}, {tfidf}})

	_, err = b.Keys(core.Record{"name": "acme"})
	assert.True(t, core.IsPredicateNotIndexed(err))

	// 同一谓词在两条规则中只建一次索引
	assert.Len(t, b.IndexPredicates()["name"], 1)

	b.IndexAll(core.Dataset{"1": {"name": "acme"}})
	keys, err := b.Keys(core.Record{"name": "acme"})
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	b.ResetIndices()
	assert.False(t, tfidf.Indexed())
}

func TestDedupeSource_DistinctOrderedPairs(t *testing.T) {
	dir := t.TempDir()
	data := core.Dataset{
		"1": {"name": "acme corp"},
		"2": {"name": "Acme Corp"},
		"3": {"name": "acme inc"},
		"4": {"name": "zeta"},
	}
	src := &DedupeSource{Blocker: newBlocker(t, nameRules()), Data: data, TempDir: dir}

	it, err := src.Pairs(context.Background())
	require.NoError(t, err)
	pairs := collect(t, it)

	assert.Equal(t, []core.Pair{{A: "1", B: "2"}, {A: "1", B: "3"}, {A: "2", B: "3"}}, pairs)
	for _, p := range pairs {
		assert.Less(t, p.A, p.B)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary stores must be removed on Close")
}

func TestDedupeSource_ResetsIndexPredicates(t *testing.T) {
	tfidf, err := predicate.NewTfidfSearch("name", 0.5, 0)
	require.NoError(t, err)
	data := core.Dataset{
		"1": {"name": "acme widgets"},
		"2": {"name": "acme widgets"},
		"3": {"name": "omega"},
	}
	src := &DedupeSource{Blocker: newBlocker(t, []predicate.Rule{{tfidf}}), Data: data, TempDir: t.TempDir()}

	it, err := src.Pairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Pair{{A: "1", B: "2"}}, collect(t, it))
	assert.False(t, tfidf.Indexed())
}

func TestDedupeSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &DedupeSource{Blocker: newBlocker(t, nameRules()), Data: core.Dataset{"1": {"name": "a"}}, TempDir: t.TempDir()}
	_, err := src.Pairs(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLinkSource_CrossProduct(t *testing.T) {
	dir := t.TempDir()
	left := core.Dataset{
		"a1": {"name": "acme"},
		"a2": {"name": "zeta"},
		"a3": {"name": "Acme"},
	}
	right := core.Dataset{
		"b1": {"name": "acme"},
		"b2": {"name": "ACME"},
		"b3": {"name": "omega"},
	}
	src := &LinkSource{Blocker: newBlocker(t, nameRules()), Left: left, Right: right, TempDir: dir}

	it, err := src.Pairs(context.Background())
	require.NoError(t, err)
	pairs := collect(t, it)

	assert.Equal(t, []core.Pair{
		{A: "a1", B: "b1"}, {A: "a1", B: "b2"},
		{A: "a3", B: "b1"}, {A: "a3", B: "b2"},
	}, pairs)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLinkSource_SameIDsOnBothSides(t *testing.T) {
	left := core.Dataset{"1": {"name": "acme"}}
	right := core.Dataset{"1": {"name": "acme"}, "2": {"name": "acme"}}
	src := &LinkSource{Blocker: newBlocker(t, nameRules()), Left: left, Right: right, TempDir: t.TempDir()}

	it, err := src.Pairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Pair{{A: "1", B: "1"}, {A: "1", B: "2"}}, collect(t, it))
}

func TestIndex_BlocksAndReindex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ix, err := NewIndex(newBlocker(t, nameRules()), dir)
	require.NoError(t, err)

	require.NoError(t, ix.Index(ctx, core.Dataset{
		"c1": {"name": "acme"},
		"c2": {"name": "zeta"},
	}))
	assert.Equal(t, 2, ix.Len())

	messy := core.Dataset{
		"m0": {"name": "Zeta"},
		"m1": {"name": "acme"},
		"m2": {"name": "nothing"},
	}
	it, err := ix.Blocks(ctx, messy)
	require.NoError(t, err)
	assert.Equal(t, []core.Block{
		{QueryID: "m0", Candidates: []core.RecordID{"c2"}},
		{QueryID: "m1", Candidates: []core.RecordID{"c1"}},
	}, collectBlocks(t, it))

	// 重新索引 c2 会替换它原来的分块键
	require.NoError(t, ix.Index(ctx, core.Dataset{"c2": {"name": "acme"}}))
	assert.Equal(t, 2, ix.Len())
	it, err = ix.Blocks(ctx, messy)
	require.NoError(t, err)
	assert.Equal(t, []core.Block{
		{QueryID: "m1", Candidates: []core.RecordID{"c1", "c2"}},
	}, collectBlocks(t, it))

	require.NoError(t, ix.Unindex(ctx, core.Dataset{"c1": {"name": "acme"}, "missing": {}}))
	assert.Equal(t, 1, ix.Len())
	it, err = ix.Blocks(ctx, messy)
	require.NoError(t, err)
	assert.Equal(t, []core.Block{
		{QueryID: "m1", Candidates: []core.RecordID{"c2"}},
	}, collectBlocks(t, it))

	assert.Equal(t, core.Dataset{"c2": {"name": "acme"}}, ix.Records())
	rec, ok := ix.Get("c2")
	assert.True(t, ok)
	assert.Equal(t, core.Record{"name": "acme"}, rec)
	_, ok = ix.Get("c1")
	assert.False(t, ok)
	assert.Equal(t, []core.RecordID{"c2"}, ix.IDs())

	require.NoError(t, ix.Close())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIndex_TfidfPredicateStaysIndexed(t *testing.T) {
	ctx := context.Background()
	tfidf, err := predicate.NewTfidfSearch("name", 0.5, 0)
	require.NoError(t, err)
	ix, err := NewIndex(newBlocker(t, []predicate.Rule{{tfidf}}), t.TempDir())
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Index(ctx, core.Dataset{"c1": {"name": "acme widgets"}, "c2": {"name": "omega"}}))
	assert.True(t, tfidf.Indexed())

	it, err := ix.Blocks(ctx, core.Dataset{"m1": {"name": "acme widgets"}})
	require.NoError(t, err)
	assert.Equal(t, []core.Block{{QueryID: "m1", Candidates: []core.RecordID{"c1"}}}, collectBlocks(t, it))

	require.NoError(t, ix.Unindex(ctx, core.Dataset{"c1": {}}))
	it, err = ix.Blocks(ctx, core.Dataset{"m1": {"name": "acme widgets"}})
	require.NoError(t, err)
	assert.Empty(t, collectBlocks(t, it))
}

func TestIndex_EmptyMessy(t *testing.T) {
	ix, err := NewIndex(newBlocker(t, nameRules()), t.TempDir())
	require.NoError(t, err)
	defer ix.Close()

	it, err := ix.Blocks(context.Background(), core.Dataset{})
	require.NoError(t, err)
	assert.Empty(t, collectBlocks(t, it))
}
