package cluster

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/score"
)

func sp(a, b string, s float64) core.ScoredPair {
	return core.ScoredPair{Pair: core.Pair{A: a, B: b}, Score: s}
}

func buffer(pairs ...core.ScoredPair) *score.Buffer {
	return score.NewBufferFrom(pairs)
}

func TestHierarchical_TwoMembers(t *testing.T) {
	dir := t.TempDir()
	h := &Hierarchical{Threshold: 0.5, TempDir: dir}

	clusters, err := h.Cluster(context.Background(), buffer(sp("1", "2", 0.9)))
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"1", "2"}, clusters[0].IDs)
	assert.InDeltaSlice(t, []float64{0.9, 0.9}, clusters[0].Scores, 1e-9)

	clusters, err = h.Cluster(context.Background(), buffer(sp("1", "2", 0.3)))
	require.NoError(t, err)
	assert.Empty(t, clusters)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHierarchical_AverageLinkage(t *testing.T) {
	ctx := context.Background()

	t.Run("triangle merges", func(t *testing.T) {
		h := &Hierarchical{Threshold: 0.5, TempDir: t.TempDir()}
		clusters, err := h.Cluster(ctx, buffer(sp("a", "b", 0.9), sp("b", "c", 0.9), sp("a", "c", 0.8)))
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		assert.Equal(t, []string{"a", "b", "c"}, clusters[0].IDs)
		// a: 到 b 距离 0.1、到 c 距离 0.2
		assert.InDelta(t, 0.841886, clusters[0].Scores[0], 1e-5)
		assert.InDelta(t, 0.9, clusters[0].Scores[1], 1e-9)
		assert.InDelta(t, 0.841886, clusters[0].Scores[2], 1e-5)
	})

	t.Run("missing edge counts as distance one", func(t *testing.T) {
		pairs := []core.ScoredPair{sp("a", "b", 0.9), sp("b", "c", 0.9)}

		h := &Hierarchical{Threshold: 0.5, TempDir: t.TempDir()}
		clusters, err := h.Cluster(ctx, buffer(pairs...))
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		assert.Equal(t, []string{"a", "b"}, clusters[0].IDs)

		h.Threshold = 0.4
		clusters, err = h.Cluster(ctx, buffer(pairs...))
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		assert.Equal(t, []string{"a", "b", "c"}, clusters[0].IDs)
	})

	t.Run("components sorted by first id", func(t *testing.T) {
		h := &Hierarchical{Threshold: 0.5, TempDir: t.TempDir()}
		clusters, err := h.Cluster(ctx, buffer(sp("x", "y", 0.8), sp("a", "b", 0.7), sp("m", "n", 0)))
		require.NoError(t, err)
		require.Len(t, clusters, 2)
		assert.Equal(t, []string{"a", "b"}, clusters[0].IDs)
		assert.Equal(t, []string{"x", "y"}, clusters[1].IDs)
	})
}

func TestHierarchical_SplitsOversizedComponents(t *testing.T) {
	h := &Hierarchical{Threshold: 0.5, MaxComponentSize: 2, TempDir: t.TempDir()}
	clusters, err := h.Cluster(context.Background(), buffer(sp("a", "b", 0.9), sp("b", "c", 0.8)))
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"a", "b"}, clusters[0].IDs)
}

func TestHierarchical_Empty(t *testing.T) {
	h := &Hierarchical{Threshold: 0.5, TempDir: t.TempDir()}
	clusters, err := h.Cluster(context.Background(), buffer())
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestAverageLinkage_Chain(t *testing.T) {
	edges := []edge{{0, 1, 0.95}, {1, 2, 0.9}, {2, 3, 0.2}}
	groups := averageLinkage(4, edges, 0.5)
	assert.Equal(t, [][]int{{0, 1}}, groups)
}

func TestOneToOne(t *testing.T) {
	ctx := context.Background()
	pairs := buffer(sp("1", "2", 0.9), sp("1", "3", 0.8), sp("2", "4", 0.7))

	t.Run("separate id spaces", func(t *testing.T) {
		links, err := (&OneToOne{TempDir: t.TempDir()}).Cluster(ctx, pairs)
		require.NoError(t, err)
		assert.Equal(t, []core.Link{sp("1", "2", 0.9), sp("2", "4", 0.7)}, links)
	})

	t.Run("shared id space", func(t *testing.T) {
		links, err := (&OneToOne{SharedIDs: true, TempDir: t.TempDir()}).Cluster(ctx, pairs)
		require.NoError(t, err)
		assert.Equal(t, []core.Link{sp("1", "2", 0.9)}, links)
	})
}

func TestOneToOne_InjectiveAndTieBreak(t *testing.T) {
	links, err := (&OneToOne{Threshold: 0.5, TempDir: t.TempDir()}).Cluster(context.Background(), buffer(
		sp("b", "y", 0.8),
		sp("a", "y", 0.8),
		sp("a", "x", 0.6),
		sp("b", "x", 0.6),
		sp("c", "z", 0.4),
	))
	require.NoError(t, err)
	assert.Equal(t, []core.Link{sp("a", "y", 0.8), sp("b", "x", 0.6)}, links)

	left := map[string]bool{}
	right := map[string]bool{}
	for _, l := range links {
		assert.False(t, left[l.A])
		assert.False(t, right[l.B])
		left[l.A], right[l.B] = true, true
	}
}

func TestManyToOne(t *testing.T) {
	links, err := (&ManyToOne{TempDir: t.TempDir()}).Cluster(context.Background(), buffer(
		sp("a", "x", 0.9),
		sp("b", "x", 0.8),
		sp("a", "y", 0.7),
		sp("c", "y", 0.6),
	))
	require.NoError(t, err)
	assert.Equal(t, []core.Link{sp("a", "x", 0.9), sp("b", "x", 0.8), sp("c", "y", 0.6)}, links)
}

func TestManyToMany(t *testing.T) {
	links, err := (&ManyToMany{Threshold: 0.5}).Cluster(context.Background(), buffer(
		sp("a", "x", 0.9), sp("a", "y", 0.4), sp("b", "x", 0.5),
	))
	require.NoError(t, err)
	assert.Equal(t, []core.Link{sp("a", "x", 0.9), sp("b", "x", 0.5)}, links)
}

func TestManyToN(t *testing.T) {
	blocks := []score.Block{
		{QueryID: "q1", Pairs: []core.ScoredPair{sp("q1", "c1", 0.6), sp("q1", "c2", 0.9), sp("q1", "c3", 0.6), sp("q1", "c4", 0.2)}},
		{QueryID: "q2", Pairs: []core.ScoredPair{sp("q2", "c1", 0.1)}},
		{QueryID: "q3"},
	}

	results := ManyToN(blocks, 0.5, 2)
	require.Len(t, results, 3)
	assert.Equal(t, core.SearchResult{QueryID: "q1", Matches: []core.Match{{ID: "c2", Score: 0.9}, {ID: "c1", Score: 0.6}}}, results[0])
	assert.Equal(t, "q2", results[1].QueryID)
	assert.Empty(t, results[1].Matches)
	assert.Equal(t, "q3", results[2].QueryID)
	assert.Empty(t, results[2].Matches)

	unbounded := ManyToN(blocks, 0.5, 0)
	assert.Equal(t, []core.Match{{ID: "c2", Score: 0.9}, {ID: "c1", Score: 0.6}, {ID: "c3", Score: 0.6}}, unbounded[0].Matches)
}
