package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/dedupekit/core"
)

type trackedPairs struct {
	core.PairIterator
	closed bool
}

func (t *trackedPairs) Close() error {
	t.closed = true
	return t.PairIterator.Close()
}

type fakeSource struct {
	pairs *trackedPairs
}

func (s *fakeSource) Name() string { return "source" }
func (s *fakeSource) Kind() Kind   { return KindBlock }
func (s *fakeSource) Pairs(ctx context.Context) (core.PairIterator, error) {
	return s.pairs, nil
}

type memScores struct {
	pairs  []core.ScoredPair
	closed bool
}

func (m *memScores) Len() int { return len(m.pairs) }
func (m *memScores) Iterate(fn func(core.ScoredPair) error) error {
	for _, sp := range m.pairs {
		if err := fn(sp); err != nil {
			return err
		}
	}
	return nil
}
func (m *memScores) Close() error {
	m.closed = true
	return nil
}

type fakeScorer struct {
	out *memScores
	err error
}

func (s *fakeScorer) Name() string { return "scorer" }
func (s *fakeScorer) Kind() Kind   { return KindScore }
func (s *fakeScorer) Score(ctx context.Context, pairs core.PairIterator) (core.ScoredPairs, error) {
	if s.err != nil {
		return nil, s.err
	}
	for pairs.Next() {
		s.out.pairs = append(s.out.pairs, core.ScoredPair{Pair: pairs.Pair(), Score: 0.9})
	}
	return s.out, pairs.Err()
}

type countClusterer struct {
	err error
}

func (c *countClusterer) Name() string { return "count" }
func (c *countClusterer) Kind() Kind   { return KindCluster }
func (c *countClusterer) Cluster(ctx context.Context, scores core.ScoredPairs) ([]int, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []int{scores.Len()}, nil
}

func newFixture() (*trackedPairs, *memScores) {
	pairs := &trackedPairs{PairIterator: core.SlicePairs([]core.Pair{{A: "1", B: "2"}, {A: "1", B: "3"}})}
	return pairs, &memScores{}
}

func TestPipeline_Run(t *testing.T) {
	pairs, scores := newFixture()
	p := &Pipeline[int]{
		Source:    &fakeSource{pairs: pairs},
		Scorer:    &fakeScorer{out: scores},
		Clusterer: &countClusterer{},
		RunID:     "test",
	}
	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, out)
	assert.True(t, pairs.closed)
	assert.True(t, scores.closed)
}

func TestPipeline_ReleasesOnError(t *testing.T) {
	boom := errors.New("boom")

	pairs, scores := newFixture()
	p := &Pipeline[int]{
		Source:    &fakeSource{pairs: pairs},
		Scorer:    &fakeScorer{out: scores, err: boom},
		Clusterer: &countClusterer{},
	}
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, pairs.closed)

	pairs, scores = newFixture()
	p = &Pipeline[int]{
		Source:    &fakeSource{pairs: pairs},
		Scorer:    &fakeScorer{out: scores},
		Clusterer: &countClusterer{err: boom},
	}
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, pairs.closed)
	assert.True(t, scores.closed)
}

func TestDrain(t *testing.T) {
	pairs := &trackedPairs{PairIterator: core.SlicePairs([]core.Pair{{A: "a", B: "b"}})}
	out, err := Drain(pairs)
	require.NoError(t, err)
	assert.Equal(t, []core.Pair{{A: "a", B: "b"}}, out)
	assert.True(t, pairs.closed)
}
