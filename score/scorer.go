// Package score 并行计算候选对的匹配概率。
package score

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pipeline"
	"github.com/rushteam/dedupekit/pkg/logger"
)

// DefaultChunkSize 是每个 worker 一次处理的候选对数量
const DefaultChunkSize = 2000

// PairScorer 是一个 Score 阶段：把候选对分块分发给 worker 并发打分，单个收集者写入 Buffer。
//
// 任一 worker 出错会取消其余 worker，已写入的部分结果被释放，错误原样返回。
// 结果顺序不保证。
type PairScorer struct {
	DataModel  core.DataModel
	Classifier core.Classifier

	// Left 提供 Pair.A 的记录，Right 提供 Pair.B 的记录（去重模式两者相同）
	Left  core.RecordStore
	Right core.RecordStore

	// Threshold 丢弃分数低于该值的候选对
	Threshold float64

	Workers   int // <= 0 时使用 runtime.NumCPU()
	ChunkSize int // <= 0 时使用 DefaultChunkSize
	SpillAt   int // Buffer 的内存上限，<= 0 时使用 DefaultSpillAt
	TempDir   string
}

var _ pipeline.Scorer = (*PairScorer)(nil)

func (s *PairScorer) Name() string        { return "score.pairs" }
func (s *PairScorer) Kind() pipeline.Kind { return pipeline.KindScore }

func workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func (s *PairScorer) Score(ctx context.Context, pairs core.PairIterator) (core.ScoredPairs, error) {
	buf, err := s.ScoreToBuffer(ctx, pairs)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ScoreToBuffer 与 Score 相同，但返回具体的 *Buffer。
func (s *PairScorer) ScoreToBuffer(ctx context.Context, pairs core.PairIterator) (*Buffer, error) {
	n := workers(s.Workers)
	size := s.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	chunks := make(chan []core.Pair, n)
	results := make(chan []core.ScoredPair, n)

	g.Go(func() error {
		defer close(chunks)
		chunk := make([]core.Pair, 0, size)
		send := func() error {
			select {
			case chunks <- chunk:
				chunk = make([]core.Pair, 0, size)
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		for pairs.Next() {
			chunk = append(chunk, pairs.Pair())
			if len(chunk) == size {
				if err := send(); err != nil {
					return err
				}
			}
		}
		if err := pairs.Err(); err != nil {
			return err
		}
		if len(chunk) > 0 {
			return send()
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for chunk := range chunks {
				if gctx.Err() != nil {
					continue
				}
				scored, err := s.scoreChunk(chunk)
				if err != nil {
					return err
				}
				select {
				case results <- scored:
				case <-gctx.Done():
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	buf := NewBuffer(s.TempDir, s.SpillAt)
	var collectErr error
	for scored := range results {
		if collectErr != nil {
			continue
		}
		for _, sp := range scored {
			if err := buf.Append(sp); err != nil {
				collectErr = err
				cancel()
				break
			}
		}
	}

	err := g.Wait()
	if collectErr != nil {
		err = collectErr
	}
	if err != nil {
		_ = buf.Close()
		return nil, err
	}
	logger.Debug("pairs scored", "kept", buf.Len(), "spilled", buf.Spilled(), "workers", n)
	return buf, nil
}

func (s *PairScorer) scoreChunk(chunk []core.Pair) ([]core.ScoredPair, error) {
	examples := make([]core.Example, len(chunk))
	for i, p := range chunk {
		a, ok := s.Left.Get(p.A)
		if !ok {
			return nil, missingRecord(p.A)
		}
		b, ok := s.Right.Get(p.B)
		if !ok {
			return nil, missingRecord(p.B)
		}
		examples[i] = core.Example{A: a, B: b}
	}
	probs, err := predict(s.DataModel, s.Classifier, examples)
	if err != nil {
		return nil, err
	}
	out := make([]core.ScoredPair, 0, len(chunk))
	for i, p := range chunk {
		if probs[i] >= s.Threshold {
			out = append(out, core.ScoredPair{Pair: p, Score: probs[i]})
		}
	}
	return out, nil
}

func predict(dm core.DataModel, clf core.Classifier, examples []core.Example) ([]float64, error) {
	if len(examples) == 0 {
		return nil, nil
	}
	X, err := dm.Distances(examples)
	if err != nil {
		return nil, fmt.Errorf("distances: %w", err)
	}
	probs, err := clf.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return probs, nil
}

func missingRecord(id core.RecordID) error {
	return core.NewDomainError(core.ModuleScore, core.ErrorCodeNotFound,
		fmt.Sprintf("record %q referenced by a candidate pair does not exist", id))
}
