package score

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pipeline"
)

// Block 是一条查询记录的打分结果，Pairs 保持候选的原始顺序，A 为查询 ID。
type Block struct {
	QueryID core.RecordID
	Pairs   []core.ScoredPair
}

// BlockScorer 为 gazetteer 分块打分：分块之间并发，分块内部保持候选顺序，
// 输出与输入分块一一对应、顺序一致。
type BlockScorer struct {
	DataModel  core.DataModel
	Classifier core.Classifier

	// Left 提供查询记录，Right 提供已索引记录
	Left  core.RecordStore
	Right core.RecordStore

	Threshold float64
	Workers   int
}

func (s *BlockScorer) Name() string        { return "score.blocks" }
func (s *BlockScorer) Kind() pipeline.Kind { return pipeline.KindScore }

func (s *BlockScorer) ScoreBlocks(ctx context.Context, blocks core.BlockIterator) ([]Block, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(s.Workers))

	var (
		mu  sync.Mutex
		out []Block
	)
	for i := 0; blocks.Next(); i++ {
		if gctx.Err() != nil {
			break
		}
		blk := blocks.Block()
		mu.Lock()
		out = append(out, Block{QueryID: blk.QueryID})
		mu.Unlock()

		idx := i
		g.Go(func() error {
			pairs, err := s.scoreBlock(blk)
			if err != nil {
				return err
			}
			mu.Lock()
			out[idx].Pairs = pairs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := blocks.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BlockScorer) scoreBlock(blk core.Block) ([]core.ScoredPair, error) {
	query, ok := s.Left.Get(blk.QueryID)
	if !ok {
		return nil, missingRecord(blk.QueryID)
	}
	examples := make([]core.Example, len(blk.Candidates))
	for i, id := range blk.Candidates {
		rec, ok := s.Right.Get(id)
		if !ok {
			return nil, missingRecord(id)
		}
		examples[i] = core.Example{A: query, B: rec}
	}
	probs, err := predict(s.DataModel, s.Classifier, examples)
	if err != nil {
		return nil, err
	}
	pairs := make([]core.ScoredPair, 0, len(examples))
	for i, id := range blk.Candidates {
		if probs[i] >= s.Threshold {
			pairs = append(pairs, core.ScoredPair{Pair: core.Pair{A: blk.QueryID, B: id}, Score: probs[i]})
		}
	}
	return pairs, nil
}
