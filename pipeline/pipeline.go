package pipeline

import (
	"context"
	"time"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/logger"
)

// Pipeline 把 分块 -> 打分 -> 聚类 串成一次匹配。
// 每个阶段产生的临时存储（候选对游标、打分缓冲）在 Run 返回前释放，无论成功与否。
type Pipeline[T any] struct {
	Source    PairSource
	Scorer    Scorer
	Clusterer Clusterer[T]
	// RunID 用于日志关联，可为空
	RunID string
}

func (p *Pipeline[T]) Run(ctx context.Context) ([]T, error) {
	start := time.Now()
	pairs, err := p.Source.Pairs(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("stage done", "run", p.RunID, "stage", p.Source.Name(), "kind", p.Source.Kind(), "took", time.Since(start))

	start = time.Now()
	scores, err := p.Scorer.Score(ctx, pairs)
	closeErr := pairs.Close()
	if err != nil {
		return nil, err
	}
	defer scores.Close()
	if closeErr != nil {
		return nil, closeErr
	}
	logger.Debug("stage done", "run", p.RunID, "stage", p.Scorer.Name(), "kind", p.Scorer.Kind(),
		"scored", scores.Len(), "took", time.Since(start))

	start = time.Now()
	out, err := p.Clusterer.Cluster(ctx, scores)
	if err != nil {
		return nil, err
	}
	logger.Debug("stage done", "run", p.RunID, "stage", p.Clusterer.Name(), "kind", p.Clusterer.Kind(),
		"results", len(out), "took", time.Since(start))
	return out, nil
}

// Drain 读完游标并关闭，返回全部候选对（测试与小数据集）。
func Drain(it core.PairIterator) ([]core.Pair, error) {
	defer it.Close()
	var out []core.Pair
	for it.Next() {
		out = append(out, it.Pair())
	}
	return out, it.Err()
}
