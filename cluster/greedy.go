package cluster

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pipeline"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/pkg/spill"
)

// 贪心匹配的消费策略
type consume int

const (
	consumeBoth consume = iota // 一对一：左右端点都只能使用一次
	consumeLeft                // 多对一：每条左记录最多匹配一次，右记录可复用
	consumeShared              // 一对一且左右共用 ID 空间：任一端出现过的 ID 都不再使用
)

// OneToOne 是链接的贪心一对一匹配：按分数降序接受两端都未匹配的候选对。
// 结果中任何左 ID、右 ID 最多出现一次。分数相同时按左 ID、右 ID 升序。
//
// SharedIDs 为 true 时左右 ID 视为同一命名空间（例如同一数据集内部的配对），
// 一个 ID 无论作为左端还是右端被匹配过，都不会再被接受。
type OneToOne struct {
	Threshold float64
	TempDir   string
	SharedIDs bool
}

// ManyToOne 是链接的贪心多对一匹配：每条左记录取分数最高的右记录，右记录可被多次使用。
type ManyToOne struct {
	Threshold float64
	TempDir   string
}

// ManyToMany 返回全部 >= Threshold 的候选对。
type ManyToMany struct {
	Threshold float64
}

var (
	_ pipeline.Clusterer[core.Link] = (*OneToOne)(nil)
	_ pipeline.Clusterer[core.Link] = (*ManyToOne)(nil)
	_ pipeline.Clusterer[core.Link] = (*ManyToMany)(nil)
)

func (c *OneToOne) Name() string        { return "cluster.one_to_one" }
func (c *OneToOne) Kind() pipeline.Kind { return pipeline.KindCluster }

func (c *OneToOne) Cluster(ctx context.Context, scores core.ScoredPairs) ([]core.Link, error) {
	mode := consumeBoth
	if c.SharedIDs {
		mode = consumeShared
	}
	return greedy(ctx, scores, c.Threshold, c.TempDir, mode)
}

func (c *ManyToOne) Name() string        { return "cluster.many_to_one" }
func (c *ManyToOne) Kind() pipeline.Kind { return pipeline.KindCluster }

func (c *ManyToOne) Cluster(ctx context.Context, scores core.ScoredPairs) ([]core.Link, error) {
	return greedy(ctx, scores, c.Threshold, c.TempDir, consumeLeft)
}

func (c *ManyToMany) Name() string        { return "cluster.many_to_many" }
func (c *ManyToMany) Kind() pipeline.Kind { return pipeline.KindCluster }

func (c *ManyToMany) Cluster(ctx context.Context, scores core.ScoredPairs) ([]core.Link, error) {
	out := make([]core.Link, 0, scores.Len())
	err := scores.Iterate(func(sp core.ScoredPair) error {
		if sp.Score >= c.Threshold {
			out = append(out, sp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

// descendingKey 让 Badger 的字节序等价于分数降序：分数 >= 0 时 IEEE754 位模式与数值同序，取反即降序。
func descendingKey(sp core.ScoredPair) []byte {
	key := make([]byte, 8, 8+len(sp.A)+len(sp.B)+2)
	binary.BigEndian.PutUint64(key, ^math.Float64bits(sp.Score))
	key = spill.AppendString(key, sp.A)
	return append(key, sp.B...)
}

func decodeDescendingKey(key []byte) (core.ScoredPair, error) {
	if len(key) < 8 {
		return core.ScoredPair{}, fmt.Errorf("cluster: corrupt sort key")
	}
	score := math.Float64frombits(^binary.BigEndian.Uint64(key[:8]))
	a, b, err := spill.ReadString(key[8:])
	if err != nil {
		return core.ScoredPair{}, err
	}
	return core.ScoredPair{Pair: core.Pair{A: a, B: string(b)}, Score: score}, nil
}

func greedy(ctx context.Context, scores core.ScoredPairs, threshold float64, tempDir string, mode consume) ([]core.Link, error) {
	start := time.Now()
	store, err := spill.OpenTemp(tempDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	w := store.NewWriter()
	err = scores.Iterate(func(sp core.ScoredPair) error {
		if sp.Score < threshold || math.IsNaN(sp.Score) {
			return nil
		}
		return w.Set(descendingKey(sp), nil)
	})
	if err == nil {
		err = w.Flush()
	} else {
		w.Cancel()
	}
	if err != nil {
		return nil, fmt.Errorf("cluster: sort scores: %w", err)
	}

	usedA := make(map[core.RecordID]struct{})
	usedB := make(map[core.RecordID]struct{})
	var (
		out  []core.Link
		tied []core.ScoredPair
	)
	accept := func() {
		// 同分的候选对按 (A, B) 升序处理
		sort.Slice(tied, func(i, j int) bool {
			if tied[i].A != tied[j].A {
				return tied[i].A < tied[j].A
			}
			return tied[i].B < tied[j].B
		})
		for _, sp := range tied {
			switch mode {
			case consumeLeft:
				if _, ok := usedA[sp.A]; ok {
					continue
				}
				usedA[sp.A] = struct{}{}
			case consumeBoth:
				_, okA := usedA[sp.A]
				_, okB := usedB[sp.B]
				if okA || okB {
					continue
				}
				usedA[sp.A] = struct{}{}
				usedB[sp.B] = struct{}{}
			case consumeShared:
				_, okA := usedA[sp.A]
				_, okB := usedA[sp.B]
				if okA || okB || sp.A == sp.B {
					continue
				}
				usedA[sp.A] = struct{}{}
				usedA[sp.B] = struct{}{}
			}
			out = append(out, sp)
		}
		tied = tied[:0]
	}
	n := 0
	err = store.Scan(nil, false, func(key, _ []byte) error {
		n++
		if n%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		sp, err := decodeDescendingKey(key)
		if err != nil {
			return err
		}
		if len(tied) > 0 && tied[0].Score != sp.Score {
			accept()
		}
		tied = append(tied, sp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cluster: scan scores: %w", err)
	}
	accept()

	logger.Debug("greedy matching done", "candidates", n, "links", len(out), "took", time.Since(start))
	return out, nil
}
