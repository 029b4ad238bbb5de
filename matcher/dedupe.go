package matcher

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/rushteam/dedupekit/blocking"
	"github.com/rushteam/dedupekit/cluster"
	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/labeler"
	"github.com/rushteam/dedupekit/pipeline"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/score"
)

// dedupeOps 是单数据集去重的能力：分块、打分、层次聚类。
type dedupeOps struct {
	*base
}

// Pairs 返回数据集内的候选对（A < B，每对最多一次）。调用方必须 Close 游标。
func (d *dedupeOps) Pairs(ctx context.Context, data core.RecordStore) (core.PairIterator, error) {
	if err := d.requireBlocker(); err != nil {
		return nil, err
	}
	return d.source(data).Pairs(ctx)
}

func (d *dedupeOps) source(data core.RecordStore) *blocking.DedupeSource {
	return &blocking.DedupeSource{Blocker: d.blocker, Data: data, TempDir: d.opts.TempDir}
}

// Score 为候选对打分，丢弃低于 threshold 的结果，并关闭 pairs。调用方必须 Close 返回的 Buffer。
func (d *dedupeOps) Score(ctx context.Context, data core.RecordStore, pairs core.PairIterator, threshold float64) (*score.Buffer, error) {
	return d.score(ctx, data, data, pairs, threshold)
}

func (d *dedupeOps) clusterer(threshold float64) *cluster.Hierarchical {
	return &cluster.Hierarchical{
		Threshold:        threshold,
		MaxComponentSize: d.opts.MaxComponentSize,
		TempDir:          d.opts.TempDir,
	}
}

// Cluster 对打分结果做层次聚类，只返回成员数 >= 2 的簇。
func (d *dedupeOps) Cluster(ctx context.Context, scores core.ScoredPairs, threshold float64) ([]core.Cluster, error) {
	return d.clusterer(threshold).Cluster(ctx, scores)
}

// Partition 把数据集划分为实体簇：每个记录 ID 恰好出现在一个簇中，未成簇的记录为置信度 1.0 的单例。
func (d *dedupeOps) Partition(ctx context.Context, data core.RecordStore, threshold float64) ([]core.Cluster, error) {
	if err := d.requireBlocker(); err != nil {
		return nil, err
	}
	if err := feature.CheckStore(d.dm, data); err != nil {
		return nil, err
	}
	run := newRunID()
	start := time.Now()
	// 低于 threshold 的边也参与平均链接，阈值只在聚类阶段生效
	p := &pipeline.Pipeline[core.Cluster]{
		Source:    d.source(data),
		Scorer:    d.pairScorer(data, data, 0),
		Clusterer: d.clusterer(threshold),
		RunID:     run,
	}
	clusters, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	clusters = withSingletons(clusters, data.IDs())
	logger.Info("partition done", "run", run, "records", data.Len(), "clusters", len(clusters),
		"took", time.Since(start))
	return clusters, nil
}

// withSingletons 为未出现在任何簇中的 ID 补上单例簇，结果按首个成员 ID 升序。
func withSingletons(clusters []core.Cluster, ids []core.RecordID) []core.Cluster {
	seen := make(map[core.RecordID]struct{})
	for _, c := range clusters {
		for _, id := range c.IDs {
			seen[id] = struct{}{}
		}
	}
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			clusters = append(clusters, core.Cluster{IDs: []core.RecordID{id}, Scores: []float64{1.0}})
		}
	}
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].IDs[0] < clusters[j].IDs[0] })
	return clusters
}

// StaticDedupe 是从 settings 加载的去重 matcher。
type StaticDedupe struct {
	*dedupeOps
}

// NewStaticDedupe 从 settings 构造；settings 不兼容时返回 IncompatibleSettingsError。
func NewStaticDedupe(r io.Reader, opts ...Option) (*StaticDedupe, error) {
	b, err := newStaticBase(r, opts)
	if err != nil {
		return nil, err
	}
	return &StaticDedupe{dedupeOps: &dedupeOps{base: b}}, nil
}

// Dedupe 是可主动学习的去重 matcher。
//
//	d, _ := matcher.NewDedupe(vars)
//	_ = d.PrepareTraining(ctx, data, matcher.TrainingOptions{})
//	// UncertainPairs / MarkPairs 循环 ...
//	_ = d.Train(0.95, true)
//	clusters, _ := d.Partition(ctx, data, 0.5)
type Dedupe struct {
	*dedupeOps
	*trainer
}

// NewDedupe 按变量定义构造未训练的去重 matcher
func NewDedupe(vars []feature.Variable, opts ...Option) (*Dedupe, error) {
	b, err := newBase(vars, opts)
	if err != nil {
		return nil, err
	}
	return &Dedupe{dedupeOps: &dedupeOps{base: b}, trainer: &trainer{b: b}}, nil
}

// PrepareTraining 先读入 opts.Training 中的已有标注，再从 data 抽取候选样本池。
func (d *Dedupe) PrepareTraining(ctx context.Context, data core.RecordStore, opts TrainingOptions) error {
	if err := feature.CheckStore(d.dm, data); err != nil {
		return err
	}
	if err := d.readExisting(opts.Training); err != nil {
		return err
	}
	opts = opts.withDefaults(&core.DefaultDedupeConfig{})
	l, err := labeler.NewDedupeLearner(d.dm, d.clf, data, learnerOptions(opts))
	if err != nil {
		return err
	}
	return d.attach(l, opts)
}
