package pipeline

import (
	"context"

	"github.com/rushteam/dedupekit/core"
)

// Kind 用于标记阶段类型，方便观测/编排（例如按阶段打点）。
type Kind string

const (
	KindBlock   Kind = "block"   // 分块阶段：生成候选对
	KindScore   Kind = "score"   // 打分阶段：计算候选对的匹配概率
	KindCluster Kind = "cluster" // 聚类阶段：把打分结果归并为簇/链接
	KindTrain   Kind = "train"   // 训练阶段：主动学习与规则学习
)

// Stage 是所有阶段的公共部分。
type Stage interface {
	Name() string
	Kind() Kind
}

// PairSource 产出候选对（去重/链接的分块）。
type PairSource interface {
	Stage
	Pairs(ctx context.Context) (core.PairIterator, error)
}

// Scorer 为候选对打分；返回的结果集由调用方 Close。
type Scorer interface {
	Stage
	Score(ctx context.Context, pairs core.PairIterator) (core.ScoredPairs, error)
}

// Clusterer 把打分结果归并为 T（core.Cluster 或 core.Link）。
type Clusterer[T any] interface {
	Stage
	Cluster(ctx context.Context, scores core.ScoredPairs) ([]T, error)
}

// Trainable 是可主动学习的 matcher 能力。
//
// 典型流程：
//
//	for {
//	    pairs, _ := m.UncertainPairs()
//	    // 人工标注 ...
//	    m.MarkPairs(labeled)
//	}
//	m.Train(0.95, true)
//	m.CleanupTraining()
type Trainable interface {
	UncertainPairs() ([]core.Example, error)
	MarkPairs(labeled core.TrainingPairs) error
	Train(recall float64, indexPredicates bool) error
	CleanupTraining()
}
