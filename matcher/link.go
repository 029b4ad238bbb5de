package matcher

import (
	"context"
	"fmt"
	"io"
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

// 链接约束
const (
	ConstraintOneToOne   = "one-to-one"
	ConstraintManyToOne  = "many-to-one"
	ConstraintManyToMany = "many-to-many"
)

// linkOps 是两个数据集之间的链接能力。
type linkOps struct {
	*base
}

func (l *linkOps) source(left, right core.RecordStore) *blocking.LinkSource {
	return &blocking.LinkSource{Blocker: l.blocker, Left: left, Right: right, TempDir: l.opts.TempDir}
}

// Pairs 返回 (左 ID, 右 ID) 候选对，每对最多一次。调用方必须 Close 游标。
func (l *linkOps) Pairs(ctx context.Context, left, right core.RecordStore) (core.PairIterator, error) {
	if err := l.requireBlocker(); err != nil {
		return nil, err
	}
	return l.source(left, right).Pairs(ctx)
}

// Score 为候选对打分，丢弃低于 threshold 的结果，并关闭 pairs。调用方必须 Close 返回的 Buffer。
func (l *linkOps) Score(ctx context.Context, left, right core.RecordStore, pairs core.PairIterator, threshold float64) (*score.Buffer, error) {
	return l.score(ctx, left, right, pairs, threshold)
}

// OneToOne 贪心一对一匹配。默认左右两侧的 ID 分别消耗：左 "2" 与右 "2" 是不同记录；
// WithSharedIDs(true) 时两侧共用 ID 空间，任一侧用过的 ID 不再出现在后续链接中。
func (l *linkOps) OneToOne(ctx context.Context, scores core.ScoredPairs, threshold float64) ([]core.Link, error) {
	return l.oneToOne(threshold).Cluster(ctx, scores)
}

// ManyToOne 贪心多对一匹配：每条左记录最多一个右记录
func (l *linkOps) ManyToOne(ctx context.Context, scores core.ScoredPairs, threshold float64) ([]core.Link, error) {
	return l.manyToOne(threshold).Cluster(ctx, scores)
}

func (l *linkOps) oneToOne(threshold float64) *cluster.OneToOne {
	return &cluster.OneToOne{Threshold: threshold, TempDir: l.opts.TempDir, SharedIDs: l.opts.SharedIDs}
}

func (l *linkOps) manyToOne(threshold float64) *cluster.ManyToOne {
	return &cluster.ManyToOne{Threshold: threshold, TempDir: l.opts.TempDir}
}

func (l *linkOps) clusterer(threshold float64, constraint string) (pipeline.Clusterer[core.Link], error) {
	switch constraint {
	case ConstraintOneToOne:
		return l.oneToOne(threshold), nil
	case ConstraintManyToOne:
		return l.manyToOne(threshold), nil
	case ConstraintManyToMany:
		return &cluster.ManyToMany{Threshold: threshold}, nil
	default:
		return nil, core.WrapDomainError(core.ModuleMatcher, core.ErrorCodeInvalidConstraint, core.ErrInvalidConstraint,
			"matcher: constraint %q", constraint)
	}
}

// Join 分块、打分并按 constraint 输出链接。
// constraint 必须是 one-to-one、many-to-one 或 many-to-many，否则返回 InvalidConstraintError。
// one-to-one 默认按侧消耗 ID（见 OneToOne），左右共用 ID 空间时使用 WithSharedIDs(true)。
func (l *linkOps) Join(ctx context.Context, left, right core.RecordStore, threshold float64, constraint string) ([]core.Link, error) {
	c, err := l.clusterer(threshold, constraint)
	if err != nil {
		return nil, err
	}
	if err := l.requireBlocker(); err != nil {
		return nil, err
	}
	if err := feature.CheckStore(l.dm, left); err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	if err := feature.CheckStore(l.dm, right); err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}
	run := newRunID()
	start := time.Now()
	p := &pipeline.Pipeline[core.Link]{
		Source:    l.source(left, right),
		Scorer:    l.pairScorer(left, right, threshold),
		Clusterer: c,
		RunID:     run,
	}
	links, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("join done", "run", run, "constraint", constraint, "left", left.Len(), "right", right.Len(),
		"links", len(links), "took", time.Since(start))
	return links, nil
}

// StaticRecordLink 是从 settings 加载的链接 matcher。
type StaticRecordLink struct {
	*linkOps
}

// NewStaticRecordLink 从 settings 构造；settings 不兼容时返回 IncompatibleSettingsError。
func NewStaticRecordLink(r io.Reader, opts ...Option) (*StaticRecordLink, error) {
	b, err := newStaticBase(r, opts)
	if err != nil {
		return nil, err
	}
	return &StaticRecordLink{linkOps: &linkOps{base: b}}, nil
}

// RecordLink 是可主动学习的链接 matcher。
type RecordLink struct {
	*linkOps
	*trainer
}

// NewRecordLink 按变量定义构造未训练的链接 matcher
func NewRecordLink(vars []feature.Variable, opts ...Option) (*RecordLink, error) {
	b, err := newBase(vars, opts)
	if err != nil {
		return nil, err
	}
	return &RecordLink{linkOps: &linkOps{base: b}, trainer: &trainer{b: b}}, nil
}

// PrepareTraining 先读入 opts.Training 中的已有标注，再从左右数据集抽取候选样本池。
func (l *RecordLink) PrepareTraining(ctx context.Context, left, right core.RecordStore, opts TrainingOptions) error {
	return prepareLink(l.trainer, left, right, opts)
}

func prepareLink(t *trainer, left, right core.RecordStore, opts TrainingOptions) error {
	if err := feature.CheckStore(t.b.dm, left); err != nil {
		return fmt.Errorf("left: %w", err)
	}
	if err := feature.CheckStore(t.b.dm, right); err != nil {
		return fmt.Errorf("right: %w", err)
	}
	if err := t.readExisting(opts.Training); err != nil {
		return err
	}
	opts = opts.withDefaults(&core.DefaultLinkConfig{})
	l, err := labeler.NewLinkLearner(t.b.dm, t.b.clf, left, right, learnerOptions(opts))
	if err != nil {
		return err
	}
	return t.attach(l, opts)
}
