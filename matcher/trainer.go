package matcher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/labeler"
	"github.com/rushteam/dedupekit/pipeline"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/serializer"
)

// trainer 是主动学习能力：标注样本池、委员会、规则学习。
type trainer struct {
	b        *base
	learner  *labeler.DisagreementLearner
	training core.TrainingPairs
}

var _ pipeline.Trainable = (*trainer)(nil)

// checkExamples 校验标注记录满足数据模型
func (t *trainer) checkExamples(pairs core.TrainingPairs) error {
	examples, _ := pairs.Flatten()
	for i, e := range examples {
		id := fmt.Sprintf("example[%d]", i)
		if err := t.b.dm.Check(id+".a", e.A); err != nil {
			return err
		}
		if err := t.b.dm.Check(id+".b", e.B); err != nil {
			return err
		}
	}
	return nil
}

// readExisting 在抽样前读入已有标注
func (t *trainer) readExisting(r io.Reader) error {
	if r == nil {
		return nil
	}
	return t.ReadTraining(r)
}

// attach 设置新抽出的样本池，并把已有标注交给它
func (t *trainer) attach(l *labeler.DisagreementLearner, opts TrainingOptions) error {
	if opts.MaxCoverShare > 0 {
		l.BlockLearner().MaxCoverShare = opts.MaxCoverShare
	}
	t.learner = l
	examples, labels := t.training.Flatten()
	return l.Mark(examples, labels)
}

func learnerOptions(opts TrainingOptions) labeler.Options {
	var blocked float64
	if opts.BlockedProportion != nil {
		blocked = *opts.BlockedProportion
	}
	return labeler.Options{
		SampleSize:        opts.SampleSize,
		BlockedProportion: blocked,
		OriginalLength:    opts.OriginalLength,
		OriginalLeft:      opts.OriginalLeft,
		OriginalRight:     opts.OriginalRight,
		CommitteeSize:     opts.CommitteeSize,
		Seed:              opts.Seed,
	}
}

// UncertainPairs 返回下一对最值得标注的记录（委员会分歧最大）。
// 未调用 PrepareTraining 时返回 NotInitializedError。
func (t *trainer) UncertainPairs() ([]core.Example, error) {
	ex, err := t.learner.Pop()
	if err != nil {
		return nil, err
	}
	return []core.Example{ex}, nil
}

// MarkPairs 加入人工标注；有样本池时同时更新委员会。
func (t *trainer) MarkPairs(labeled core.TrainingPairs) error {
	if err := t.checkExamples(labeled); err != nil {
		return err
	}
	t.training.Merge(labeled)
	if t.learner == nil {
		return nil
	}
	examples, labels := labeled.Flatten()
	return t.learner.Mark(examples, labels)
}

// Train 用全部标注训练分类器，并学习覆盖 recall 比例匹配样本的分块规则。
func (t *trainer) Train(recall float64, indexPredicates bool) error {
	if t.training.Len() == 0 {
		return core.NewDomainError(core.ModuleMatcher, core.ErrorCodeEmptyTraining, "matcher: no labelled pairs to train on")
	}
	if t.learner == nil {
		return core.ErrNotInitialized
	}
	start := time.Now()
	examples, labels := t.training.Flatten()
	X, err := t.b.dm.Distances(examples)
	if err != nil {
		return err
	}
	clf := t.b.clf.Clone()
	if err := clf.Fit(X, labels); err != nil {
		return fmt.Errorf("matcher: fit classifier: %w", err)
	}
	rules, err := t.learner.LearnRules(t.training.Match, t.training.Distinct, recall, indexPredicates)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return core.NewDomainError(core.ModuleMatcher, core.ErrorCodeEmptyTraining,
			"matcher: no blocking rule covers the labelled matches")
	}
	t.b.clf = clf
	if err := t.b.setRules(context.Background(), rules); err != nil {
		return err
	}
	logger.Info("matcher trained", "kind", pipeline.KindTrain, "match", len(t.training.Match), "distinct", len(t.training.Distinct),
		"rules", len(rules), "took", time.Since(start))
	return nil
}

// WriteTraining 写出全部标注
func (t *trainer) WriteTraining(w io.Writer) error {
	return serializer.WriteTraining(w, t.training)
}

// ReadTraining 读入标注并加入（与 MarkPairs 相同）
func (t *trainer) ReadTraining(r io.Reader) error {
	pairs, err := serializer.ReadTraining(r)
	if err != nil {
		return err
	}
	logger.Debug("training read", "match", len(pairs.Match), "distinct", len(pairs.Distinct))
	return t.MarkPairs(pairs)
}

// Training 返回当前标注
func (t *trainer) Training() core.TrainingPairs { return t.training }

// CleanupTraining 释放样本池与标注
func (t *trainer) CleanupTraining() {
	t.learner = nil
	t.training = core.TrainingPairs{}
}
