package matcher

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/rushteam/dedupekit/blocking"
	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/model"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/predicate"
	"github.com/rushteam/dedupekit/score"
	"github.com/rushteam/dedupekit/serializer"
)

// base 是所有 matcher 共享的状态：数据模型、分类器、分块规则。
type base struct {
	dm      *feature.DataModel
	clf     core.Classifier
	rules   []predicate.Rule
	blocker *blocking.Blocker
	opts    Options
	// onRules 在规则替换后调用（gazetteer 用来重建索引）
	onRules func(ctx context.Context) error
}

func newBase(vars []feature.Variable, opts []Option) (*base, error) {
	dm, err := feature.NewDataModel(vars)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	var clf core.Classifier
	if o.Classifier != nil {
		clf = o.Classifier.Clone()
	} else if clf, err = model.New("lr", nil); err != nil {
		return nil, err
	}
	b := &base{dm: dm, clf: clf, opts: o}
	if len(o.Rules) > 0 {
		if err := b.setRules(context.Background(), o.Rules); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newStaticBase(r io.Reader, opts []Option) (*base, error) {
	s, err := serializer.ReadSettings(r)
	if err != nil {
		return nil, err
	}
	b := &base{dm: s.DataModel, clf: s.Classifier, opts: newOptions(opts)}
	if err := b.setRules(context.Background(), s.Rules); err != nil {
		return nil, core.NewIncompatibleSettingsError(err, "settings: invalid blocking rules")
	}
	return b, nil
}

func (b *base) setRules(ctx context.Context, rules []predicate.Rule) error {
	blocker, err := blocking.NewBlocker(rules)
	if err != nil {
		return err
	}
	b.rules = rules
	b.blocker = blocker
	if b.onRules != nil {
		return b.onRules(ctx)
	}
	return nil
}

func (b *base) requireBlocker() error {
	if b.blocker == nil {
		return core.NewDomainError(core.ModuleMatcher, core.ErrorCodeNotInitialized,
			"matcher: no blocking rules, call Train or load settings first")
	}
	return nil
}

// Rules 返回当前分块规则
func (b *base) Rules() []predicate.Rule { return b.rules }

// DataModel 返回数据模型
func (b *base) DataModel() *feature.DataModel { return b.dm }

// WriteSettings 写出数据模型、分类器与分块规则
func (b *base) WriteSettings(w io.Writer) error {
	return serializer.WriteSettings(w, serializer.Settings{
		DataModel:  b.dm,
		Classifier: b.clf,
		Rules:      b.rules,
	})
}

func (b *base) pairScorer(left, right core.RecordStore, threshold float64) *score.PairScorer {
	return &score.PairScorer{
		DataModel:  b.dm,
		Classifier: b.clf,
		Left:       left,
		Right:      right,
		Threshold:  threshold,
		Workers:    b.opts.NumCores,
		SpillAt:    b.opts.SpillAt,
		TempDir:    b.opts.TempDir,
	}
}

// score 为候选对打分并关闭游标
func (b *base) score(ctx context.Context, left, right core.RecordStore, pairs core.PairIterator, threshold float64) (*score.Buffer, error) {
	start := time.Now()
	buf, err := b.pairScorer(left, right, threshold).ScoreToBuffer(ctx, pairs)
	closeErr := pairs.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		_ = buf.Close()
		return nil, closeErr
	}
	logger.Debug("pairs scored", "scored", buf.Len(), "took", time.Since(start))
	return buf, nil
}

func newRunID() string { return uuid.NewString() }
