// Package labeler 实现主动学习：按委员会分歧挑选最值得人工标注的候选对，
// 并从标注样本中学习分块规则。
package labeler

import (
	"fmt"
	"math/rand"
	"reflect"
	"slices"
	"time"

	"github.com/rushteam/dedupekit/blocking"
	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/predicate"
)

// DataModel 是主动学习需要的数据模型能力（feature.DataModel 实现）。
type DataModel interface {
	core.DataModel
	// FieldKinds 返回字段名 -> 字段类型，用于生成宽松规则与候选谓词
	FieldKinds() map[string]string
}

// Options 控制训练样本的抽取。
type Options struct {
	SampleSize        int
	BlockedProportion float64
	// OriginalLength 是完整数据集的大小（去重），0 表示样本即全量
	OriginalLength int
	// OriginalLeft / OriginalRight 是链接模式下左右完整数据集的大小
	OriginalLeft  int
	OriginalRight int
	CommitteeSize int
	Seed          int64
}

// DisagreementLearner 维护候选样本池与分类器委员会。
//
// 初始化时用一个完全相同的记录对（匹配）和一个随机记录对（非匹配）训练委员会，
// 因此在没有任何人工标注时 Pop 也可用。
type DisagreementLearner struct {
	dm        DataModel
	committee *Committee
	rng       *rand.Rand
	blocks    *BlockLearner

	candidates []core.Example
	features   [][]float64

	seedX    [][]float64
	seedY    []int
	labeledX [][]float64
	labeledY []int
}

func records(data core.RecordStore) []core.Record {
	ids := data.IDs()
	out := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		rec, _ := data.Get(id)
		out = append(out, rec)
	}
	return out
}

func broadBlocker(dm DataModel) (*blocking.Blocker, error) {
	return blocking.NewBlocker(predicate.BroadRules(dm.FieldKinds()))
}

func emptyInput(msg string) error {
	return core.NewDomainError(core.ModuleLabeler, core.ErrorCodeEmptyInput, msg)
}

// NewDedupeLearner 从单个数据集抽样并初始化主动学习。
func NewDedupeLearner(dm DataModel, clf core.Classifier, data core.RecordStore, opts Options) (*DisagreementLearner, error) {
	if data.Len() < 2 {
		return nil, emptyInput("labeler: dedupe training needs at least two records")
	}
	start := time.Now()
	rng := rand.New(rand.NewSource(opts.Seed))
	blocker, err := broadBlocker(dm)
	if err != nil {
		return nil, err
	}
	pairs, err := sampleDedupe(rng, blocker, data, opts.SampleSize, opts.BlockedProportion)
	if err != nil {
		return nil, fmt.Errorf("labeler: sample pairs: %w", err)
	}
	ids := data.IDs()
	examples := make([]core.Example, len(pairs))
	for i, p := range pairs {
		a, _ := data.Get(p.A)
		b, _ := data.Get(p.B)
		examples[i] = core.Example{A: a, B: b}
	}

	exact, _ := data.Get(ids[rng.Intn(len(ids))])
	i := rng.Intn(len(ids))
	j := (i + 1 + rng.Intn(len(ids)-1)) % len(ids)
	a, _ := data.Get(ids[i])
	b, _ := data.Get(ids[j])
	seeds := []core.Example{{A: exact, B: exact}, {A: a, B: b}}

	all := records(data)
	l := &DisagreementLearner{
		dm:     dm,
		rng:    rng,
		blocks: NewDedupeBlockLearner(dm.FieldKinds(), all, opts.OriginalLength),
	}
	if err := l.init(clf, opts.CommitteeSize, examples, seeds); err != nil {
		return nil, err
	}
	logger.Info("dedupe training sample prepared", "records", data.Len(), "candidates", len(examples),
		"took", time.Since(start))
	return l, nil
}

// NewLinkLearner 从左右数据集抽样并初始化主动学习。
func NewLinkLearner(dm DataModel, clf core.Classifier, left, right core.RecordStore, opts Options) (*DisagreementLearner, error) {
	if left.Len() == 0 || right.Len() == 0 {
		return nil, emptyInput("labeler: link training needs records on both sides")
	}
	start := time.Now()
	rng := rand.New(rand.NewSource(opts.Seed))
	blocker, err := broadBlocker(dm)
	if err != nil {
		return nil, err
	}
	pairs, err := sampleLink(rng, blocker, left, right, opts.SampleSize, opts.BlockedProportion)
	if err != nil {
		return nil, fmt.Errorf("labeler: sample pairs: %w", err)
	}
	examples := make([]core.Example, len(pairs))
	for i, p := range pairs {
		a, _ := left.Get(p.A)
		b, _ := right.Get(p.B)
		examples[i] = core.Example{A: a, B: b}
	}

	lids, rids := left.IDs(), right.IDs()
	exact, _ := left.Get(lids[rng.Intn(len(lids))])
	a, _ := left.Get(lids[rng.Intn(len(lids))])
	b, _ := right.Get(rids[rng.Intn(len(rids))])
	seeds := []core.Example{{A: exact, B: exact}, {A: a, B: b}}

	l := &DisagreementLearner{
		dm:  dm,
		rng: rng,
		blocks: NewLinkBlockLearner(dm.FieldKinds(), records(left), records(right),
			opts.OriginalLeft, opts.OriginalRight),
	}
	if err := l.init(clf, opts.CommitteeSize, examples, seeds); err != nil {
		return nil, err
	}
	logger.Info("link training sample prepared", "left", left.Len(), "right", right.Len(),
		"candidates", len(examples), "took", time.Since(start))
	return l, nil
}

func (l *DisagreementLearner) init(clf core.Classifier, committeeSize int, candidates, seeds []core.Example) error {
	features, err := l.dm.Distances(candidates)
	if err != nil {
		return err
	}
	seedX, err := l.dm.Distances(seeds)
	if err != nil {
		return err
	}
	l.candidates = candidates
	l.features = features
	l.seedX = seedX
	l.seedY = []int{core.LabelMatch, core.LabelDistinct}
	l.committee = NewCommittee(clf, committeeSize, l.rng)
	return l.fit()
}

func (l *DisagreementLearner) fit() error {
	X := append(append([][]float64{}, l.seedX...), l.labeledX...)
	y := append(append([]int{}, l.seedY...), l.labeledY...)
	return l.committee.Fit(X, y)
}

// Len 返回尚未标注的候选数
func (l *DisagreementLearner) Len() int { return len(l.candidates) }

// Pop 返回并移除委员会分歧最大的候选（方差相同时取下标最小者）。
func (l *DisagreementLearner) Pop() (core.Example, error) {
	if l == nil || l.committee == nil {
		return core.Example{}, core.ErrNotInitialized
	}
	if len(l.candidates) == 0 {
		return core.Example{}, emptyInput("labeler: no unlabelled candidates left")
	}
	variances, err := l.committee.Variance(l.features)
	if err != nil {
		return core.Example{}, err
	}
	best := 0
	for i, v := range variances {
		if v > variances[best] {
			best = i
		}
	}
	ex := l.candidates[best]
	l.candidates = slices.Delete(l.candidates, best, best+1)
	l.features = slices.Delete(l.features, best, best+1)
	return ex, nil
}

func sameExample(a, b core.Example) bool {
	return (reflect.DeepEqual(a.A, b.A) && reflect.DeepEqual(a.B, b.B)) ||
		(reflect.DeepEqual(a.A, b.B) && reflect.DeepEqual(a.B, b.A))
}

// Mark 加入标注样本：从候选池移除相同的记录对，加入索引语料，重新训练委员会。
func (l *DisagreementLearner) Mark(examples []core.Example, labels []int) error {
	if len(examples) != len(labels) {
		return fmt.Errorf("labeler: %d examples but %d labels", len(examples), len(labels))
	}
	if len(examples) == 0 {
		return nil
	}
	X, err := l.dm.Distances(examples)
	if err != nil {
		return err
	}
	l.labeledX = append(l.labeledX, X...)
	l.labeledY = append(l.labeledY, labels...)
	for _, e := range examples {
		l.blocks.Include(e.A, e.B)
	}

	keep := 0
	for i, c := range l.candidates {
		if slices.ContainsFunc(examples, func(e core.Example) bool { return sameExample(c, e) }) {
			continue
		}
		l.candidates[keep] = c
		l.features[keep] = l.features[i]
		keep++
	}
	l.candidates = l.candidates[:keep]
	l.features = l.features[:keep]
	return l.fit()
}

// LearnRules 用标注样本学习分块规则，见 BlockLearner.Learn。
func (l *DisagreementLearner) LearnRules(matches, distincts []core.Example, recall float64, index bool) ([]predicate.Rule, error) {
	return l.blocks.Learn(matches, distincts, recall, index)
}

// BlockLearner 返回规则学习器，可调整 MaxCoverShare
func (l *DisagreementLearner) BlockLearner() *BlockLearner { return l.blocks }
