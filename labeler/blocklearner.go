package labeler

import (
	"fmt"
	"math"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/pkg/textutil"
	"github.com/rushteam/dedupekit/predicate"
)

// DefaultMaxCoverShare 是候选规则允许产生的比较数占全部配对的最大比例
const DefaultMaxCoverShare = 0.1

// BlockLearner 从标注样本中学习分块规则：
// 在尽量少的比较数下覆盖 recall 比例的匹配样本。
type BlockLearner struct {
	// MaxCoverShare 为 0 时使用 DefaultMaxCoverShare
	MaxCoverShare float64

	fields   map[string]string
	left     []core.Record
	right    []core.Record // 去重模式为 nil
	leftLen  int
	rightLen int
	include  []core.Record
}

// NewDedupeBlockLearner 以去重样本估计比较数；originalLength 为完整数据集大小（0 表示样本即全量）。
func NewDedupeBlockLearner(fields map[string]string, data []core.Record, originalLength int) *BlockLearner {
	if originalLength <= 0 {
		originalLength = len(data)
	}
	return &BlockLearner{fields: fields, left: data, leftLen: originalLength}
}

// NewLinkBlockLearner 以左右样本估计比较数。
func NewLinkBlockLearner(fields map[string]string, left, right []core.Record, originalLeft, originalRight int) *BlockLearner {
	if originalLeft <= 0 {
		originalLeft = len(left)
	}
	if originalRight <= 0 {
		originalRight = len(right)
	}
	return &BlockLearner{fields: fields, left: left, right: right, leftLen: originalLeft, rightLen: originalRight}
}

// Include 把记录加入索引谓词的语料（通常是标注样本中的记录）
func (bl *BlockLearner) Include(records ...core.Record) {
	bl.include = append(bl.include, records...)
}

func (bl *BlockLearner) linking() bool { return bl.right != nil }

type ruleCandidate struct {
	rule        predicate.Rule
	name        string
	matches     *bitset.BitSet
	distincts   *bitset.BitSet
	share       float64
	comparisons float64
}

// recordKeys 是一个谓词在一组记录上的键
type recordKeys [][]string

func keysOf(p core.Predicate, records []core.Record) (recordKeys, error) {
	out := make(recordKeys, len(records))
	for i, rec := range records {
		keys, err := p.Keys(rec)
		if err != nil {
			return nil, err
		}
		out[i] = keys
	}
	return out, nil
}

func shareKey(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

func cover(keysA, keysB recordKeys) *bitset.BitSet {
	bs := bitset.New(uint(len(keysA)))
	for i := range keysA {
		if shareKey(keysA[i], keysB[i]) {
			bs.Set(uint(i))
		}
	}
	return bs
}

// single 保存一个候选谓词在样本与标注上的键
type single struct {
	pred                 core.Predicate
	field                string
	left, right          recordKeys
	matchA, matchB       recordKeys
	distinctA, distinctB recordKeys
}

func conjoin(a, b recordKeys) recordKeys {
	out := make(recordKeys, len(a))
	for i := range a {
		if len(a[i]) == 0 || len(b[i]) == 0 {
			continue
		}
		keys := make([]string, 0, len(a[i])*len(b[i]))
		for _, x := range a[i] {
			for _, y := range b[i] {
				keys = append(keys, x+":"+y)
			}
		}
		out[i] = keys
	}
	return out
}

// comparisons 返回样本上的配对数与按原始规模放大后的估计比较数
func (bl *BlockLearner) comparisons(left, right recordKeys) (sample, estimate float64) {
	if !bl.linking() {
		counts := make(map[string]int)
		for _, keys := range left {
			for _, k := range uniq(keys) {
				counts[k]++
			}
		}
		for _, m := range counts {
			sample += float64(m) * float64(m-1) / 2
		}
		scale := float64(bl.leftLen) / float64(max(len(bl.left), 1))
		return sample, sample * scale * scale
	}
	lc := make(map[string]int)
	for _, keys := range left {
		for _, k := range uniq(keys) {
			lc[k]++
		}
	}
	for _, keys := range right {
		for _, k := range uniq(keys) {
			sample += float64(lc[k])
		}
	}
	scale := float64(bl.leftLen) / float64(max(len(bl.left), 1)) *
		float64(bl.rightLen) / float64(max(len(bl.right), 1))
	return sample, sample * scale
}

func (bl *BlockLearner) samplePairs() float64 {
	if bl.linking() {
		return float64(len(bl.left)) * float64(len(bl.right))
	}
	n := float64(len(bl.left))
	return n * (n - 1) / 2
}

func uniq(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func pairSides(examples []core.Example) (a, b []core.Record) {
	a = make([]core.Record, len(examples))
	b = make([]core.Record, len(examples))
	for i, e := range examples {
		a[i], b[i] = e.A, e.B
	}
	return a, b
}

// indexCorpus 用样本、标注与 include 中的记录建索引
func (bl *BlockLearner) indexCorpus(preds []core.IndexPredicate, examples []core.Example) {
	var records []core.Record
	records = append(records, bl.left...)
	records = append(records, bl.right...)
	records = append(records, bl.include...)
	for _, e := range examples {
		records = append(records, e.A, e.B)
	}
	for _, p := range preds {
		values := make([]string, 0, len(records))
		for _, rec := range records {
			if s, ok := textutil.ToString(rec[p.Field()]); ok {
				values = append(values, s)
			}
		}
		p.Index(values)
	}
}

func sortedFields(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Learn 学习分块规则。index 为 false 时不考虑索引谓词。
// 没有匹配样本时返回 EmptyTrainingError。
//
// 返回的规则中的索引谓词处于未建索引状态，使用前需要重新 Index。
func (bl *BlockLearner) Learn(matches, distincts []core.Example, recall float64, index bool) ([]predicate.Rule, error) {
	if len(matches) == 0 {
		return nil, core.NewDomainError(core.ModuleLabeler, core.ErrorCodeEmptyTraining,
			"labeler: at least one labelled match is required to learn blocking rules")
	}
	if recall <= 0 || recall > 1 {
		return nil, core.NewDomainError(core.ModuleLabeler, core.ErrorCodeInvalidInput,
			fmt.Sprintf("labeler: recall must be in (0, 1], got %v", recall))
	}
	maxShare := bl.MaxCoverShare
	if maxShare <= 0 {
		maxShare = DefaultMaxCoverShare
	}

	var (
		preds   []core.Predicate
		fields  []string
		indexed []core.IndexPredicate
	)
	for _, field := range sortedFields(bl.fields) {
		for _, p := range predicate.Candidates(field, bl.fields[field], index) {
			preds = append(preds, p)
			fields = append(fields, field)
			if ip, ok := p.(core.IndexPredicate); ok {
				indexed = append(indexed, ip)
			}
		}
	}
	all := append(append([]core.Example{}, matches...), distincts...)
	if len(indexed) > 0 {
		bl.indexCorpus(indexed, all)
		defer func() {
			for _, ip := range indexed {
				ip.Reset()
			}
		}()
	}

	matchA, matchB := pairSides(matches)
	distinctA, distinctB := pairSides(distincts)
	singles := make([]*single, 0, len(preds))
	for i, p := range preds {
		s := &single{pred: p, field: fields[i]}
		var err error
		if s.left, err = keysOf(p, bl.left); err != nil {
			return nil, err
		}
		if s.right, err = keysOf(p, bl.right); err != nil {
			return nil, err
		}
		if s.matchA, err = keysOf(p, matchA); err != nil {
			return nil, err
		}
		if s.matchB, err = keysOf(p, matchB); err != nil {
			return nil, err
		}
		if s.distinctA, err = keysOf(p, distinctA); err != nil {
			return nil, err
		}
		if s.distinctB, err = keysOf(p, distinctB); err != nil {
			return nil, err
		}
		singles = append(singles, s)
	}

	total := bl.samplePairs()
	var candidates []*ruleCandidate
	consider := func(rule predicate.Rule, mc, dc *bitset.BitSet, left, right recordKeys) {
		if mc.None() {
			return
		}
		sample, estimate := bl.comparisons(left, right)
		share := 0.0
		if total > 0 {
			share = sample / total
		}
		if share > maxShare {
			return
		}
		candidates = append(candidates, &ruleCandidate{
			rule: rule, name: rule.Name(), matches: mc, distincts: dc,
			share: share, comparisons: estimate,
		})
	}

	covers := make([]*bitset.BitSet, len(singles))
	distinctCovers := make([]*bitset.BitSet, len(singles))
	for i, s := range singles {
		covers[i] = cover(s.matchA, s.matchB)
		distinctCovers[i] = cover(s.distinctA, s.distinctB)
		consider(predicate.Rule{s.pred}, covers[i], distinctCovers[i], s.left, s.right)
	}
	for i := range singles {
		for j := i + 1; j < len(singles); j++ {
			if singles[i].field == singles[j].field {
				continue
			}
			mc := covers[i].Intersection(covers[j])
			if mc.None() {
				continue
			}
			dc := distinctCovers[i].Intersection(distinctCovers[j])
			consider(predicate.Rule{singles[i].pred, singles[j].pred}, mc, dc,
				conjoin(singles[i].left, singles[j].left), conjoin(singles[i].right, singles[j].right))
		}
	}

	chosen := greedyCover(candidates, len(matches), recall)
	chosen = dropRedundant(chosen)

	rules := make([]predicate.Rule, len(chosen))
	covered := bitset.New(uint(len(matches)))
	for i, c := range chosen {
		rules[i] = c.rule
		covered.InPlaceUnion(c.matches)
	}
	logger.Info("learned blocking rules", "candidates", len(candidates), "rules", len(rules),
		"covered", covered.Count(), "matches", len(matches))
	for _, c := range chosen {
		logger.Debug("blocking rule", "rule", c.name, "share", c.share, "comparisons", c.comparisons)
	}
	return rules, nil
}

// greedyCover 反复选择新增覆盖最多的规则，直到覆盖 ceil(recall × n) 个匹配样本或无法再增加覆盖。
// 新增覆盖相同时依次比较：覆盖的非匹配样本更少、比较数更少、名称更小。
func greedyCover(candidates []*ruleCandidate, n int, recall float64) []*ruleCandidate {
	target := uint(math.Ceil(recall*float64(n) - 1e-9))
	covered := bitset.New(uint(n))
	used := make([]bool, len(candidates))
	var chosen []*ruleCandidate
	for covered.Count() < target {
		best := -1
		var bestGain uint
		for i, c := range candidates {
			if used[i] {
				continue
			}
			gain := c.matches.DifferenceCardinality(covered)
			if gain == 0 {
				continue
			}
			if best < 0 || gain > bestGain || (gain == bestGain && better(c, candidates[best])) {
				best, bestGain = i, gain
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		covered.InPlaceUnion(candidates[best].matches)
		chosen = append(chosen, candidates[best])
	}
	return chosen
}

func better(a, b *ruleCandidate) bool {
	da, db := a.distincts.Count(), b.distincts.Count()
	if da != db {
		return da < db
	}
	if a.comparisons != b.comparisons {
		return a.comparisons < b.comparisons
	}
	return a.name < b.name
}

// dropRedundant 去掉覆盖被其余已选规则并集包含的规则
func dropRedundant(chosen []*ruleCandidate) []*ruleCandidate {
	keep := make([]bool, len(chosen))
	for i := range keep {
		keep[i] = true
	}
	for i, c := range chosen {
		var others *bitset.BitSet
		for j, o := range chosen {
			if j == i || !keep[j] {
				continue
			}
			if others == nil {
				others = o.matches.Clone()
			} else {
				others.InPlaceUnion(o.matches)
			}
		}
		if others != nil && others.IsSuperSet(c.matches) {
			keep[i] = false
		}
	}
	var out []*ruleCandidate
	for i, c := range chosen {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}
