package labeler

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rushteam/dedupekit/blocking"
	"github.com/rushteam/dedupekit/core"
)

// 单个分块枚举全部配对的上限，超过后改为块内随机抽取
const maxBlockEnumerate = 64

// blockedShare 返回样本中来自分块的数量，其余由随机配对补足
func blockedShare(size int, blockedProportion float64) int {
	blockedProportion = math.Max(0, math.Min(1, blockedProportion))
	return int(math.Round(float64(size) * blockedProportion))
}

type pairSet struct {
	seen  map[core.Pair]struct{}
	pairs []core.Pair
}

func newPairSet() *pairSet {
	return &pairSet{seen: make(map[core.Pair]struct{})}
}

func (s *pairSet) add(p core.Pair) bool {
	if _, ok := s.seen[p]; ok {
		return false
	}
	s.seen[p] = struct{}{}
	s.pairs = append(s.pairs, p)
	return true
}

func orderedPair(a, b core.RecordID) core.Pair {
	if b < a {
		a, b = b, a
	}
	return core.Pair{A: a, B: b}
}

// groupKeys 计算每个分块键对应的记录 ID，键按字典序返回
func groupKeys(blocker *blocking.Blocker, data core.RecordStore) (map[string][]core.RecordID, []string, error) {
	groups := make(map[string][]core.RecordID)
	for _, id := range data.IDs() {
		rec, _ := data.Get(id)
		keys, err := blocker.Keys(rec)
		if err != nil {
			return nil, nil, err
		}
		for _, k := range keys {
			groups[k] = append(groups[k], id)
		}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys, nil
}

// take 打乱候选后取前 n 个加入结果集
func take(rng *rand.Rand, out *pairSet, candidates []core.Pair, n int) {
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	for _, p := range candidates {
		if n <= 0 {
			return
		}
		if out.add(p) {
			n--
		}
	}
}

// sampleDedupe 从单个数据集抽取 size 个不重复的候选对（a < b）：
// 一部分来自宽松分块规则下的同块记录，其余为均匀随机配对。
func sampleDedupe(rng *rand.Rand, blocker *blocking.Blocker, data core.RecordStore, size int, blockedProportion float64) ([]core.Pair, error) {
	blockedN := blockedShare(size, blockedProportion)
	out := newPairSet()

	if blockedN > 0 {
		groups, keys, err := groupKeys(blocker, data)
		if err != nil {
			return nil, err
		}
		blocked := newPairSet()
		for _, k := range keys {
			ids := groups[k]
			m := len(ids)
			if m < 2 {
				continue
			}
			if m <= maxBlockEnumerate {
				for i := 0; i < m; i++ {
					for j := i + 1; j < m; j++ {
						blocked.add(orderedPair(ids[i], ids[j]))
					}
				}
				continue
			}
			for t := 0; t < 2*m; t++ {
				i, j := rng.Intn(m), rng.Intn(m)
				if i != j {
					blocked.add(orderedPair(ids[i], ids[j]))
				}
			}
		}
		take(rng, out, blocked.pairs, blockedN)
	}

	ids := data.IDs()
	if len(ids) >= 2 {
		want := size - len(out.pairs)
		for attempts := 0; want > 0 && attempts < 10*size+100; attempts++ {
			i, j := rng.Intn(len(ids)), rng.Intn(len(ids))
			if i == j {
				continue
			}
			if out.add(orderedPair(ids[i], ids[j])) {
				want--
			}
		}
	}
	return out.pairs, nil
}

// sampleLink 从左右数据集抽取 size 个不重复的 (左, 右) 候选对。
func sampleLink(rng *rand.Rand, blocker *blocking.Blocker, left, right core.RecordStore, size int, blockedProportion float64) ([]core.Pair, error) {
	blockedN := blockedShare(size, blockedProportion)
	out := newPairSet()

	if blockedN > 0 {
		lg, keys, err := groupKeys(blocker, left)
		if err != nil {
			return nil, err
		}
		rg, _, err := groupKeys(blocker, right)
		if err != nil {
			return nil, err
		}
		blocked := newPairSet()
		for _, k := range keys {
			ls, rs := lg[k], rg[k]
			if len(rs) == 0 {
				continue
			}
			if len(ls)*len(rs) <= maxBlockEnumerate*maxBlockEnumerate/2 {
				for _, a := range ls {
					for _, b := range rs {
						blocked.add(core.Pair{A: a, B: b})
					}
				}
				continue
			}
			for t := 0; t < 2*(len(ls)+len(rs)); t++ {
				blocked.add(core.Pair{A: ls[rng.Intn(len(ls))], B: rs[rng.Intn(len(rs))]})
			}
		}
		take(rng, out, blocked.pairs, blockedN)
	}

	lids, rids := left.IDs(), right.IDs()
	if len(lids) > 0 && len(rids) > 0 {
		want := size - len(out.pairs)
		for attempts := 0; want > 0 && attempts < 10*size+100; attempts++ {
			p := core.Pair{A: lids[rng.Intn(len(lids))], B: rids[rng.Intn(len(rids))]}
			if out.add(p) {
				want--
			}
		}
	}
	return out.pairs, nil
}
