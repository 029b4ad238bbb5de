package cluster

import (
	"sort"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/score"
)

// ManyToN 是 gazetteer 的 top-N 匹配：每个查询分块内按分数降序（稳定排序，保留候选原有次序），
// 保留 >= threshold 的候选并截断到 n 条。n <= 0 表示不截断。
//
// 每个输入分块恰好产出一条结果，没有候选的分块结果为空。
func ManyToN(blocks []score.Block, threshold float64, n int) []core.SearchResult {
	out := make([]core.SearchResult, 0, len(blocks))
	for _, blk := range blocks {
		pairs := make([]core.ScoredPair, 0, len(blk.Pairs))
		for _, sp := range blk.Pairs {
			if sp.Score >= threshold {
				pairs = append(pairs, sp)
			}
		}
		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Score > pairs[j].Score })
		if n > 0 && len(pairs) > n {
			pairs = pairs[:n]
		}
		matches := make([]core.Match, len(pairs))
		for i, sp := range pairs {
			matches[i] = core.Match{ID: sp.B, Score: sp.Score}
		}
		out = append(out, core.SearchResult{QueryID: blk.QueryID, Matches: matches})
	}
	return out
}
