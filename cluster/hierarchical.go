// Package cluster 把打分后的候选对归并为最终结果：
// 去重的层次聚类划分、链接的贪心一对一/多对一匹配、gazetteer 的 top-N 匹配。
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

// DefaultMaxComponentSize 是单个连通分量参与层次聚类的最大记录数
const DefaultMaxComponentSize = 30_000

// Hierarchical 是去重的划分聚类。
//
// 第一遍用并查集求连通分量；第二遍把边按分量写入临时 Badger 存储，
// 再逐个分量做平均链接聚类，在相似度 Threshold 处切分。
// 只返回成员数 >= 2 的簇，单例由调用方（matcher.Partition）补齐。
type Hierarchical struct {
	Threshold float64
	// MaxComponentSize 为 0 时使用 DefaultMaxComponentSize
	MaxComponentSize int
	TempDir          string
}

var _ pipeline.Clusterer[core.Cluster] = (*Hierarchical)(nil)

func (h *Hierarchical) Name() string        { return "cluster.hierarchical" }
func (h *Hierarchical) Kind() pipeline.Kind { return pipeline.KindCluster }

func (h *Hierarchical) maxSize() int {
	if h.MaxComponentSize > 0 {
		return h.MaxComponentSize
	}
	return DefaultMaxComponentSize
}

func encodeScore(s float64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(s))
	return b[:]
}

func decodeScore(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("cluster: corrupt score value of %d bytes", len(b))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// Cluster 返回按首个成员 ID 升序排列的簇，簇内成员 ID 升序。
func (h *Hierarchical) Cluster(ctx context.Context, scores core.ScoredPairs) ([]core.Cluster, error) {
	start := time.Now()
	ids := newIDSet()
	uf := &unionFind{}
	err := scores.Iterate(func(sp core.ScoredPair) error {
		if sp.Score <= 0 || sp.A == sp.B {
			return nil
		}
		a, b := ids.add(sp.A), ids.add(sp.B)
		uf.grow(len(ids.ids))
		uf.union(a, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids.ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store, err := spill.OpenTemp(h.TempDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	w := store.NewWriter()
	err = scores.Iterate(func(sp core.ScoredPair) error {
		if sp.Score <= 0 || sp.A == sp.B {
			return nil
		}
		root := ids.ids[uf.find(ids.index[sp.A])]
		key := spill.AppendString(nil, root)
		key = spill.AppendString(key, sp.A)
		key = append(key, sp.B...)
		return w.Set(key, encodeScore(sp.Score))
	})
	if err == nil {
		err = w.Flush()
	} else {
		w.Cancel()
	}
	if err != nil {
		return nil, fmt.Errorf("cluster: write component edges: %w", err)
	}

	var (
		out        []core.Cluster
		curRoot    string
		pending    []rawEdge
		components int
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		components++
		out = append(out, h.clusterComponent(curRoot, pending)...)
		pending = pending[:0]
	}
	err = store.Scan(nil, true, func(key, val []byte) error {
		root, rest, err := spill.ReadString(key)
		if err != nil {
			return err
		}
		a, b, err := spill.ReadString(rest)
		if err != nil {
			return err
		}
		score, err := decodeScore(val)
		if err != nil {
			return err
		}
		if root != curRoot {
			if err := ctx.Err(); err != nil {
				return err
			}
			flush()
			curRoot = root
		}
		pending = append(pending, rawEdge{a: a, b: string(b), score: score})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cluster: scan component edges: %w", err)
	}
	flush()

	sort.Slice(out, func(i, j int) bool { return out[i].IDs[0] < out[j].IDs[0] })
	logger.Debug("hierarchical clustering done", "records", len(ids.ids), "components", components,
		"clusters", len(out), "took", time.Since(start))
	return out, nil
}

type rawEdge struct {
	a, b  string
	score float64
}

// clusterComponent 聚类一个连通分量，超大分量先按分数切分。
func (h *Hierarchical) clusterComponent(root string, raw []rawEdge) []core.Cluster {
	members := make([]string, 0, len(raw)+1)
	seen := make(map[string]struct{})
	for _, e := range raw {
		for _, id := range [2]string{e.a, e.b} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				members = append(members, id)
			}
		}
	}
	sort.Strings(members)
	index := make(map[string]int, len(members))
	for i, id := range members {
		index[id] = i
	}
	edges := make([]edge, len(raw))
	for i, e := range raw {
		a, b := index[e.a], index[e.b]
		if a > b {
			a, b = b, a
		}
		edges[i] = edge{a: a, b: b, score: e.score}
	}

	if len(members) <= h.maxSize() {
		return h.clusterGroup(members, edges)
	}

	logger.Warn("component too large for hierarchical clustering, dropping weakest edges",
		"component", root, "records", len(members), "max", h.maxSize())
	var out []core.Cluster
	for _, group := range splitBySize(len(members), edges, h.maxSize()) {
		if len(group) < 2 {
			continue
		}
		local := make(map[int]int, len(group))
		subIDs := make([]string, len(group))
		for i, g := range group {
			local[g] = i
			subIDs[i] = members[g]
		}
		var sub []edge
		for _, e := range edges {
			la, okA := local[e.a]
			lb, okB := local[e.b]
			if okA && okB {
				sub = append(sub, edge{a: la, b: lb, score: e.score})
			}
		}
		out = append(out, h.clusterGroup(subIDs, sub)...)
	}
	return out
}

func (h *Hierarchical) clusterGroup(members []string, edges []edge) []core.Cluster {
	if len(members) == 2 {
		best := edges[0].score
		for _, e := range edges[1:] {
			best = max(best, e.score)
		}
		if best < h.Threshold {
			return nil
		}
		return []core.Cluster{{IDs: []string{members[0], members[1]}, Scores: []float64{best, best}}}
	}

	scores := make(map[[2]int]float64, len(edges))
	for _, e := range edges {
		k := edgeKey(e.a, e.b)
		if s, ok := scores[k]; !ok || e.score > s {
			scores[k] = e.score
		}
	}
	var out []core.Cluster
	for _, group := range averageLinkage(len(members), edges, h.Threshold) {
		c := core.Cluster{IDs: make([]string, len(group)), Scores: confidence(group, scores)}
		for i, g := range group {
			c.IDs[i] = members[g]
		}
		out = append(out, c)
	}
	return out
}
