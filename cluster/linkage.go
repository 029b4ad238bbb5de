package cluster

import (
	"math"
	"sort"
)

// edge 是分量内的一条边，a < b 为分量内下标
type edge struct {
	a, b  int
	score float64
}

// 合并距离的浮点容差（距离矩阵为 float32）
const linkageEpsilon = 1e-6

// condensed 是 n 个点的上三角距离矩阵
type condensed struct {
	n int
	d []float32
}

func newCondensed(n int, fill float32) *condensed {
	c := &condensed{n: n, d: make([]float32, n*(n-1)/2)}
	for i := range c.d {
		c.d[i] = fill
	}
	return c
}

func (c *condensed) idx(i, j int) int {
	if i > j {
		i, j = j, i
	}
	return c.n*i - i*(i+1)/2 + (j - i - 1)
}

func (c *condensed) get(i, j int) float32    { return c.d[c.idx(i, j)] }
func (c *condensed) set(i, j int, v float32) { c.d[c.idx(i, j)] = v }

// averageLinkage 对 n 个点做平均链接层次聚类（距离 = 1 - score，缺边距离为 1），
// 并在相似度 threshold 处切分，返回成员数 >= 2 的扁平簇（分量内下标，升序）。
//
// 使用最近邻链算法；平均链接满足可约性，切分结果等价于合并所有高度 <= 1 - threshold 的节点。
func averageLinkage(n int, edges []edge, threshold float64) [][]int {
	dist := newCondensed(n, 1)
	for _, e := range edges {
		d := float32(1 - e.score)
		if d < dist.get(e.a, e.b) {
			dist.set(e.a, e.b, d)
		}
	}

	cut := float32(1-threshold) + linkageEpsilon
	uf := newUnionFind(n)
	active := make([]bool, n)
	size := make([]int, n)
	for i := range active {
		active[i] = true
		size[i] = 1
	}
	remaining := n
	chain := make([]int, 0, n)

	for remaining > 1 {
		if len(chain) == 0 {
			for i := 0; i < n; i++ {
				if active[i] {
					chain = append(chain, i)
					break
				}
			}
		}
		a := chain[len(chain)-1]
		prev := -1
		best := float32(math.Inf(1))
		if len(chain) >= 2 {
			prev = chain[len(chain)-2]
			best = dist.get(a, prev)
		}
		b := prev
		for k := 0; k < n; k++ {
			if !active[k] || k == a {
				continue
			}
			if d := dist.get(a, k); d < best {
				best, b = d, k
			}
		}

		if b != prev {
			chain = append(chain, b)
			continue
		}

		chain = chain[:len(chain)-2]
		if best <= cut {
			uf.union(a, b)
		}
		sa, sb := float32(size[a]), float32(size[b])
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			dist.set(k, b, (sa*dist.get(k, a)+sb*dist.get(k, b))/(sa+sb))
		}
		size[b] += size[a]
		active[a] = false
		remaining--
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		r := uf.find(i)
		groups[r] = append(groups[r], i)
	}
	var out [][]int
	for _, members := range groups {
		if len(members) >= 2 {
			out = append(out, members)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// confidence 计算簇内每个成员的置信度：1 - sqrt(到其余成员距离平方的均值)。
func confidence(members []int, scores map[[2]int]float64) []float64 {
	out := make([]float64, len(members))
	if len(members) < 2 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, x := range members {
		var sum float64
		for j, y := range members {
			if i == j {
				continue
			}
			d := 1.0
			if s, ok := scores[edgeKey(x, y)]; ok {
				d = 1 - s
			}
			sum += d * d
		}
		out[i] = 1 - math.Sqrt(sum/float64(len(members)-1))
	}
	return out
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// splitBySize 按分数降序合并边，合并后超过 maxSize 的边被丢弃，
// 返回每个子分量的成员（分量内下标，升序）。
func splitBySize(n int, edges []edge, maxSize int) [][]int {
	sorted := make([]edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		if sorted[i].a != sorted[j].a {
			return sorted[i].a < sorted[j].a
		}
		return sorted[i].b < sorted[j].b
	})
	uf := newUnionFind(n)
	for _, e := range sorted {
		ra, rb := uf.find(e.a), uf.find(e.b)
		if ra == rb || uf.size[ra]+uf.size[rb] > maxSize {
			continue
		}
		uf.union(ra, rb)
	}
	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		r := uf.find(i)
		groups[r] = append(groups[r], i)
	}
	out := make([][]int, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
