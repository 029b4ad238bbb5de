package cluster

// unionFind 是带路径压缩与按大小合并的并查集，元素为 0..n-1。
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

// grow 扩容到 n 个元素，新元素各自成集合
func (uf *unionFind) grow(n int) {
	for i := len(uf.parent); i < n; i++ {
		uf.parent = append(uf.parent, i)
		uf.size = append(uf.size, 1)
	}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union 合并 x、y 所在集合，返回新的根
func (uf *unionFind) union(x, y int) int {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return rx
	}
	if uf.size[rx] < uf.size[ry] || (uf.size[rx] == uf.size[ry] && ry < rx) {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	return rx
}

// idSet 把记录 ID 映射为稠密下标
type idSet struct {
	index map[string]int
	ids   []string
}

func newIDSet() *idSet {
	return &idSet{index: make(map[string]int)}
}

func (s *idSet) add(id string) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	i := len(s.ids)
	s.index[id] = i
	s.ids = append(s.ids, id)
	return i
}
