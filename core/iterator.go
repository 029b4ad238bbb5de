package core

// PairIterator 是候选对的流式游标（与 sql.Rows 相同的用法）。
//
//	it, err := src.Pairs(ctx)
//	defer it.Close()
//	for it.Next() {
//	    p := it.Pair()
//	}
//	if err := it.Err(); err != nil { ... }
//
// Close 会释放游标背后的临时存储，必须调用。
type PairIterator interface {
	Next() bool
	Pair() Pair
	Err() error
	Close() error
}

// BlockIterator 是 gazetteer 分块结果的流式游标，按查询记录 ID 升序产出。
type BlockIterator interface {
	Next() bool
	Block() Block
	Err() error
	Close() error
}

// SlicePairs 把内存中的 Pair 切片包装为 PairIterator。
func SlicePairs(pairs []Pair) PairIterator {
	return &slicePairs{pairs: pairs, pos: -1}
}

type slicePairs struct {
	pairs []Pair
	pos   int
}

func (s *slicePairs) Next() bool {
	if s.pos+1 >= len(s.pairs) {
		s.pos = len(s.pairs)
		return false
	}
	s.pos++
	return true
}

func (s *slicePairs) Pair() Pair   { return s.pairs[s.pos] }
func (s *slicePairs) Err() error   { return nil }
func (s *slicePairs) Close() error { return nil }

// SliceBlocks 把内存中的 Block 切片包装为 BlockIterator。
func SliceBlocks(blocks []Block) BlockIterator {
	return &sliceBlocks{blocks: blocks, pos: -1}
}

type sliceBlocks struct {
	blocks []Block
	pos    int
}

func (s *sliceBlocks) Next() bool {
	if s.pos+1 >= len(s.blocks) {
		s.pos = len(s.blocks)
		return false
	}
	s.pos++
	return true
}

func (s *sliceBlocks) Block() Block { return s.blocks[s.pos] }
func (s *sliceBlocks) Err() error   { return nil }
func (s *sliceBlocks) Close() error { return nil }

// ScoredPairs 是打分结果集合，可能由磁盘支撑。
// 调用方消费完后必须 Close 释放背后的临时文件。
type ScoredPairs interface {
	Len() int
	// Iterate 按写入顺序回放全部条目，可多次调用
	Iterate(fn func(ScoredPair) error) error
	Close() error
}
