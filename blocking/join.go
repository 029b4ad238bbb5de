package blocking

import (
	"context"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pipeline"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/pkg/spill"
)

const (
	sideLeft  byte = 'a'
	sideRight byte = 'b'

	// ctx 检查间隔（记录数）
	checkEvery = 1024

	// DefaultFalsePositiveRate 是链接连接中右侧键 Bloom 过滤器的误判率
	DefaultFalsePositiveRate = 0.01
)

func postingKey(block string, side byte, id core.RecordID) []byte {
	k := spill.AppendString(make([]byte, 0, len(block)+len(id)+4), block)
	if side != 0 {
		k = append(k, side)
	}
	return append(k, id...)
}

func pairKey(a, b core.RecordID) []byte {
	k := spill.AppendString(make([]byte, 0, len(a)+len(b)+2), a)
	return append(k, b...)
}

func decodePairKey(k []byte) (core.Pair, error) {
	a, rest, err := spill.ReadString(k)
	if err != nil {
		return core.Pair{}, err
	}
	return core.Pair{A: a, B: string(rest)}, nil
}

// DedupeSource 是去重模式的分块阶段：自连接后产出 a < b 的去重候选对。
//
// 规则中含索引谓词时，先用 Data 建索引，完成后清空。
type DedupeSource struct {
	Blocker *Blocker
	Data    core.RecordStore
	TempDir string
}

var _ pipeline.PairSource = (*DedupeSource)(nil)

func (s *DedupeSource) Name() string        { return "block.dedupe" }
func (s *DedupeSource) Kind() pipeline.Kind { return pipeline.KindBlock }

func (s *DedupeSource) Pairs(ctx context.Context) (core.PairIterator, error) {
	start := time.Now()
	if s.Blocker.HasIndexPredicates() {
		s.Blocker.IndexAll(s.Data)
		defer s.Blocker.ResetIndices()
	}

	postings, err := spill.OpenTemp(s.TempDir)
	if err != nil {
		return nil, err
	}
	defer postings.Close()

	w := postings.NewWriter()
	for i, id := range s.Data.IDs() {
		if i%checkEvery == 0 && ctx.Err() != nil {
			w.Cancel()
			return nil, ctx.Err()
		}
		rec, _ := s.Data.Get(id)
		keys, err := s.Blocker.Keys(rec)
		if err != nil {
			w.Cancel()
			return nil, err
		}
		for _, k := range keys {
			if err := w.Set(postingKey(k, 0, id), nil); err != nil {
				w.Cancel()
				return nil, err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("blocking: write postings: %w", err)
	}

	out, err := spill.OpenTemp(s.TempDir)
	if err != nil {
		return nil, err
	}
	pw := out.NewWriter()
	emit := func(ids []core.RecordID) error {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if err := pw.Set(pairKey(ids[i], ids[j]), nil); err != nil {
					return err
				}
			}
		}
		return nil
	}
	err = groupPostings(ctx, postings, func(_ string, ids []core.RecordID) error {
		return emit(ids)
	})
	if err == nil {
		err = pw.Flush()
	} else {
		pw.Cancel()
	}
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("blocking: join postings: %w", err)
	}
	logger.Debug("dedupe blocking done", "records", s.Data.Len(), "candidate_writes", pw.Count(), "took", time.Since(start))
	return newPairIterator(out), nil
}

// groupPostings 按分块键顺序扫描 posting，对每个分块回调一次（ID 升序，含 side 前缀时按 side 分组在前）。
func groupPostings(ctx context.Context, postings *spill.Store, fn func(block string, ids []string) error) error {
	var (
		cur   string
		ids   []string
		first = true
		n     int
	)
	err := postings.Scan(nil, false, func(key, _ []byte) error {
		n++
		if n%checkEvery == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		block, rest, err := spill.ReadString(key)
		if err != nil {
			return err
		}
		if first || block != cur {
			if !first {
				if err := fn(cur, ids); err != nil {
					return err
				}
			}
			first = false
			cur = block
			ids = ids[:0]
		}
		ids = append(ids, string(rest))
		return nil
	})
	if err != nil {
		return err
	}
	if !first {
		return fn(cur, ids)
	}
	return nil
}

// LinkSource 是链接模式的分块阶段：产出去重的 (左, 右) 候选对。
//
// 右侧先写入 posting 并登记到 Bloom 过滤器，左侧的键若不可能出现在右侧则不写入。
// 规则中含索引谓词时，用 Right 建索引。
type LinkSource struct {
	Blocker *Blocker
	Left    core.RecordStore
	Right   core.RecordStore
	TempDir string
	// FalsePositiveRate 为 0 时使用 DefaultFalsePositiveRate
	FalsePositiveRate float64
}

var _ pipeline.PairSource = (*LinkSource)(nil)

func (s *LinkSource) Name() string        { return "block.link" }
func (s *LinkSource) Kind() pipeline.Kind { return pipeline.KindBlock }

func (s *LinkSource) Pairs(ctx context.Context) (core.PairIterator, error) {
	start := time.Now()
	if s.Blocker.HasIndexPredicates() {
		s.Blocker.IndexAll(s.Right)
		defer s.Blocker.ResetIndices()
	}

	fp := s.FalsePositiveRate
	if fp <= 0 {
		fp = DefaultFalsePositiveRate
	}
	capacity := uint(s.Right.Len()*max(len(s.Blocker.Rules()), 1)*2) + 1024
	filter := bloom.NewWithEstimates(capacity, fp)

	postings, err := spill.OpenTemp(s.TempDir)
	if err != nil {
		return nil, err
	}
	defer postings.Close()

	w := postings.NewWriter()
	write := func(data core.RecordStore, side byte) (skipped int, err error) {
		for i, id := range data.IDs() {
			if i%checkEvery == 0 && ctx.Err() != nil {
				return skipped, ctx.Err()
			}
			rec, _ := data.Get(id)
			keys, err := s.Blocker.Keys(rec)
			if err != nil {
				return skipped, err
			}
			for _, k := range keys {
				if side == sideRight {
					filter.AddString(k)
				} else if !filter.TestString(k) {
					skipped++
					continue
				}
				if err := w.Set(postingKey(k, side, id), nil); err != nil {
					return skipped, err
				}
			}
		}
		return skipped, nil
	}
	if _, err := write(s.Right, sideRight); err != nil {
		w.Cancel()
		return nil, err
	}
	skipped, err := write(s.Left, sideLeft)
	if err != nil {
		w.Cancel()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("blocking: write postings: %w", err)
	}

	out, err := spill.OpenTemp(s.TempDir)
	if err != nil {
		return nil, err
	}
	pw := out.NewWriter()
	err = groupPostings(ctx, postings, func(_ string, ids []string) error {
		var left, right []core.RecordID
		for _, tagged := range ids {
			if tagged == "" {
				continue
			}
			if tagged[0] == sideLeft {
				left = append(left, tagged[1:])
			} else {
				right = append(right, tagged[1:])
			}
		}
		for _, a := range left {
			for _, b := range right {
				if err := pw.Set(pairKey(a, b), nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		err = pw.Flush()
	} else {
		pw.Cancel()
	}
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("blocking: join postings: %w", err)
	}
	logger.Debug("link blocking done", "left", s.Left.Len(), "right", s.Right.Len(),
		"bloom_skipped", skipped, "candidate_writes", pw.Count(), "took", time.Since(start))
	return newPairIterator(out), nil
}

// pairIterator 扫描去重后的候选对存储，Close 时删除存储。
type pairIterator struct {
	store  *spill.Store
	cursor *spill.Cursor
	cur    core.Pair
	err    error
}

func newPairIterator(store *spill.Store) *pairIterator {
	return &pairIterator{store: store, cursor: store.NewCursor(nil, false)}
}

func (it *pairIterator) Next() bool {
	if it.err != nil || it.cursor == nil {
		return false
	}
	if !it.cursor.Next() {
		it.err = it.cursor.Err()
		return false
	}
	it.cur, it.err = decodePairKey(it.cursor.Key())
	return it.err == nil
}

func (it *pairIterator) Pair() core.Pair { return it.cur }
func (it *pairIterator) Err() error      { return it.err }

func (it *pairIterator) Close() error {
	if it.cursor == nil {
		return nil
	}
	_ = it.cursor.Close()
	it.cursor = nil
	return it.store.Close()
}
