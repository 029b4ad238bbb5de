package blocking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/pkg/spill"
)

const (
	prefixPosting byte = 'p'
	prefixReverse byte = 'r'

	// DefaultIndexCapacity 是 gazetteer Bloom 过滤器的初始容量估计
	DefaultIndexCapacity = 1_000_000
)

// Index 是 gazetteer 的持久化分块索引：规范数据集的分块键存放在 Badger 中，
// 查询时为每条待匹配记录找出共享分块键的规范记录。
//
// 存储布局：
//   - p | key | id：posting，按分块键前缀扫描得到候选
//   - r | id | key：反向条目，重新索引或移除记录时用来删除旧 posting
//
// Bloom 过滤器只增不减，移除的键仍可能通过过滤，只会多一次前缀扫描。
type Index struct {
	blocker *Blocker
	store   *spill.Store
	filter  *bloom.BloomFilter

	mu      sync.RWMutex
	records core.Dataset
}

// NewIndex 在 tempDir 下创建索引存储，Close 时删除。
func NewIndex(blocker *Blocker, tempDir string) (*Index, error) {
	store, err := spill.OpenTemp(tempDir)
	if err != nil {
		return nil, err
	}
	return &Index{
		blocker: blocker,
		store:   store,
		filter:  bloom.NewWithEstimates(DefaultIndexCapacity, DefaultFalsePositiveRate),
		records: make(core.Dataset),
	}, nil
}

func indexPostingKey(key string, id core.RecordID) []byte {
	k := spill.AppendString([]byte{prefixPosting}, key)
	return append(k, id...)
}

func indexReverseKey(id core.RecordID, key string) []byte {
	k := spill.AppendString([]byte{prefixReverse}, id)
	return append(k, key...)
}

// Len 返回已索引的规范记录数
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

var _ core.RecordStore = (*Index)(nil)

// Get 读取已索引的规范记录
func (ix *Index) Get(id core.RecordID) (core.Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.records[id]
	return rec, ok
}

// IDs 返回升序排列的已索引 ID
func (ix *Index) IDs() []core.RecordID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.records.IDs()
}

// Records 返回已索引规范记录的快照（重建索引时使用）
func (ix *Index) Records() core.Dataset {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(core.Dataset, len(ix.records))
	for id, rec := range ix.records {
		out[id] = rec
	}
	return out
}

// removeLocked 删除 id 的全部 posting 与反向条目，调用方持有写锁
func (ix *Index) removeLocked(w *spill.Writer, id core.RecordID) error {
	prefix := spill.AppendString([]byte{prefixReverse}, id)
	return ix.store.Scan(prefix, false, func(key, _ []byte) error {
		blockKey := string(key[len(prefix):])
		if err := w.Delete(indexPostingKey(blockKey, id)); err != nil {
			return err
		}
		return w.Delete(key)
	})
}

// Index 把规范记录加入索引；已存在的 ID 会先删除旧的 posting 再写入新的。
func (ix *Index) Index(ctx context.Context, data core.RecordStore) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids := data.IDs()
	var previous, incoming []core.Record
	for _, id := range ids {
		if old, ok := ix.records[id]; ok {
			previous = append(previous, old)
		}
		rec, _ := data.Get(id)
		incoming = append(incoming, rec)
	}
	if ix.blocker.HasIndexPredicates() {
		ix.blocker.UnindexRecords(previous)
		ix.blocker.IndexRecords(incoming)
	}

	if len(previous) > 0 {
		rw := ix.store.NewWriter()
		for _, id := range ids {
			if _, ok := ix.records[id]; !ok {
				continue
			}
			if err := ix.removeLocked(rw, id); err != nil {
				rw.Cancel()
				return fmt.Errorf("blocking: remove postings of %q: %w", id, err)
			}
		}
		if err := rw.Flush(); err != nil {
			return fmt.Errorf("blocking: remove postings: %w", err)
		}
	}

	w := ix.store.NewWriter()
	for i, id := range ids {
		if i%checkEvery == 0 && ctx.Err() != nil {
			w.Cancel()
			return ctx.Err()
		}
		keys, err := ix.blocker.Keys(incoming[i])
		if err != nil {
			w.Cancel()
			return err
		}
		for _, k := range keys {
			ix.filter.AddString(k)
			if err := w.Set(indexPostingKey(k, id), nil); err != nil {
				w.Cancel()
				return err
			}
			if err := w.Set(indexReverseKey(id, k), nil); err != nil {
				w.Cancel()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("blocking: write index: %w", err)
	}
	for i, id := range ids {
		ix.records[id] = incoming[i]
	}
	logger.Debug("gazetteer index updated", "records", len(ids), "indexed", len(ix.records), "writes", w.Count())
	return nil
}

// Unindex 从索引中移除记录，不存在的 ID 被忽略。
func (ix *Index) Unindex(ctx context.Context, data core.RecordStore) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var removed []core.Record
	w := ix.store.NewWriter()
	for i, id := range data.IDs() {
		if i%checkEvery == 0 && ctx.Err() != nil {
			w.Cancel()
			return ctx.Err()
		}
		old, ok := ix.records[id]
		if !ok {
			continue
		}
		if err := ix.removeLocked(w, id); err != nil {
			w.Cancel()
			return fmt.Errorf("blocking: remove postings of %q: %w", id, err)
		}
		removed = append(removed, old)
		delete(ix.records, id)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("blocking: write index: %w", err)
	}
	if ix.blocker.HasIndexPredicates() {
		ix.blocker.UnindexRecords(removed)
	}
	logger.Debug("gazetteer index updated", "removed", len(removed), "indexed", len(ix.records))
	return nil
}

// candidates 返回与记录共享分块键的规范记录 ID（升序，去重）。
func (ix *Index) candidates(rec core.Record) ([]core.RecordID, error) {
	keys, err := ix.blocker.Keys(rec)
	if err != nil {
		return nil, err
	}
	seen := make(map[core.RecordID]struct{})
	for _, k := range keys {
		if !ix.filter.TestString(k) {
			continue
		}
		prefix := spill.AppendString([]byte{prefixPosting}, k)
		err := ix.store.Scan(prefix, false, func(key, _ []byte) error {
			seen[string(key[len(prefix):])] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	out := make([]core.RecordID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Blocks 按 ID 升序遍历待匹配记录，为每条至少有一个候选的记录产出一个 Block。
// 分块在 Next 时惰性计算。
func (ix *Index) Blocks(ctx context.Context, messy core.RecordStore) (core.BlockIterator, error) {
	if messy.Len() == 0 {
		return core.SliceBlocks(nil), nil
	}
	return &blockIterator{ctx: ctx, ix: ix, messy: messy, ids: messy.IDs()}, nil
}

// Close 删除索引存储
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records = make(core.Dataset)
	return ix.store.Close()
}

type blockIterator struct {
	ctx   context.Context
	ix    *Index
	messy core.RecordStore
	ids   []core.RecordID
	pos   int
	cur   core.Block
	err   error
}

func (it *blockIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.ix.mu.RLock()
	defer it.ix.mu.RUnlock()
	for it.pos < len(it.ids) {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		id := it.ids[it.pos]
		it.pos++
		rec, _ := it.messy.Get(id)
		cands, err := it.ix.candidates(rec)
		if err != nil {
			it.err = err
			return false
		}
		if len(cands) == 0 {
			continue
		}
		it.cur = core.Block{QueryID: id, Candidates: cands}
		return true
	}
	return false
}

func (it *blockIterator) Block() core.Block { return it.cur }
func (it *blockIterator) Err() error        { return it.err }
func (it *blockIterator) Close() error {
	it.pos = len(it.ids)
	return nil
}
