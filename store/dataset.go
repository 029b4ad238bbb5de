package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rushteam/dedupekit/core"
)

// DefaultBatchSize 是 Save 每次 HMSet 写入的记录数
const DefaultBatchSize = 500

// DatasetStore 在 HashStore 上保存数据集与标注。
//
// 键布局：
//   - {prefix}:dataset:{name}  Hash，field = 记录 ID，value = 记录 JSON
//   - {prefix}:training:{name} 普通值，TrainingPairs JSON
type DatasetStore struct {
	store     core.HashStore
	prefix    string
	BatchSize int
}

func NewDatasetStore(store core.HashStore, prefix string) *DatasetStore {
	if prefix == "" {
		prefix = "dedupekit"
	}
	return &DatasetStore{store: store, prefix: prefix, BatchSize: DefaultBatchSize}
}

func (s *DatasetStore) datasetKey(name string) string {
	return s.prefix + ":dataset:" + name
}

func (s *DatasetStore) trainingKey(name string) string {
	return s.prefix + ":training:" + name
}

// Save 写入（覆盖同 ID 记录）数据集，按 ID 升序分批写入。
func (s *DatasetStore) Save(ctx context.Context, name string, data core.RecordStore) error {
	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	key := s.datasetKey(name)
	batch := make(map[string][]byte, size)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.store.HMSet(ctx, key, batch); err != nil {
			return fmt.Errorf("save dataset %s: %w", name, err)
		}
		batch = make(map[string][]byte, size)
		return nil
	}
	for _, id := range data.IDs() {
		rec, _ := data.Get(id)
		raw, err := json.Marshal(rec)
		if err != nil {
			return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, err, "encode record %q", id)
		}
		batch[id] = raw
		if len(batch) >= size {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Load 读取整个数据集；数据集不存在时返回 ErrStoreNotFound。
func (s *DatasetStore) Load(ctx context.Context, name string) (core.Dataset, error) {
	raw, err := s.store.HGetAll(ctx, s.datasetKey(name))
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", name, err)
	}
	if len(raw) == 0 {
		return nil, core.ErrStoreNotFound
	}
	data := make(core.Dataset, len(raw))
	for id, v := range raw {
		var rec core.Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, err, "decode record %q", id)
		}
		data[id] = rec
	}
	return data, nil
}

// Remove 从数据集中删除指定记录
func (s *DatasetStore) Remove(ctx context.Context, name string, ids ...core.RecordID) error {
	return s.store.HDel(ctx, s.datasetKey(name), ids...)
}

// Delete 删除整个数据集及其标注
func (s *DatasetStore) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, s.datasetKey(name)); err != nil {
		return err
	}
	return s.store.Delete(ctx, s.trainingKey(name))
}

// SaveTraining 保存标注（覆盖）
func (s *DatasetStore) SaveTraining(ctx context.Context, name string, pairs core.TrainingPairs) error {
	if pairs.Match == nil {
		pairs.Match = []core.Example{}
	}
	if pairs.Distinct == nil {
		pairs.Distinct = []core.Example{}
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, err, "encode training %s", name)
	}
	return s.store.Set(ctx, s.trainingKey(name), raw)
}

// LoadTraining 读取标注；不存在时返回 ErrStoreNotFound。
func (s *DatasetStore) LoadTraining(ctx context.Context, name string) (core.TrainingPairs, error) {
	raw, err := s.store.Get(ctx, s.trainingKey(name))
	if err != nil {
		return core.TrainingPairs{}, err
	}
	var pairs core.TrainingPairs
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return core.TrainingPairs{}, core.WrapDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, err, "decode training %s", name)
	}
	return pairs, nil
}
