// Package blocking 把记录按分块规则映射为分块键，并在外存上做连接生成候选对。
//
// 三种模式：
//   - 去重（DedupeSource）：同一数据集自连接，只产出 a < b 的去重候选对
//   - 链接（LinkSource）：左右数据集连接，产出去重的 (左, 右) 候选对
//   - gazetteer（Index）：持久化规范数据集的分块键，查询时按查询记录分组返回候选
//
// 连接的中间结果写入临时 Badger 存储（pkg/spill），任何退出路径都会删除。
package blocking

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/predicate"
	"github.com/rushteam/dedupekit/pkg/textutil"
)

// DefaultCacheSize 是字段谓词结果缓存的默认容量
const DefaultCacheSize = 100_000

// Blocker 持有分块规则，计算记录的分块键。
//
// 字段谓词是纯函数，结果按 (谓词, 字段值) 缓存；索引谓词与表达式谓词不缓存。
// 每个键都带上规则序号后缀，不同规则的键不会相互碰撞。
type Blocker struct {
	rules []predicate.Rule
	cache *lru.Cache[string, []string]
}

// Option 配置 Blocker
type Option func(*blockerOptions)

type blockerOptions struct {
	cacheSize int
}

// WithCacheSize 设置谓词结果缓存容量，<= 0 时关闭缓存。
func WithCacheSize(n int) Option {
	return func(o *blockerOptions) { o.cacheSize = n }
}

// NewBlocker 创建 Blocker。
func NewBlocker(rules []predicate.Rule, opts ...Option) (*Blocker, error) {
	o := blockerOptions{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	b := &Blocker{rules: rules}
	if o.cacheSize > 0 {
		cache, err := lru.New[string, []string](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("blocking: create cache: %w", err)
		}
		b.cache = cache
	}
	return b, nil
}

// Rules 返回分块规则
func (b *Blocker) Rules() []predicate.Rule { return b.rules }

// Keys 计算记录在全部规则下的分块键。
func (b *Blocker) Keys(rec core.Record) ([]string, error) {
	var out []string
	for i, rule := range b.rules {
		keys, err := rule.KeysWith(rec, b.predicateKeys)
		if err != nil {
			return nil, err
		}
		suffix := ":" + strconv.Itoa(i)
		for _, k := range keys {
			out = append(out, k+suffix)
		}
	}
	return out, nil
}

func (b *Blocker) predicateKeys(p core.Predicate, rec core.Record) ([]string, error) {
	fp, ok := p.(*predicate.FieldPredicate)
	if !ok || b.cache == nil {
		return p.Keys(rec)
	}
	raw := rec[fp.Field()]
	value, ok := raw.(string)
	if !ok {
		return p.Keys(rec)
	}
	cacheKey := fp.Name() + "\x00" + value
	if keys, ok := b.cache.Get(cacheKey); ok {
		return keys, nil
	}
	keys, err := p.Keys(rec)
	if err != nil {
		return nil, err
	}
	b.cache.Add(cacheKey, keys)
	return keys, nil
}

// IndexPredicates 按字段分组返回全部索引谓词，多条规则共享的同一谓词只出现一次。
func (b *Blocker) IndexPredicates() map[string][]core.IndexPredicate {
	out := make(map[string][]core.IndexPredicate)
	seen := make(map[core.IndexPredicate]struct{})
	for _, rule := range b.rules {
		for _, ip := range rule.IndexPredicates() {
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			out[ip.Field()] = append(out[ip.Field()], ip)
		}
	}
	return out
}

// HasIndexPredicates 报告规则中是否包含索引谓词
func (b *Blocker) HasIndexPredicates() bool {
	return len(b.IndexPredicates()) > 0
}

func fieldValues(records []core.Record, field string) []string {
	values := make([]string, 0, len(records))
	for _, rec := range records {
		if s, ok := textutil.ToString(rec[field]); ok {
			values = append(values, s)
		}
	}
	return values
}

// IndexRecords 把记录的字段值加入各索引谓词。
func (b *Blocker) IndexRecords(records []core.Record) {
	for field, preds := range b.IndexPredicates() {
		values := fieldValues(records, field)
		for _, p := range preds {
			p.Index(values)
		}
	}
}

// UnindexRecords 从各索引谓词中移除记录的字段值。
func (b *Blocker) UnindexRecords(records []core.Record) {
	for field, preds := range b.IndexPredicates() {
		values := fieldValues(records, field)
		for _, p := range preds {
			p.Unindex(values)
		}
	}
}

// IndexAll 用存储中的全部记录建索引。
func (b *Blocker) IndexAll(data core.RecordStore) {
	if !b.HasIndexPredicates() {
		return
	}
	b.IndexRecords(records(data))
}

// ResetIndices 清空全部索引谓词
func (b *Blocker) ResetIndices() {
	for _, preds := range b.IndexPredicates() {
		for _, p := range preds {
			p.Reset()
		}
	}
}

func records(data core.RecordStore) []core.Record {
	ids := data.IDs()
	out := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := data.Get(id); ok {
			out = append(out, rec)
		}
	}
	return out
}
