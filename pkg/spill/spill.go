// Package spill 封装 Badger，作为分块、聚类与 gazetteer 索引的外存有序 KV。
//
// 两种用法：
//   - 临时存储（OpenTemp）：在临时目录下创建，Close 时删除整个目录
//   - 持久存储（Open + Config.Dir）：gazetteer 索引跨调用保留
package spill

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
)

// Config 是 Badger 存储配置。
type Config struct {
	// Dir 是数据目录；InMemory 为 false 时必填
	Dir string

	// InMemory 启用纯内存模式（测试用）
	InMemory bool

	// RemoveOnClose 为 true 时 Close 会删除 Dir
	RemoveOnClose bool

	// MemTableSize 是 memtable 大小（字节），临时存储默认 16MB
	MemTableSize int64

	// ValueLogFileSize 是 value log 文件大小（字节）
	ValueLogFileSize int64

	// BlockCacheSize 是 block cache 大小（字节）
	BlockCacheSize int64

	// Compression 启用 Snappy 压缩
	Compression bool

	// SyncWrites 启用同步写
	SyncWrites bool
}

// Validate 校验配置。
func (c *Config) Validate() error {
	if c.Dir == "" && !c.InMemory {
		return fmt.Errorf("spill: Dir must be specified when InMemory is false")
	}
	if c.MemTableSize < 0 || c.ValueLogFileSize < 0 || c.BlockCacheSize < 0 {
		return fmt.Errorf("spill: sizes must be non-negative")
	}
	if c.ValueLogFileSize > 0 && (c.ValueLogFileSize < 1<<20 || c.ValueLogFileSize >= 2<<30) {
		return fmt.Errorf("spill: ValueLogFileSize must be in [1MB, 2GB), got %d", c.ValueLogFileSize)
	}
	return nil
}

// DefaultConfig 返回持久存储的默认配置。
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:              dir,
		MemTableSize:     64 << 20,
		ValueLogFileSize: 256 << 20,
		BlockCacheSize:   64 << 20,
		Compression:      true,
	}
}

// TempConfig 返回临时存储配置：较小的内存占用，关闭即删除。
func TempConfig(dir string) *Config {
	return &Config{
		Dir:              dir,
		RemoveOnClose:    true,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 64 << 20,
		BlockCacheSize:   8 << 20,
	}
}

func buildBadgerOptions(cfg *Config) badger.Options {
	if cfg.InMemory {
		opts := badger.DefaultOptions("")
		opts.InMemory = true
		opts.Logger = nil
		return opts
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = nil
	opts.DetectConflicts = false
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = cfg.SyncWrites
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.BlockCacheSize > 0 {
		opts.BlockCacheSize = cfg.BlockCacheSize
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	} else {
		opts.Compression = options.None
	}
	return opts
}

// Store 是一个打开的 Badger 实例。
type Store struct {
	db     *badger.DB
	dir    string
	remove bool
}

// Open 按配置打开存储。
func Open(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("spill: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := badger.Open(buildBadgerOptions(cfg))
	if err != nil {
		if cfg.RemoveOnClose && cfg.Dir != "" {
			_ = os.RemoveAll(cfg.Dir)
		}
		return nil, fmt.Errorf("spill: open badger: %w", err)
	}
	return &Store{db: db, dir: cfg.Dir, remove: cfg.RemoveOnClose && !cfg.InMemory}, nil
}

// OpenTemp 在 parent 下（为空时使用系统临时目录）创建唯一目录并打开临时存储。
func OpenTemp(parent string) (*Store, error) {
	dir, err := os.MkdirTemp(parent, "dedupekit-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("spill: create temp dir: %w", err)
	}
	return Open(TempConfig(dir))
}

// Dir 返回数据目录（内存模式为空）
func (s *Store) Dir() string { return s.dir }

// Close 关闭数据库；临时存储同时删除目录。重复调用安全。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if s.remove {
		if rmErr := os.RemoveAll(s.dir); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// Get 读取单个 key。
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// HasPrefix 报告是否存在以 prefix 开头的 key。
func (s *Store) HasPrefix(prefix []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	return found, err
}

// Scan 按 key 升序遍历 prefix 下的所有条目；fn 返回错误时停止。
// 传给 fn 的切片在回调返回后仍然有效。
func (s *Store) Scan(prefix []byte, withValues bool, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = withValues
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var val []byte
			if withValues {
				var err error
				if val, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}
			if err := fn(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropPrefix 删除 prefix 下的全部条目。
func (s *Store) DropPrefix(prefix []byte) error {
	return s.db.DropPrefix(prefix)
}

// Writer 是批量写入器，写入量超过单事务上限时自动分批提交。
type Writer struct {
	wb *badger.WriteBatch
	n  int
}

// NewWriter 创建批量写入器，使用完必须 Flush 或 Cancel。
func (s *Store) NewWriter() *Writer {
	return &Writer{wb: s.db.NewWriteBatch()}
}

func (w *Writer) Set(key, val []byte) error {
	w.n++
	return w.wb.Set(key, val)
}

func (w *Writer) Delete(key []byte) error {
	w.n++
	return w.wb.Delete(key)
}

// Count 返回已写入（含删除）的条目数
func (w *Writer) Count() int { return w.n }

func (w *Writer) Flush() error { return w.wb.Flush() }

func (w *Writer) Cancel() { w.wb.Cancel() }

// Cursor 是只读游标，生命周期内持有一个读事务。
type Cursor struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	values  bool
	started bool
	key     []byte
	val     []byte
	err     error
}

// NewCursor 创建 prefix 范围内的升序游标，使用完必须 Close。
func (s *Store) NewCursor(prefix []byte, withValues bool) *Cursor {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = withValues
	opts.Prefix = prefix
	return &Cursor{txn: txn, it: txn.NewIterator(opts), prefix: prefix, values: withValues}
}

func (c *Cursor) Next() bool {
	if c.err != nil || c.it == nil {
		return false
	}
	if !c.started {
		c.it.Seek(c.prefix)
		c.started = true
	} else {
		c.it.Next()
	}
	if !c.it.ValidForPrefix(c.prefix) {
		return false
	}
	item := c.it.Item()
	c.key = item.KeyCopy(c.key[:0])
	if c.values {
		c.val, c.err = item.ValueCopy(c.val[:0])
		if c.err != nil {
			return false
		}
	}
	return true
}

// Key 返回当前 key，下一次 Next 后失效
func (c *Cursor) Key() []byte { return c.key }

// Value 返回当前 value，下一次 Next 后失效
func (c *Cursor) Value() []byte { return c.val }

func (c *Cursor) Err() error { return c.err }

func (c *Cursor) Close() error {
	if c.it != nil {
		c.it.Close()
		c.txn.Discard()
		c.it = nil
	}
	return nil
}
