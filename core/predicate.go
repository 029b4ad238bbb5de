package core

// Predicate 是分块谓词：把一条记录映射为零个或多个分块键。
// 两条记录只有共享至少一个分块键时才会成为候选对。
type Predicate interface {
	// Name 返回谓词的唯一描述（同时用作缓存键的一部分）
	Name() string

	// Keys 计算记录的分块键；索引谓词未建索引时返回 PredicateNotIndexedError
	Keys(rec Record) ([]string, error)
}

// IndexPredicate 是需要先对语料建索引才能使用的谓词（如 TF-IDF 检索）。
type IndexPredicate interface {
	Predicate

	// Field 返回建索引使用的字段
	Field() string

	// Index 把字段值加入索引
	Index(values []string)

	// Unindex 从索引中移除字段值
	Unindex(values []string)

	// Reset 清空索引
	Reset()

	// Indexed 报告是否已建索引
	Indexed() bool
}
