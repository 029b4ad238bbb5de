package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RecordID 是记录的唯一标识。
// 使用 string 类型（通用，支持所有 ID 格式），全序即 Go 字符串的字节序。
type RecordID = string

// Record 是一条记录：字段名 -> 字段值。
// 字段值通常是 string / float64 / []any（集合型字段）或 nil（缺失）。
type Record map[string]any

// RecordStore 是记录存储的领域接口：按 ID 随机读取 + 有序遍历 ID。
//
// 实现：
//   - core.Dataset（内存 map）
//   - store.DatasetStore 从 Redis/内存 KV 加载得到 Dataset
//   - feast.RecordLoader 从 Feast 在线特征构造 Dataset
type RecordStore interface {
	Get(id RecordID) (Record, bool)
	Len() int
	// IDs 返回升序排列的全部 ID
	IDs() []RecordID
}

// Dataset 是内存中的记录集合，实现 RecordStore。
type Dataset map[RecordID]Record

var _ RecordStore = Dataset(nil)

func (d Dataset) Get(id RecordID) (Record, bool) {
	r, ok := d[id]
	return r, ok
}

func (d Dataset) Len() int { return len(d) }

func (d Dataset) IDs() []RecordID {
	ids := make([]RecordID, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pair 是一对候选记录 ID。
// 去重模式下满足 A < B；链接模式下 A 来自左数据集，B 来自右数据集。
type Pair struct {
	A RecordID
	B RecordID
}

// ScoredPair 是带匹配概率的候选对。
type ScoredPair struct {
	Pair
	Score float64
}

// Link 是链接模式的输出：(左 ID, 右 ID, 分数)。
type Link = ScoredPair

// Cluster 是划分聚类的一个簇，IDs 与 Scores 一一对应（每个成员的置信度）。
type Cluster struct {
	IDs    []RecordID
	Scores []float64
}

// Match 是 gazetteer 查询的一个命中。
type Match struct {
	ID    RecordID
	Score float64
}

// SearchResult 是一条查询记录的检索结果，Matches 按分数降序排列。
type SearchResult struct {
	QueryID RecordID
	Matches []Match
}

// Block 是 gazetteer 分块结果：一条查询记录及其候选（已索引记录）ID。
type Block struct {
	QueryID    RecordID
	Candidates []RecordID
}

// Example 是一对带标注用的记录（训练样本）。
// JSON 形式为两元素数组：[recordA, recordB]。
type Example struct {
	A Record
	B Record
}

func (e Example) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Record{e.A, e.B})
}

func (e *Example) UnmarshalJSON(data []byte) error {
	var pair []Record
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("example must contain exactly 2 records, got %d", len(pair))
	}
	e.A, e.B = pair[0], pair[1]
	return nil
}

// 标注值
const (
	LabelDistinct = 0
	LabelMatch    = 1
)

// TrainingPairs 是标注集合。
type TrainingPairs struct {
	Match    []Example `json:"match"`
	Distinct []Example `json:"distinct"`
}

// Len 返回标注总数
func (t TrainingPairs) Len() int { return len(t.Match) + len(t.Distinct) }

// Flatten 按 match 在前、distinct 在后的顺序展开，返回样本与 1/0 标签。
func (t TrainingPairs) Flatten() ([]Example, []int) {
	examples := make([]Example, 0, t.Len())
	labels := make([]int, 0, t.Len())
	for _, e := range t.Match {
		examples = append(examples, e)
		labels = append(labels, LabelMatch)
	}
	for _, e := range t.Distinct {
		examples = append(examples, e)
		labels = append(labels, LabelDistinct)
	}
	return examples, labels
}

// Merge 追加另一组标注。
func (t *TrainingPairs) Merge(other TrainingPairs) {
	t.Match = append(t.Match, other.Match...)
	t.Distinct = append(t.Distinct, other.Distinct...)
}
