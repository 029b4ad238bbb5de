package core

// DataModel 是数据模型的领域接口：把记录对转换为特征（距离）向量。
//
// 设计原则：
//   - 定义在领域层（core），由 feature 包实现
//   - 打分器只依赖此接口，不关心具体比较器
//
// 实现：
//   - feature.DataModel（字符串/精确/数值/集合比较器）
type DataModel interface {
	// Fields 返回数据模型用到的字段名（去重、有序）
	Fields() []string

	// NumFeatures 返回 Distances 输出向量的维度
	NumFeatures() int

	// Distances 为每个记录对计算一行特征向量
	Distances(pairs []Example) ([][]float64, error)

	// Check 校验记录是否满足数据模型，不满足时返回 SchemaError
	Check(id RecordID, rec Record) error
}

// Classifier 是匹配概率分类器的领域接口。
//
// 每个 matcher 持有自己的 Classifier 实例，互不共享。
// 实现需可被 encoding/json 序列化（配置文件中保存参数）。
type Classifier interface {
	// Name 返回注册名（如 "lr"），用于反序列化时查找构造器
	Name() string

	// Fit 用特征矩阵 X 和 0/1 标签 y 训练
	Fit(X [][]float64, y []int) error

	// PredictProba 返回每行为匹配的概率
	PredictProba(X [][]float64) ([]float64, error)

	// Clone 返回相同超参数的未训练副本
	Clone() Classifier
}
