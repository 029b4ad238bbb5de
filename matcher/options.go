package matcher

import (
	"io"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/predicate"
)

// Options 是 matcher 的运行参数。
type Options struct {
	// NumCores 是打分 worker 数，<= 0 时使用 runtime.NumCPU()
	NumCores int
	// TempDir 是分块、打分、聚类临时存储的父目录，为空时使用系统临时目录
	TempDir string
	// SpillAt 是打分结果在内存中的最大条目数
	SpillAt int
	// MaxComponentSize 是层次聚类单个连通分量的最大记录数
	MaxComponentSize int
	// SharedIDs 表示链接的左右数据集共用 ID 空间，一对一匹配时任一端用过的 ID 不再使用
	SharedIDs bool
	// Classifier 是未训练的分类器原型，为空时使用 "lr"。每个 matcher 独占自己的实例。
	Classifier core.Classifier
	// Rules 是手写的分块规则；Train 学到的规则会替换它们
	Rules []predicate.Rule
}

// Option 配置 Options
type Option func(*Options)

func WithNumCores(n int) Option {
	return func(o *Options) { o.NumCores = n }
}

func WithTempDir(dir string) Option {
	return func(o *Options) { o.TempDir = dir }
}

func WithSpillAt(n int) Option {
	return func(o *Options) { o.SpillAt = n }
}

func WithMaxComponentSize(n int) Option {
	return func(o *Options) { o.MaxComponentSize = n }
}

func WithSharedIDs(shared bool) Option {
	return func(o *Options) { o.SharedIDs = shared }
}

// WithClassifier 使用给定分类器（会被 Clone，调用方的实例不会被训练）
func WithClassifier(c core.Classifier) Option {
	return func(o *Options) { o.Classifier = c }
}

// WithRules 使用手写分块规则，未训练时也可分块
func WithRules(rules ...predicate.Rule) Option {
	return func(o *Options) { o.Rules = rules }
}

func newOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TrainingOptions 控制 PrepareTraining 的抽样。零值字段使用 core.MatchConfig 的默认值。
type TrainingOptions struct {
	SampleSize int
	// BlockedProportion 是样本中来自宽松分块的比例，nil 使用默认值，0 表示全部随机抽样
	BlockedProportion *float64
	// OriginalLength 是完整数据集大小（去重模式），传入的是子样本时设置
	OriginalLength int
	// OriginalLeft / OriginalRight 是完整左右数据集大小（链接/gazetteer 模式）
	OriginalLeft  int
	OriginalRight int
	CommitteeSize int
	// MaxCoverShare 是学习规则时单条规则允许的最大比较占比，0 使用默认值
	MaxCoverShare float64
	Seed          int64
	// Training 是已有标注（JSON），抽样前先读入
	Training io.Reader
}

func (t TrainingOptions) withDefaults(cfg core.MatchConfig) TrainingOptions {
	if t.SampleSize <= 0 {
		t.SampleSize = cfg.DefaultSampleSize()
	}
	if t.BlockedProportion == nil {
		p := cfg.DefaultBlockedProportion()
		t.BlockedProportion = &p
	}
	return t
}

// Proportion 返回 p 的指针，用于设置 TrainingOptions.BlockedProportion
func Proportion(p float64) *float64 { return &p }
