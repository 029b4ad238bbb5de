package core

// MatchConfig 是匹配相关的配置接口，用于提供默认值。
type MatchConfig interface {
	// DefaultSampleSize 返回主动学习的默认样本量
	DefaultSampleSize() int

	// DefaultBlockedProportion 返回样本中来自分块的比例
	DefaultBlockedProportion() float64

	// DefaultRecall 返回学习分块规则时的目标召回率
	DefaultRecall() float64

	// DefaultThreshold 返回聚类/链接的默认阈值
	DefaultThreshold() float64

	// DefaultNumMatches 返回 gazetteer 每条查询的默认命中数
	DefaultNumMatches() int
}

// DefaultDedupeConfig 是去重模式的默认配置。
type DefaultDedupeConfig struct{}

func (c *DefaultDedupeConfig) DefaultSampleSize() int            { return 1500 }
func (c *DefaultDedupeConfig) DefaultBlockedProportion() float64 { return 0.9 }
func (c *DefaultDedupeConfig) DefaultRecall() float64            { return 0.95 }
func (c *DefaultDedupeConfig) DefaultThreshold() float64         { return 0.5 }
func (c *DefaultDedupeConfig) DefaultNumMatches() int            { return 1 }

// DefaultLinkConfig 是链接/gazetteer 模式的默认配置，随机样本占比更高。
type DefaultLinkConfig struct{}

func (c *DefaultLinkConfig) DefaultSampleSize() int            { return 15000 }
func (c *DefaultLinkConfig) DefaultBlockedProportion() float64 { return 0.5 }
func (c *DefaultLinkConfig) DefaultRecall() float64            { return 0.95 }
func (c *DefaultLinkConfig) DefaultThreshold() float64         { return 0.5 }
func (c *DefaultLinkConfig) DefaultNumMatches() int            { return 1 }

var (
	_ MatchConfig = (*DefaultDedupeConfig)(nil)
	_ MatchConfig = (*DefaultLinkConfig)(nil)
)
