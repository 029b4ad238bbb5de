// Package config 从 YAML/JSON 加载 matcher 配置，并用环境变量覆盖部分字段。
//
// 示例：
//
//	cfg, err := config.LoadFromYAML("dedupe.yaml")
//	if err != nil { ... }
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil { ... }
//	opts, err := cfg.Options()
//	if err != nil { ... }
//	d, err := matcher.NewDedupe(cfg.Variables(), opts...)
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/matcher"
	"github.com/rushteam/dedupekit/model"
	"github.com/rushteam/dedupekit/predicate"
	"github.com/rushteam/dedupekit/store"
)

// Config 是配置文件的根结构（支持 YAML/JSON）。
type Config struct {
	Matcher MatcherConfig `yaml:"matcher" json:"matcher"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Feast   FeastConfig   `yaml:"feast" json:"feast"`
}

// MatcherConfig 是 matcher 的配置。
type MatcherConfig struct {
	Mode       string             `yaml:"mode" json:"mode"` // dedupe | link | gazetteer
	NumCores   int                `yaml:"num_cores" json:"num_cores"`
	TempDir    string             `yaml:"temp_dir" json:"temp_dir"`
	Threshold  float64            `yaml:"threshold" json:"threshold"`
	NMatches   int                `yaml:"n_matches" json:"n_matches"`
	Constraint string             `yaml:"constraint" json:"constraint"`
	SharedIDs  bool               `yaml:"shared_ids" json:"shared_ids"`
	Debug      bool               `yaml:"debug" json:"debug"`
	Variables  []feature.Variable `yaml:"variables" json:"variables"`
	Classifier ClassifierConfig   `yaml:"classifier" json:"classifier"`
	// Rules 是手写的分块规则（可选），每条规则是谓词的合取
	Rules    [][]predicate.Spec `yaml:"rules" json:"rules"`
	Training TrainingConfig     `yaml:"training" json:"training"`
}

// ClassifierConfig 是分类器类型与超参数。
type ClassifierConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config"`
}

// TrainingConfig 是主动学习与规则学习的参数。
type TrainingConfig struct {
	SampleSize int `yaml:"sample_size" json:"sample_size"`
	// BlockedProportion 未设置时使用模式默认值，0 表示全部随机抽样
	BlockedProportion *float64 `yaml:"blocked_proportion" json:"blocked_proportion"`
	OriginalLength    int      `yaml:"original_length" json:"original_length"`
	OriginalLeft      int      `yaml:"original_left" json:"original_left"`
	OriginalRight     int      `yaml:"original_right" json:"original_right"`
	Recall            float64  `yaml:"recall" json:"recall"`
	IndexPredicates   bool     `yaml:"index_predicates" json:"index_predicates"`
	CommitteeSize     int      `yaml:"committee_size" json:"committee_size"`
	MaxCoverShare     float64  `yaml:"max_cover_share" json:"max_cover_share"`
	Seed              int64    `yaml:"seed" json:"seed"`
}

// StoreConfig 是数据集存储后端。
type StoreConfig struct {
	Type   string            `yaml:"type" json:"type"` // memory | redis
	Prefix string            `yaml:"prefix" json:"prefix"`
	Redis  store.RedisConfig `yaml:"redis" json:"redis"`
}

// FeastConfig 是 Feast 在线存储记录来源。
type FeastConfig struct {
	Endpoint  string            `yaml:"endpoint" json:"endpoint"`
	Project   string            `yaml:"project" json:"project"`
	EntityKey string            `yaml:"entity_key" json:"entity_key"`
	Features  []string          `yaml:"features" json:"features"`
	Fields    map[string]string `yaml:"fields" json:"fields"`
	Token     string            `yaml:"token" json:"token"`
}

// LoadFromYAML 从 YAML 文件加载配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML 解析 YAML 配置
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromJSON 从 JSON 文件加载配置。
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	m := &c.Matcher
	if m.Mode == "" {
		m.Mode = ModeDedupe
	}
	var defaults core.MatchConfig = &core.DefaultDedupeConfig{}
	if m.Mode != ModeDedupe {
		defaults = &core.DefaultLinkConfig{}
	}
	if m.Threshold == 0 {
		m.Threshold = defaults.DefaultThreshold()
	}
	if m.NMatches == 0 {
		m.NMatches = defaults.DefaultNumMatches()
	}
	if m.Constraint == "" {
		m.Constraint = matcher.ConstraintOneToOne
	}
	if m.Classifier.Type == "" {
		m.Classifier.Type = "lr"
	}
	if m.Training.Recall == 0 {
		m.Training.Recall = defaults.DefaultRecall()
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreMemory
	}
}

// Variables 返回数据模型变量定义
func (c *Config) Variables() []feature.Variable {
	return append([]feature.Variable(nil), c.Matcher.Variables...)
}

// Classifier 通过分类器注册表构建未训练的分类器
func (c *Config) Classifier() (core.Classifier, error) {
	return model.New(c.Matcher.Classifier.Type, c.Matcher.Classifier.Config)
}

// Rules 通过谓词注册表构建手写分块规则
func (c *Config) Rules() ([]predicate.Rule, error) {
	return predicate.BuildRules(c.Matcher.Rules)
}

// Options 把配置转为 matcher.Option
func (c *Config) Options() ([]matcher.Option, error) {
	clf, err := c.Classifier()
	if err != nil {
		return nil, err
	}
	opts := []matcher.Option{
		matcher.WithNumCores(c.Matcher.NumCores),
		matcher.WithTempDir(c.Matcher.TempDir),
		matcher.WithSharedIDs(c.Matcher.SharedIDs),
		matcher.WithClassifier(clf),
	}
	if len(c.Matcher.Rules) > 0 {
		rules, err := c.Rules()
		if err != nil {
			return nil, err
		}
		opts = append(opts, matcher.WithRules(rules...))
	}
	return opts, nil
}

// TrainingOptions 返回 PrepareTraining 的抽样参数
func (c *Config) TrainingOptions() matcher.TrainingOptions {
	t := c.Matcher.Training
	return matcher.TrainingOptions{
		SampleSize:        t.SampleSize,
		BlockedProportion: t.BlockedProportion,
		OriginalLength:    t.OriginalLength,
		OriginalLeft:      t.OriginalLeft,
		OriginalRight:     t.OriginalRight,
		CommitteeSize:     t.CommitteeSize,
		MaxCoverShare:     t.MaxCoverShare,
		Seed:              t.Seed,
	}
}
