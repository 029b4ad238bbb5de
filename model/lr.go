package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/conv"
)

// LRModel 实现了带 L2 正则的逻辑回归 (Logistic Regression) 分类器。
//
// 预测原理：
// 1. 线性加权求和: z = Bias + sum(Weight_i * Feature_i)
// 2. Sigmoid 变换: P = 1 / (1 + exp(-z))
//
// 训练使用全量梯度下降，结果只依赖输入，可复现。
type LRModel struct {
	Bias    float64   `json:"bias"`    // 偏置项 (Bias / Intercept)
	Weights []float64 `json:"weights"` // 特征权重 (Weights / Coefficients)

	Alpha        float64 `json:"alpha"`         // L2 正则强度
	LearningRate float64 `json:"learning_rate"` // 学习率
	Epochs       int     `json:"epochs"`        // 迭代轮数
}

// LRConfig 是 LRModel 的超参数。
type LRConfig struct {
	Alpha        float64
	LearningRate float64
	Epochs       int
}

// DefaultLRConfig 返回默认超参数
func DefaultLRConfig() LRConfig {
	return LRConfig{Alpha: 0.001, LearningRate: 0.5, Epochs: 500}
}

// LRConfigFromMap 从 YAML/JSON 配置读取超参数，缺省项使用默认值。
func LRConfigFromMap(m map[string]any) LRConfig {
	cfg := DefaultLRConfig()
	cfg.Alpha = conv.ParamFloat(m, "alpha", cfg.Alpha)
	cfg.LearningRate = conv.ParamFloat(m, "learning_rate", cfg.LearningRate)
	cfg.Epochs = conv.ParamInt(m, "epochs", cfg.Epochs)
	return cfg
}

// NewLRModel 创建未训练的模型。
func NewLRModel(cfg LRConfig) *LRModel {
	return &LRModel{Alpha: cfg.Alpha, LearningRate: cfg.LearningRate, Epochs: cfg.Epochs}
}

// LoadLRModel 从 JSON 文件加载已训练的模型。
func LoadLRModel(path string) (*LRModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := NewLRModel(DefaultLRConfig())
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

var _ core.Classifier = (*LRModel)(nil)

func (m *LRModel) Name() string { return "lr" }

func (m *LRModel) Clone() core.Classifier {
	return &LRModel{Alpha: m.Alpha, LearningRate: m.LearningRate, Epochs: m.Epochs}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (m *LRModel) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return core.ErrEmptyTraining
	}
	if len(X) != len(y) {
		return fmt.Errorf("lr: %d rows but %d labels", len(X), len(y))
	}
	dim := len(X[0])
	for i, row := range X {
		if len(row) != dim {
			return fmt.Errorf("lr: row %d has %d features, want %d", i, len(row), dim)
		}
	}

	epochs := m.Epochs
	if epochs <= 0 {
		epochs = DefaultLRConfig().Epochs
	}
	lr := m.LearningRate
	if lr <= 0 {
		lr = DefaultLRConfig().LearningRate
	}

	w := make([]float64, dim)
	var b float64
	grad := make([]float64, dim)
	n := float64(len(X))
	for e := 0; e < epochs; e++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, row := range X {
			z := b
			for j, x := range row {
				z += w[j] * x
			}
			diff := sigmoid(z) - float64(y[i])
			for j, x := range row {
				grad[j] += diff * x
			}
			gb += diff
		}
		for j := range w {
			w[j] -= lr * (grad[j]/n + m.Alpha*w[j])
		}
		b -= lr * gb / n
	}
	m.Weights = w
	m.Bias = b
	return nil
}

func (m *LRModel) PredictProba(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Weights) {
			return nil, fmt.Errorf("lr: row %d has %d features, model expects %d", i, len(row), len(m.Weights))
		}
		z := m.Bias
		for j, x := range row {
			z += m.Weights[j] * x
		}
		out[i] = sigmoid(z)
	}
	return out, nil
}
