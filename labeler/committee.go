package labeler

import (
	"fmt"
	"math/rand"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/model"
)

// DefaultCommitteeSize 是委员会的默认成员数
const DefaultCommitteeSize = 5

// Committee 是一组弱化的分类器副本，用成员之间的分歧衡量样本的信息量。
//
// 每个成员在分层自助重采样（正负样本各自有放回抽样）上训练；
// LR 成员的 L2 强度在基准值的 [0.5, 1.5) 倍之间抖动。
type Committee struct {
	Members []core.Classifier
	rng     *rand.Rand
}

// NewCommittee 克隆 base 得到 size 个成员。
func NewCommittee(base core.Classifier, size int, rng *rand.Rand) *Committee {
	if size <= 0 {
		size = DefaultCommitteeSize
	}
	c := &Committee{rng: rng}
	for i := 0; i < size; i++ {
		m := base.Clone()
		if lr, ok := m.(*model.LRModel); ok {
			alpha := lr.Alpha
			if alpha <= 0 {
				alpha = model.DefaultLRConfig().Alpha
			}
			lr.Alpha = alpha * (0.5 + rng.Float64())
		}
		c.Members = append(c.Members, m)
	}
	return c
}

// resample 分层自助重采样，保持正负样本数量不变
func (c *Committee) resample(X [][]float64, y []int) ([][]float64, []int) {
	var pos, neg []int
	for i, label := range y {
		if label == core.LabelMatch {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	outX := make([][]float64, 0, len(X))
	outY := make([]int, 0, len(y))
	for _, group := range [][]int{pos, neg} {
		for range group {
			i := group[c.rng.Intn(len(group))]
			outX = append(outX, X[i])
			outY = append(outY, y[i])
		}
	}
	return outX, outY
}

// Fit 训练全部成员
func (c *Committee) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return core.ErrEmptyTraining
	}
	for i, m := range c.Members {
		rx, ry := c.resample(X, y)
		if err := m.Fit(rx, ry); err != nil {
			return fmt.Errorf("labeler: fit committee member %d: %w", i, err)
		}
	}
	return nil
}

// Variance 返回每一行在各成员预测概率上的总体方差。
func (c *Committee) Variance(X [][]float64) ([]float64, error) {
	if len(X) == 0 {
		return nil, nil
	}
	probs := make([][]float64, len(c.Members))
	for i, m := range c.Members {
		p, err := m.PredictProba(X)
		if err != nil {
			return nil, fmt.Errorf("labeler: committee member %d: %w", i, err)
		}
		probs[i] = p
	}
	return variance(probs, len(X)), nil
}

// variance 计算 probs[member][row] 每一行的总体方差
func variance(probs [][]float64, rows int) []float64 {
	out := make([]float64, rows)
	if len(probs) == 0 {
		return out
	}
	k := float64(len(probs))
	for r := 0; r < rows; r++ {
		var mean float64
		for _, p := range probs {
			mean += p[r]
		}
		mean /= k
		var v float64
		for _, p := range probs {
			d := p[r] - mean
			v += d * d
		}
		out[r] = v / k
	}
	return out
}
