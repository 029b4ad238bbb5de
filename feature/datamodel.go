// Package feature 实现数据模型：把记录对转换为分类器使用的距离向量。
package feature

import (
	"fmt"

	"github.com/rushteam/dedupekit/core"
)

// Variable 是数据模型中的一个比较变量。
type Variable struct {
	Field string `json:"field" yaml:"field"`
	Type  string `json:"type" yaml:"type"`
	// HasMissing 为 true 时允许缺失值，并额外输出一维缺失指示特征
	HasMissing bool `json:"has_missing,omitempty" yaml:"has_missing"`
}

// DataModel 是 core.DataModel 的默认实现。
//
// 特征布局：每个变量一维距离；HasMissing 的变量在全部距离之后各追加一维缺失指示（0/1）。
// 缺失值的距离记为 0。
type DataModel struct {
	vars        []Variable
	comparators []Comparator
	missing     []int // HasMissing 变量的下标
}

var _ core.DataModel = (*DataModel)(nil)

// NewDataModel 按变量定义构建数据模型。
func NewDataModel(vars []Variable) (*DataModel, error) {
	if len(vars) == 0 {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput,
			"data model requires at least one variable")
	}
	dm := &DataModel{vars: append([]Variable(nil), vars...)}
	for i, v := range vars {
		if v.Field == "" {
			return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput,
				fmt.Sprintf("variable %d: field is required", i))
		}
		c, err := lookupComparator(v.Type)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput, err,
				"variable %s", v.Field)
		}
		dm.comparators = append(dm.comparators, c)
		if v.HasMissing {
			dm.missing = append(dm.missing, i)
		}
	}
	return dm, nil
}

// Variables 返回变量定义副本（用于序列化）
func (dm *DataModel) Variables() []Variable {
	return append([]Variable(nil), dm.vars...)
}

// FieldKinds 返回字段 -> 变量类型，供谓词候选集生成使用。
// 同一字段出现多次时以第一次为准。
func (dm *DataModel) FieldKinds() map[string]string {
	out := make(map[string]string, len(dm.vars))
	for _, v := range dm.vars {
		if _, ok := out[v.Field]; !ok {
			out[v.Field] = v.Type
		}
	}
	return out
}

func (dm *DataModel) Fields() []string {
	seen := make(map[string]bool, len(dm.vars))
	var out []string
	for _, v := range dm.vars {
		if !seen[v.Field] {
			seen[v.Field] = true
			out = append(out, v.Field)
		}
	}
	return out
}

func (dm *DataModel) NumFeatures() int { return len(dm.vars) + len(dm.missing) }

func (dm *DataModel) Distances(pairs []core.Example) ([][]float64, error) {
	out := make([][]float64, len(pairs))
	n := len(dm.vars)
	for i, p := range pairs {
		row := make([]float64, dm.NumFeatures())
		missing := make([]bool, n)
		for j, v := range dm.vars {
			d, ok := dm.comparators[j].Compare(p.A[v.Field], p.B[v.Field])
			if !ok {
				missing[j] = true
				continue
			}
			row[j] = d
		}
		for k, j := range dm.missing {
			if missing[j] {
				row[n+k] = 1
			}
		}
		out[i] = row
	}
	return out, nil
}

// Check 校验记录包含全部变量字段，且字段值类型可比较。
// 不允许缺失的变量字段必须存在（值可以为空，按缺失处理）。
func (dm *DataModel) Check(id core.RecordID, rec core.Record) error {
	for j, v := range dm.vars {
		val, ok := rec[v.Field]
		if !ok {
			if v.HasMissing {
				continue
			}
			return core.NewSchemaError(id, v.Field, "is missing")
		}
		if err := dm.comparators[j].Validate(val); err != nil {
			return core.NewSchemaError(id, v.Field, err.Error())
		}
	}
	return nil
}

// CheckStore 依次校验存储中的全部记录，遇到第一条不合法记录即返回。
// 空数据集返回 EmptyInputError。
func CheckStore(dm core.DataModel, data core.RecordStore) error {
	if data == nil || data.Len() == 0 {
		return core.NewDomainError(core.ModuleMatcher, core.ErrorCodeEmptyInput, "dataset is empty")
	}
	for _, id := range data.IDs() {
		rec, _ := data.Get(id)
		if err := dm.Check(id, rec); err != nil {
			return err
		}
	}
	return nil
}
