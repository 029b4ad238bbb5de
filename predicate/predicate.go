// Package predicate 实现分块谓词：把记录映射为分块键。
//
// 三类谓词：
//   - 字段谓词（FieldPredicate）：整字段、首词、前缀、整数等，纯函数
//   - 表达式谓词（Expression）：CEL 表达式产出分块键
//   - 索引谓词（TfidfSearch）：先对语料建 TF-IDF 索引，再按相似度产出键
//
// 多个谓词的合取构成一条分块规则（Rule）。
// 每个谓词都能导出 Spec，通过注册表（Register/Build）重建，用于配置文件的保存与加载。
package predicate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/dedupekit/core"
)

// Spec 是谓词的可序列化描述。
type Spec struct {
	Type   string         `json:"type" yaml:"type"`
	Field  string         `json:"field,omitempty" yaml:"field"`
	Params map[string]any `json:"params,omitempty" yaml:"params"`
}

// Describer 由可序列化的谓词实现。
type Describer interface {
	Spec() Spec
}

// Builder 根据字段与参数构建谓词。
type Builder func(field string, params map[string]any) (core.Predicate, error)

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

// Register 注册一种谓词的构建逻辑，内置谓词在 init 中注册。
func Register(typeName string, builder Builder) {
	if typeName == "" || builder == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[typeName] = builder
}

// SupportedTypes 返回当前已注册的谓词类型（排序），用于错误提示与校验。
func SupportedTypes() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	types := make([]string, 0, len(builders))
	for t := range builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported 报告谓词类型是否已注册
func IsSupported(typeName string) bool {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	_, ok := builders[typeName]
	return ok
}

// Build 根据 Spec 重建谓词。
func Build(spec Spec) (core.Predicate, error) {
	buildersMu.RLock()
	builder, ok := builders[spec.Type]
	buildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported predicate type %q (supported: %v)", spec.Type, SupportedTypes())
	}
	p, err := builder(spec.Field, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("build predicate %s: %w", spec.Type, err)
	}
	return p, nil
}

// SpecOf 导出谓词的 Spec；不可序列化的谓词返回错误。
func SpecOf(p core.Predicate) (Spec, error) {
	d, ok := p.(Describer)
	if !ok {
		return Spec{}, core.NewDomainError(core.ModulePredicate, core.ErrorCodeNotSupported,
			fmt.Sprintf("predicate %s cannot be serialized", p.Name()))
	}
	return d.Spec(), nil
}

func uniqueStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

