// Package model 提供匹配概率分类器（core.Classifier）的实现与注册表。
package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/dedupekit/core"
)

// Builder 根据配置构建分类器
type Builder func(config map[string]any) (core.Classifier, error)

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

func init() {
	Register("lr", func(config map[string]any) (core.Classifier, error) {
		return NewLRModel(LRConfigFromMap(config)), nil
	})
}

// Register 注册分类器类型。
func Register(name string, builder Builder) {
	if name == "" || builder == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[name] = builder
}

// SupportedTypes 返回已注册的分类器类型（排序）
func SupportedTypes() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New 按类型名和配置构建分类器。
func New(name string, config map[string]any) (core.Classifier, error) {
	buildersMu.RLock()
	builder, ok := builders[name]
	buildersMu.RUnlock()
	if !ok {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeNotSupported,
			fmt.Sprintf("unsupported classifier %q (supported: %v)", name, SupportedTypes()))
	}
	return builder(config)
}
