package config

import (
	"fmt"
	"slices"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/matcher"
	"github.com/rushteam/dedupekit/model"
	"github.com/rushteam/dedupekit/predicate"
)

// matcher 模式
const (
	ModeDedupe    = "dedupe"
	ModeLink      = "link"
	ModeGazetteer = "gazetteer"
)

// 存储后端
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// SupportedModes 返回支持的 matcher 模式
func SupportedModes() []string {
	return []string{ModeDedupe, ModeGazetteer, ModeLink}
}

// SupportedConstraints 返回支持的链接约束
func SupportedConstraints() []string {
	return []string{matcher.ConstraintManyToMany, matcher.ConstraintManyToOne, matcher.ConstraintOneToOne}
}

func invalid(format string, args ...any) error {
	return core.NewDomainError(core.ModuleMatcher, core.ErrorCodeInvalidInput, fmt.Sprintf(format, args...))
}

// Validate 校验模式、约束、变量类型、分类器类型与谓词类型均受支持；
// 不支持时返回包含已支持列表的错误。
func (c *Config) Validate() error {
	m := c.Matcher
	if !slices.Contains(SupportedModes(), m.Mode) {
		return invalid("unsupported mode %q (supported: %v)", m.Mode, SupportedModes())
	}
	if !slices.Contains(SupportedConstraints(), m.Constraint) {
		return core.NewDomainError(core.ModuleMatcher, core.ErrorCodeInvalidConstraint,
			fmt.Sprintf("unsupported constraint %q (supported: %v)", m.Constraint, SupportedConstraints()))
	}
	if len(m.Variables) == 0 {
		return invalid("at least one variable is required")
	}
	for _, v := range m.Variables {
		if !slices.Contains(feature.SupportedTypes(), v.Type) {
			return invalid("variable %s: unsupported type %q (supported: %v)", v.Field, v.Type, feature.SupportedTypes())
		}
	}
	if !slices.Contains(model.SupportedTypes(), m.Classifier.Type) {
		return invalid("unsupported classifier %q (supported: %v)", m.Classifier.Type, model.SupportedTypes())
	}
	for i, rule := range m.Rules {
		if len(rule) == 0 {
			return invalid("rule %d is empty", i)
		}
		for _, spec := range rule {
			if !predicate.IsSupported(spec.Type) {
				return invalid("rule %d: unsupported predicate %q (supported: %v)", i, spec.Type, predicate.SupportedTypes())
			}
		}
	}
	if m.Threshold < 0 || m.Threshold > 1 {
		return invalid("threshold must be in [0, 1], got %v", m.Threshold)
	}
	if p := m.Training.BlockedProportion; p != nil && (*p < 0 || *p > 1) {
		return invalid("training.blocked_proportion must be in [0, 1], got %v", *p)
	}
	if r := m.Training.Recall; r <= 0 || r > 1 {
		return invalid("training.recall must be in (0, 1], got %v", r)
	}
	if c.Store.Type != StoreMemory && c.Store.Type != StoreRedis {
		return invalid("unsupported store %q (supported: [%s %s])", c.Store.Type, StoreMemory, StoreRedis)
	}
	return nil
}
