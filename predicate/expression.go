package predicate

import (
	"fmt"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/conv"
	"github.com/rushteam/dedupekit/pkg/dsl"
)

// TypeExpression 是 CEL 表达式谓词的类型名
const TypeExpression = "expression"

func init() {
	Register(TypeExpression, func(_ string, params map[string]any) (core.Predicate, error) {
		return NewExpression(
			conv.ParamString(params, "name", ""),
			conv.ParamString(params, "expr", ""),
			conv.ParamString(params, "when", ""),
		)
	})
}

// Expression 是用 CEL 表达式计算分块键的谓词。
//
// 表达式返回 string 或 list(string)，null 表示无键；
// 可选的 When 是布尔表达式，为 false 时不产生键。
// 访问缺失字段视为无键，不报错。
//
// 示例：
//
//	p, _ := predicate.NewExpression("zip3", `record.zip.substring(0, 3)`, `has(record.zip) && size(record.zip) >= 3`)
type Expression struct {
	name string
	expr *dsl.Program
	when *dsl.Program
}

var (
	_ core.Predicate = (*Expression)(nil)
	_ Describer      = (*Expression)(nil)
)

// NewExpression 编译表达式；name 为空时使用表达式原文。
func NewExpression(name, expr, when string) (*Expression, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("expression predicate: %w", err)
	}
	p := &Expression{name: name, expr: prg}
	if when != "" {
		if p.when, err = dsl.Compile(when); err != nil {
			return nil, fmt.Errorf("expression predicate guard: %w", err)
		}
	}
	return p, nil
}

func (p *Expression) Name() string {
	if p.name != "" {
		return "expr(" + p.name + ")"
	}
	return "expr(" + p.expr.String() + ")"
}

func (p *Expression) Keys(rec core.Record) ([]string, error) {
	if p.when != nil {
		ok, err := p.when.EvalBool(rec)
		if dsl.IsMissingKey(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		if !ok {
			return nil, nil
		}
	}
	keys, err := p.expr.EvalStrings(rec)
	if dsl.IsMissingKey(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	return uniqueStrings(keys), nil
}

func (p *Expression) Spec() Spec {
	params := map[string]any{"expr": p.expr.String()}
	if p.name != "" {
		params["name"] = p.name
	}
	if p.when != nil {
		params["when"] = p.when.String()
	}
	return Spec{Type: TypeExpression, Params: params}
}
