package dsl

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/rushteam/dedupekit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("record", cel.DynType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Program 是编译后的记录表达式，使用 CEL (Common Expression Language) 语法。
// 编译一次，可并发地对多条记录求值。
//
// 表达式只能访问变量 record（字段名 -> 字段值）：
//   - 分块键：record.name.substring(0, 3)
//   - 多个键：record.tags
//   - 条件：has(record.zip) && record.zip != ""
//
// 访问不存在的字段会报错，应使用 has(record.key) 判断。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式。
func Compile(expr string) (*Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (p *Program) String() string { return p.expr }

func (p *Program) eval(rec core.Record) (ref.Val, error) {
	out, _, err := p.prg.Eval(map[string]any{"record": map[string]any(rec)})
	if err != nil {
		return nil, fmt.Errorf("eval error: %w", err)
	}
	return out, nil
}

// EvalBool 求值并要求结果为布尔值。
func (p *Program) EvalBool(rec core.Record) (bool, error) {
	out, err := p.eval(rec)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return b, nil
}

var stringSliceType = reflect.TypeOf([]string{})

// EvalStrings 求值并把结果转为字符串列表：
// string 为单元素，list 逐个转换，null 为空。
func (p *Program) EvalStrings(rec core.Record) ([]string, error) {
	out, err := p.eval(rec)
	if err != nil {
		return nil, err
	}
	switch out.Type() {
	case types.NullType:
		return nil, nil
	case types.StringType:
		return []string{out.Value().(string)}, nil
	case types.ListType:
		native, err := out.ConvertToNative(stringSliceType)
		if err != nil {
			return nil, fmt.Errorf("expression list must contain strings: %w", err)
		}
		return native.([]string), nil
	default:
		return []string{fmt.Sprint(out.Value())}, nil
	}
}

// IsMissingKey 报告求值错误是否由访问不存在的字段引起
func IsMissingKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}
