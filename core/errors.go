package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message），可选包装底层错误（Err）
//   - 支持错误检查函数（IsXXX），包装后（fmt.Errorf("...: %w")）仍可识别
//
// 使用场景：
//   - 数据校验：SCHEMA, EMPTY_INPUT
//   - 分块：PREDICATE_NOT_INDEXED
//   - 配置文件：INCOMPATIBLE_SETTINGS
//   - 链接约束：INVALID_CONSTRAINT
//   - 训练：EMPTY_TRAINING, NOT_INITIALIZED
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "SCHEMA", "NOT_FOUND"）
	Message string // 错误消息
	Module  string // 模块名称（如 "blocking", "matcher", "store"）
	Err     error  // 底层错误，可为 nil
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is 按 Module + Code 比较，使 errors.Is(err, ErrPredicateNotIndexed) 对同类错误成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Module == "" || e.Module == t.Module)
}

// IsDomainError 检查错误链中是否包含 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装底层错误的领域错误
func WrapDomainError(module, code string, err error, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 实体解析错误代码
	ErrorCodeSchema               = "SCHEMA"                // 记录缺少数据模型要求的字段
	ErrorCodePredicateNotIndexed  = "PREDICATE_NOT_INDEXED" // 索引谓词在建索引前被使用
	ErrorCodeIncompatibleSettings = "INCOMPATIBLE_SETTINGS" // 配置文件版本/结构不兼容
	ErrorCodeEmptyInput           = "EMPTY_INPUT"           // 输入数据集为空
	ErrorCodeInvalidConstraint    = "INVALID_CONSTRAINT"    // 未知的链接约束
	ErrorCodeEmptyTraining        = "EMPTY_TRAINING"        // 没有可用的标注数据
	ErrorCodeNotInitialized       = "NOT_INITIALIZED"       // 主动学习未准备样本
)

// 模块名称常量
const (
	ModuleStore      = "store"      // 存储模块
	ModuleFeature    = "feature"    // 数据模型模块
	ModulePredicate  = "predicate"  // 谓词模块
	ModuleBlocking   = "blocking"   // 分块模块
	ModuleScore      = "score"      // 打分模块
	ModuleCluster    = "cluster"    // 聚类模块
	ModuleLabeler    = "labeler"    // 主动学习模块
	ModuleSerializer = "serializer" // 序列化模块
	ModuleMatcher    = "matcher"    // 编排模块
	ModuleModel      = "model"      // 分类器模块
)

// 哨兵错误，配合 errors.Is 使用（按 Code 匹配，忽略 Module）
var (
	ErrSchema               = &DomainError{Code: ErrorCodeSchema, Message: "record does not match data model"}
	ErrPredicateNotIndexed  = &DomainError{Code: ErrorCodePredicateNotIndexed, Message: "predicate requires an index that has not been built"}
	ErrIncompatibleSettings = &DomainError{Code: ErrorCodeIncompatibleSettings, Message: "settings artifact is incompatible"}
	ErrEmptyInput           = &DomainError{Code: ErrorCodeEmptyInput, Message: "input is empty"}
	ErrInvalidConstraint    = &DomainError{Code: ErrorCodeInvalidConstraint, Message: "constraint must be one-to-one, many-to-one or many-to-many"}
	ErrEmptyTraining        = &DomainError{Code: ErrorCodeEmptyTraining, Message: "no labelled matches to learn from"}
	ErrNotInitialized       = &DomainError{Code: ErrorCodeNotInitialized, Message: "training sample has not been prepared"}
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// 通用错误检查函数

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsSchemaError 检查错误是否为 SCHEMA
func IsSchemaError(err error) bool { return hasCode(err, ErrorCodeSchema) }

// IsPredicateNotIndexed 检查错误是否为 PREDICATE_NOT_INDEXED
func IsPredicateNotIndexed(err error) bool { return hasCode(err, ErrorCodePredicateNotIndexed) }

// IsIncompatibleSettings 检查错误是否为 INCOMPATIBLE_SETTINGS
func IsIncompatibleSettings(err error) bool { return hasCode(err, ErrorCodeIncompatibleSettings) }

// IsEmptyInput 检查错误是否为 EMPTY_INPUT
func IsEmptyInput(err error) bool { return hasCode(err, ErrorCodeEmptyInput) }

// IsInvalidConstraint 检查错误是否为 INVALID_CONSTRAINT
func IsInvalidConstraint(err error) bool { return hasCode(err, ErrorCodeInvalidConstraint) }

// IsEmptyTraining 检查错误是否为 EMPTY_TRAINING
func IsEmptyTraining(err error) bool { return hasCode(err, ErrorCodeEmptyTraining) }

// IsNotInitialized 检查错误是否为 NOT_INITIALIZED
func IsNotInitialized(err error) bool { return hasCode(err, ErrorCodeNotInitialized) }

// NewSchemaError 报告记录缺少字段或字段类型不符。
func NewSchemaError(id RecordID, field, reason string) *DomainError {
	return NewDomainError(ModuleFeature, ErrorCodeSchema,
		fmt.Sprintf("record %q: field %q %s", id, field, reason))
}

// NewPredicateNotIndexedError 报告索引谓词在 Index 之前被调用。
func NewPredicateNotIndexedError(predicate string) *DomainError {
	return NewDomainError(ModulePredicate, ErrorCodePredicateNotIndexed,
		fmt.Sprintf("predicate %s: index has not been built, call Index first", predicate))
}

// NewIncompatibleSettingsError 报告配置文件无法被当前版本读取。
func NewIncompatibleSettingsError(err error, format string, args ...any) *DomainError {
	return WrapDomainError(ModuleSerializer, ErrorCodeIncompatibleSettings, err, format, args...)
}
