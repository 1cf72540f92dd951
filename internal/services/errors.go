package services

import (
	"errors"
	"fmt"
)

// Kind 服务层错误类别
// Kind 本身实现 error，可以直接作为 errors.Is 的目标
type Kind string

const (
	KindInvalidInput           Kind = "invalid input"
	KindEmbeddingProvider      Kind = "embedding provider error"
	KindIndexPersist           Kind = "index persist error"
	KindIndexNotFound          Kind = "index not found"
	KindEmbeddingModelMismatch Kind = "embedding model mismatch"
	KindAnswerGeneration       Kind = "answer generation error"
	KindConfiguration          Kind = "configuration error"
	KindNotFound               Kind = "not found"
	KindInternal               Kind = "internal error"
)

// Error 实现error接口
func (k Kind) Error() string {
	return string(k)
}

// Error 带类别和操作名的服务层错误
type Error struct {
	Kind Kind   // 错误类别
	Op   string // 出错的操作，如 "retrieval.BuildIndex"
	Err  error  // 底层原因
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap 返回底层原因
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 与相同类别的 Kind 匹配
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// newError 创建服务层错误
func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// errorf 用格式化消息作为原因创建服务层错误
func errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf 返回错误的类别，非服务层错误视为内部错误
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
