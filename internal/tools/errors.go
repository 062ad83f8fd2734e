package tools

import (
	"errors"
	"fmt"
)

// Kind 是分发失败的分类，同时实现 error，便于 errors.Is(err, tools.KindX)。
type Kind string

const (
	KindDeletionIntentRejected Kind = "deletion_intent_rejected"
	KindClassifierUnavailable  Kind = "classifier_unavailable"
	KindAmbiguousInstruction   Kind = "ambiguous_instruction"
	KindUnknownOperation       Kind = "unknown_operation"
	KindArgumentValidation     Kind = "argument_validation"
	KindSandboxViolation       Kind = "sandbox_violation"
	KindHandlerFailure         Kind = "handler_failure"
)

func (k Kind) Error() string { return string(k) }

// DispatchError 携带失败分类、操作名与可读原因。
type DispatchError struct {
	Kind      Kind
	Operation string
	Reason    string
	Err       error
}

// NewError 构造 DispatchError；reason 为空时使用底层错误文本。
func NewError(kind Kind, operation string, err error, reason string) *DispatchError {
	if reason == "" && err != nil {
		reason = err.Error()
	}
	return &DispatchError{Kind: kind, Operation: operation, Reason: reason, Err: err}
}

func Errorf(kind Kind, operation string, format string, args ...any) *DispatchError {
	return &DispatchError{Kind: kind, Operation: operation, Reason: fmt.Sprintf(format, args...)}
}

func (e *DispatchError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Operation, e.Message())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message())
}

// Message 返回面向用户的说明。
func (e *DispatchError) Message() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// AsDispatchError 从错误链中取出 *DispatchError。
func AsDispatchError(err error) (*DispatchError, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf 返回错误的分类；非 DispatchError 归为 handler_failure。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if de, ok := AsDispatchError(err); ok {
		return de.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return KindHandlerFailure
}
