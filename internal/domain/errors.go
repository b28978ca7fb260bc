// Package domain 定义了函数框架的核心领域模型。
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// 领域错误定义
// 这些错误用于在注册表、分发器等模块之间传递与函数相关的错误信息。

var (
	// ErrInvalidFunctionName 表示函数名称无效（为空或包含空白字符）
	ErrInvalidFunctionName = errors.New("invalid function name")
	// ErrInvalidSignatureType 表示签名类型不受支持
	ErrInvalidSignatureType = errors.New("invalid signature type")
	// ErrMissingImplementation 表示函数条目缺少与签名类型对应的实现
	ErrMissingImplementation = errors.New("function implementation is nil")
	// ErrDuplicateFunction 表示同名函数被重复注册
	ErrDuplicateFunction = errors.New("function already registered")
)

// HTTPError 是携带 HTTP 状态码的错误。
// 用户函数返回该错误时，框架使用其状态码和消息作为响应，进程继续服务。
type HTTPError struct {
	// Status 是响应状态码，应为 4xx 或 5xx
	Status int
	// Message 是写入响应体的纯文本消息
	Message string
	// Err 是底层错误（可选），仅用于日志
	Err error
}

// NewHTTPError 创建一个 HTTPError。
// message 为空时使用状态码对应的标准文本。
func NewHTTPError(status int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HTTPError{Status: status, Message: message}
}

// BadRequest 创建状态码为 400 的 HTTPError。
func BadRequest(format string, args ...any) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Error 实现 error 接口。
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// Unwrap 返回底层错误。
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// WithCause 附加底层错误并返回自身。
func (e *HTTPError) WithCause(err error) *HTTPError {
	e.Err = err
	return e
}

// AsHTTPError 从错误链中提取 HTTPError。
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
