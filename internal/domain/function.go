// Package domain 定义了函数框架的核心领域模型。
// 包括函数签名类型、函数注册条目以及单次调用记录，
// 这些类型被配置解析、注册表、分发器和生命周期管理等模块共享。
package domain

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloudevents/sdk-go/v2/event"
)

// SignatureType 表示函数的调用约定。
// 框架在启动时根据签名类型选择一次调用方式，请求处理过程中不再按字符串分支。
type SignatureType string

// 签名类型常量定义
const (
	// SignatureHTTP 表示函数直接接收原始 HTTP 请求并完全控制响应
	SignatureHTTP SignatureType = "http"
	// SignatureCloudEvent 表示请求体会先被解析为 CloudEvent 再交给函数
	SignatureCloudEvent SignatureType = "cloudevent"
)

// SignatureTypes 返回所有受支持的签名类型，顺序固定。
func SignatureTypes() []SignatureType {
	return []SignatureType{SignatureHTTP, SignatureCloudEvent}
}

// ParseSignatureType 将字符串解析为签名类型。
// 匹配区分大小写，"HTTP" 不是合法值。
func ParseSignatureType(s string) (SignatureType, bool) {
	for _, t := range SignatureTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// AllowedSignatureTypes 返回以逗号分隔的合法签名类型列表，用于错误提示。
func AllowedSignatureTypes() string {
	names := make([]string, 0, len(SignatureTypes()))
	for _, t := range SignatureTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// String 实现 fmt.Stringer 接口。
func (t SignatureType) String() string {
	return string(t)
}

// HTTPFunction 是 http 签名的用户函数。
// 函数完全控制响应的状态码、响应头和响应体；
// 在写入任何内容之前返回的错误会被框架转换为 HTTP 错误响应。
type HTTPFunction func(w http.ResponseWriter, r *http.Request) error

// CloudEventFunction 是 cloudevent 签名的用户函数。
// 返回 nil 时框架以 200 空响应体应答。
type CloudEventFunction func(ctx context.Context, e event.Event) error

// FunctionEntry 表示注册表中的一个可调用函数。
// 注册表在进程启动时构建，之后只读。
type FunctionEntry struct {
	// Name 是函数名称，与 FUNCTION_TARGET 匹配
	Name string
	// Kind 是函数的签名类型
	Kind SignatureType
	// HTTP 是 http 签名的实现，仅当 Kind 为 SignatureHTTP 时有效
	HTTP HTTPFunction
	// CloudEvent 是 cloudevent 签名的实现，仅当 Kind 为 SignatureCloudEvent 时有效
	CloudEvent CloudEventFunction
}

// NewHTTPFunction 创建 http 签名的函数条目。
func NewHTTPFunction(name string, fn HTTPFunction) FunctionEntry {
	return FunctionEntry{Name: name, Kind: SignatureHTTP, HTTP: fn}
}

// NewCloudEventFunction 创建 cloudevent 签名的函数条目。
func NewCloudEventFunction(name string, fn CloudEventFunction) FunctionEntry {
	return FunctionEntry{Name: name, Kind: SignatureCloudEvent, CloudEvent: fn}
}

// Validate 验证函数条目是否完整。
//
// 验证规则：
//   - 名称不能为空，且不能包含空白字符
//   - 签名类型必须合法
//   - 与签名类型对应的实现不能为空
func (e FunctionEntry) Validate() error {
	if e.Name == "" || strings.ContainsAny(e.Name, " \t\r\n") {
		return ErrInvalidFunctionName
	}
	switch e.Kind {
	case SignatureHTTP:
		if e.HTTP == nil {
			return ErrMissingImplementation
		}
	case SignatureCloudEvent:
		if e.CloudEvent == nil {
			return ErrMissingImplementation
		}
	default:
		return ErrInvalidSignatureType
	}
	return nil
}
