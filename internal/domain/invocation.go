// Package domain 定义了函数框架的核心领域模型。
package domain

import (
	"net/http"
	"time"
)

// Invocation 表示一次请求的调用记录。
// 记录在响应状态确定之后生成，只用于访问日志、指标和事件，不做持久化。
type Invocation struct {
	// ExecutionID 是本次执行的唯一标识，同时写入 Function-Execution-Id 响应头
	ExecutionID string `json:"execution_id"`
	// Target 是被调用函数的名称
	Target string `json:"target"`
	// SignatureType 是被调用函数的签名类型
	SignatureType SignatureType `json:"signature_type"`
	// Method 是请求方法
	Method string `json:"method"`
	// Path 是请求 URI（路径加查询字符串）
	Path string `json:"path"`
	// StatusCode 是最终的响应状态码
	StatusCode int `json:"status_code"`
	// BytesWritten 是响应体字节数
	BytesWritten int `json:"bytes_written"`
	// UserAgent 是请求的 User-Agent 头
	UserAgent string `json:"user_agent,omitempty"`
	// RemoteAddr 是客户端地址
	RemoteAddr string `json:"remote_addr,omitempty"`
	// TraceContext 是 X-Cloud-Trace-Context 请求头的原始值
	TraceContext string `json:"trace_context,omitempty"`
	// StartedAt 是请求开始处理的时间
	StartedAt time.Time `json:"started_at"`
	// Duration 是请求处理耗时
	Duration time.Duration `json:"duration"`
}

// Failed 报告本次调用是否以 5xx 结束。
func (i *Invocation) Failed() bool {
	return i.StatusCode >= http.StatusInternalServerError
}

// StatusClass 返回状态码类别，如 "2xx"、"4xx"，用作指标标签以控制基数。
func (i *Invocation) StatusClass() string {
	switch {
	case i.StatusCode >= 500:
		return "5xx"
	case i.StatusCode >= 400:
		return "4xx"
	case i.StatusCode >= 300:
		return "3xx"
	case i.StatusCode >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
