package api

import (
	"fmt"
	"net/http"

	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/oriys/nimbus-functions/internal/domain"
)

// Invoker 按签名类型调用用户函数。
// 在启动时根据函数条目选择一次实现，请求处理过程中不再按签名类型分支。
type Invoker interface {
	// Invoke 调用函数；返回的错误由 Dispatcher 转换为 HTTP 错误响应
	Invoke(w http.ResponseWriter, r *http.Request) error
	// SignatureType 返回该调用方式对应的签名类型
	SignatureType() domain.SignatureType
}

// NewInvoker 根据函数条目创建对应的 Invoker。
func NewInvoker(entry domain.FunctionEntry) (Invoker, error) {
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("function %q: %w", entry.Name, err)
	}
	switch entry.Kind {
	case domain.SignatureCloudEvent:
		return &cloudEventInvoker{fn: entry.CloudEvent}, nil
	default:
		return &httpInvoker{fn: entry.HTTP}, nil
	}
}

// httpInvoker 将原始请求直接交给函数，由函数完全控制响应。
type httpInvoker struct {
	fn domain.HTTPFunction
}

func (i *httpInvoker) Invoke(w http.ResponseWriter, r *http.Request) error {
	return i.fn(w, r)
}

func (i *httpInvoker) SignatureType() domain.SignatureType {
	return domain.SignatureHTTP
}

// cloudEventInvoker 先将请求解析为 CloudEvent（binary 或 structured 模式），再调用函数。
type cloudEventInvoker struct {
	fn domain.CloudEventFunction
}

func (i *cloudEventInvoker) Invoke(w http.ResponseWriter, r *http.Request) error {
	e, err := cehttp.NewEventFromHTTPRequest(r)
	if err != nil {
		return domain.BadRequest("Failed to parse CloudEvent: %v", err).WithCause(err)
	}
	if err := e.Validate(); err != nil {
		return domain.BadRequest("Invalid CloudEvent: %v", err).WithCause(err)
	}

	if err := i.fn(r.Context(), *e); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (i *cloudEventInvoker) SignatureType() domain.SignatureType {
	return domain.SignatureCloudEvent
}
