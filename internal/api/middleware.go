package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/events"
	"github.com/oriys/nimbus-functions/internal/metrics"
	"github.com/oriys/nimbus-functions/internal/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// ExecutionIDHeader 是执行 ID 的请求头和响应头名称
	ExecutionIDHeader = "Function-Execution-Id"
	// cloudTraceHeader 是 Cloud Run 注入的追踪请求头
	cloudTraceHeader = "X-Cloud-Trace-Context"
	// executionAttribute 是记录执行 ID 的 Span 属性（OpenTelemetry FaaS 语义约定）
	executionAttribute = "faas.execution"
)

type ctxKeyExecutionID struct{}

// ExecutionIDFromContext 返回当前请求的执行 ID，不存在时返回空字符串。
func ExecutionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyExecutionID{}).(string); ok {
		return id
	}
	return ""
}

// executionID 为每个请求分配执行 ID 并写入响应头。
// 调用方已提供 Function-Execution-Id 时沿用该值。
func executionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(ExecutionIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(ExecutionIDHeader, id)
		telemetry.AddSpanAttributes(r.Context(), attribute.String(executionAttribute, id))
		ctx := context.WithValue(r.Context(), ctxKeyExecutionID{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// gate 在进程停止接收请求后以 503 拒绝仍在 keep-alive 连接上到达的请求。
func gate(accepting func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !accepting() {
				w.Header().Set("Connection", "close")
				writeText(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// observer 在响应确定之后为每个请求生成一条调用记录，
// 依次写入访问日志、更新指标并发布调用事件。
type observer struct {
	target    string
	kind      domain.SignatureType
	accessLog *telemetry.AccessLogger
	metrics   *metrics.Metrics
	publisher events.Publisher
	logger    *logrus.Logger
}

func (o *observer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if o.metrics != nil {
			defer o.metrics.TrackInFlight()()
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		completed := false
		// 处理器以 http.ErrAbortHandler 中止时同样记录一次
		defer func() {
			o.record(r, ww, start, completed)
		}()

		next.ServeHTTP(ww, r)
		completed = true
	})
}

// record 生成调用记录，写入访问日志、更新指标并发布调用事件。
func (o *observer) record(r *http.Request, ww middleware.WrapResponseWriter, start time.Time, completed bool) {
	status := ww.Status()
	switch {
	case status != 0:
	case completed:
		// 函数未写任何内容时 net/http 以 200 应答
		status = http.StatusOK
	default:
		// 中止且未写出响应头，连接被直接关闭
		status = http.StatusInternalServerError
	}

	inv := &domain.Invocation{
		ExecutionID:   ww.Header().Get(ExecutionIDHeader),
		Target:        o.target,
		SignatureType: o.kind,
		Method:        r.Method,
		Path:          r.URL.RequestURI(),
		StatusCode:    status,
		BytesWritten:  ww.BytesWritten(),
		UserAgent:     r.UserAgent(),
		RemoteAddr:    r.RemoteAddr,
		TraceContext:  r.Header.Get(cloudTraceHeader),
		StartedAt:     start,
		Duration:      time.Since(start),
	}

	o.accessLog.Log(r.Context(), inv)
	if o.metrics != nil {
		o.metrics.ObserveInvocation(inv)
	}
	if o.publisher != nil {
		if err := o.publisher.PublishInvocation(r.Context(), inv); err != nil {
			o.logger.WithContext(r.Context()).WithError(err).
				WithField("execution_id", inv.ExecutionID).
				Warn("Failed to publish invocation event")
		}
	}
}
