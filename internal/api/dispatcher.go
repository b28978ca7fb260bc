package api

import (
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// notFoundBody 是保留静态资源路径的 404 响应体。
const notFoundBody = "Not found."

// Dispatcher 将请求交给已解析的函数，并把函数错误转换为 HTTP 错误响应。
// 函数错误和 panic 只影响当前请求，进程继续服务。
type Dispatcher struct {
	target    string
	invoker   Invoker
	logger    *logrus.Logger
	accessLog *telemetry.AccessLogger
}

// NewDispatcher 创建分发器。
// logger 用于记录请求错误（通常是 Loggers.Err），accessLog 仅用于获取 cloud 格式下的 trace 字段。
func NewDispatcher(target string, invoker Invoker, logger *logrus.Logger, accessLog *telemetry.AccessLogger) *Dispatcher {
	return &Dispatcher{
		target:    target,
		invoker:   invoker,
		logger:    logger,
		accessLog: accessLog,
	}
}

// ServeHTTP 实现 http.Handler 接口。
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ww, ok := w.(middleware.WrapResponseWriter)
	if !ok {
		ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	}

	defer func() {
		if rec := recover(); rec != nil {
			// http.ErrAbortHandler 是 net/http 约定的中止信号，继续向上传递
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			d.logger.WithContext(r.Context()).
				WithFields(d.fields(r)).
				WithField("stack", string(debug.Stack())).
				Errorf("Function panicked: %v", rec)
			d.handleError(ww, r, fmt.Errorf("function panicked: %v", rec))
		}
	}()

	if err := d.invoker.Invoke(ww, r); err != nil {
		d.handleError(ww, r, err)
	}
}

// handleError 记录错误并写入错误响应。
// 如果函数已经写出了响应头，只记录日志，不再改写响应。
func (d *Dispatcher) handleError(ww middleware.WrapResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	if httpErr, ok := domain.AsHTTPError(err); ok {
		status, message = httpErr.Status, httpErr.Message
	}

	telemetry.RecordError(r.Context(), err)
	entry := d.logger.WithContext(r.Context()).WithFields(d.fields(r)).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Function invocation failed")
	} else {
		entry.Warn("Function invocation rejected")
	}

	if ww.Status() != 0 {
		return
	}
	writeText(ww, status, message)
}

// fields 返回错误日志的公共字段。
func (d *Dispatcher) fields(r *http.Request) logrus.Fields {
	fields := logrus.Fields{
		"target":       d.target,
		"execution_id": ExecutionIDFromContext(r.Context()),
		"path":         r.URL.Path,
	}
	if traceID := telemetry.TraceIDFromContext(r.Context()); traceID != "" {
		fields["trace_id"] = traceID
	}
	if d.accessLog != nil {
		for k, v := range d.accessLog.CloudTraceFields(r.Header.Get(cloudTraceHeader)) {
			fields[k] = v
		}
	}
	return fields
}

// NotFound 处理保留静态资源路径（如 /robots.txt、/favicon.ico）。
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusNotFound, notFoundBody)
}

// writeText 写入纯文本响应（不追加换行）。
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
