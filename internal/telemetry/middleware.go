package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware 返回一个 HTTP 中间件，用于为传入的 HTTP 请求自动创建追踪 Span。
// 该中间件会：
//   - 从请求头中提取追踪上下文（如果存在）
//   - 创建新的 Span 来追踪请求处理
//   - 将追踪上下文传递给下游处理器（访问日志和用户函数）
func HTTPMiddleware(serviceName, target string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(
					attribute.String("service.name", serviceName),
					attribute.String("faas.name", target),
				),
			),
			// Span 名称格式：HTTP 方法 + 路径（如 "GET /"）
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
