// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义函数调用相关指标，便于在路由中间件中复用并保持标签一致。
package metrics

import (
	"net/http"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装函数运行时指标集合。
// 所有字段均为 Prometheus 指标类型，通过辅助方法更新指标值。
//
// 指标分类:
//   - 调用指标: 跟踪函数调用的数量、耗时和并发
//   - 运行时指标: Go 运行时与进程信息
type Metrics struct {
	registry *prometheus.Registry

	// InvocationsTotal 函数调用总次数计数器
	// 标签: target, signature_type, status (2xx/4xx/5xx)
	InvocationsTotal *prometheus.CounterVec

	// InvocationDuration 函数调用耗时直方图（单位：毫秒）
	// 标签: target, signature_type
	// 桶边界: 1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000 ms
	InvocationDuration *prometheus.HistogramVec

	// InvocationErrors 返回 5xx 的调用次数
	// 标签: target, signature_type
	InvocationErrors *prometheus.CounterVec

	// InFlight 正在处理中的请求数
	InFlight prometheus.Gauge
}

// NewMetrics 在独立的 Registry 上创建并注册一组 Prometheus 指标。
// namespace 用于作为所有指标名前缀，便于在同一 Prometheus 中区分不同应用。
// 使用独立 Registry 而非全局默认 Registry，同一进程内可重复创建（例如测试）。
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of function invocations",
			},
			[]string{"target", "signature_type", "status"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_ms",
				Help:      "Function invocation duration in milliseconds",
				Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"target", "signature_type"},
		),
		InvocationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_errors_total",
				Help:      "Total number of invocations answered with a server error",
			},
			[]string{"target", "signature_type"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_requests",
				Help:      "Number of requests currently being handled",
			},
		),
	}
}

// ObserveInvocation 记录一次已完成调用的统计信息。
func (m *Metrics) ObserveInvocation(inv *domain.Invocation) {
	kind := inv.SignatureType.String()
	m.InvocationsTotal.WithLabelValues(inv.Target, kind, inv.StatusClass()).Inc()
	m.InvocationDuration.WithLabelValues(inv.Target, kind).
		Observe(float64(inv.Duration.Microseconds()) / 1000)
	if inv.Failed() {
		m.InvocationErrors.WithLabelValues(inv.Target, kind).Inc()
	}
}

// TrackInFlight 增加并发计数，返回的函数在请求结束时调用。
func (m *Metrics) TrackInFlight() func() {
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// Handler 返回暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
