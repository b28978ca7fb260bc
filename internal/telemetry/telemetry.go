package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/nimbus-functions/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Telemetry 封装了 OpenTelemetry 的追踪提供者。
// 未启用追踪时不持有追踪提供者。
type Telemetry struct {
	settings       config.TelemetrySettings
	tracerProvider *sdktrace.TracerProvider
}

// New 根据追踪设置创建 Telemetry 实例。
// 该函数执行以下操作：
//  1. 如果未启用追踪，直接返回，Span 操作均为空操作
//  2. 建立到 OTLP 接收器的 gRPC 连接（最长等待 10 秒）
//  3. 创建资源对象，包含服务信息和环境属性
//  4. 配置采样器和追踪提供者
//  5. 设置全局追踪提供者和上下文传播器
func New(ctx context.Context, settings config.TelemetrySettings) (*Telemetry, error) {
	if !settings.Enabled {
		return &Telemetry{settings: settings}, nil
	}

	if settings.SampleRate > 1 {
		settings.SampleRate = 1.0
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// 使用不安全凭据（同机或内网 collector 场景）和阻塞模式确保连接成功
	conn, err := grpc.DialContext(ctx, settings.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to %s: %w", settings.Endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(settings.ServiceName),
			attribute.String("environment", settings.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case settings.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case settings.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		// 基于 TraceID 的比率采样，确保同一追踪的所有 Span 采样决策一致
		sampler = sdktrace.TraceIDRatioBased(settings.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		settings:       settings,
		tracerProvider: tp,
	}, nil
}

// Shutdown 刷新所有待发送的追踪数据并释放资源。
// 应在进程退出前调用以确保数据不丢失。
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}
	return t.tracerProvider.Shutdown(ctx)
}

// IsEnabled 返回追踪是否已启用。
func (t *Telemetry) IsEnabled() bool {
	return t.settings.Enabled
}

// ServiceName 返回追踪使用的服务名称。
func (t *Telemetry) ServiceName() string {
	return t.settings.ServiceName
}

// TraceIDFromContext 从上下文中提取 Trace ID。
// 如果上下文中没有有效的 Span，返回空字符串。
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// RecordError 在当前 Span 上记录错误并将 Span 状态标记为错误。
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddSpanAttributes 向当前 Span 添加属性。
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
