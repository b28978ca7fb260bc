// Package api 提供函数框架的 HTTP 分发层。
// 该文件负责配置HTTP路由器和中间件，将所有请求映射到已解析的用户函数。
package api

import (
	"errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/events"
	"github.com/oriys/nimbus-functions/internal/metrics"
	"github.com/oriys/nimbus-functions/internal/telemetry"
)

// ReservedPaths 是没有注册处理器的常见静态资源路径，直接以 404 应答。
var ReservedPaths = []string{"/robots.txt", "/favicon.ico"}

// RouterConfig 路由器配置选项
type RouterConfig struct {
	// Entry 已解析的函数条目
	Entry domain.FunctionEntry
	// Loggers 日志记录器
	Loggers *telemetry.Loggers
	// AccessLog 访问日志记录器
	AccessLog *telemetry.AccessLogger
	// Metrics 调用指标（可选）
	Metrics *metrics.Metrics
	// Publisher 调用事件发布器（可选）
	Publisher events.Publisher
	// Accepting 报告进程是否仍在接收请求（可选，默认始终接收）
	Accepting func() bool
	// TracingService 非空时启用 OpenTelemetry HTTP 追踪，值为服务名称
	TracingService string
}

// NewRouter 创建并配置HTTP路由器。
//
// 中间件按照添加顺序执行，形成洋葱模型：
//
//	追踪（可选） → RealIP → 调用记录（访问日志/指标/事件） → 接收闸门 → 执行 ID → 路由
//
// 路由结构：
//
//	/robots.txt   - 404 Not found.
//	/favicon.ico  - 404 Not found.
//	/*            - 用户函数（任意方法）
func NewRouter(cfg *RouterConfig) (*chi.Mux, error) {
	if cfg.Loggers == nil || cfg.AccessLog == nil {
		return nil, errors.New("router requires loggers and access log")
	}
	invoker, err := NewInvoker(cfg.Entry)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// 遥测中间件：记录HTTP请求的追踪信息，需位于最外层以便日志关联 Span
	if cfg.TracingService != "" {
		r.Use(telemetry.HTTPMiddleware(cfg.TracingService, cfg.Entry.Name))
	}

	// RealIP中间件：从X-Forwarded-For等头部获取真实客户端IP
	r.Use(middleware.RealIP)

	obs := &observer{
		target:    cfg.Entry.Name,
		kind:      invoker.SignatureType(),
		accessLog: cfg.AccessLog,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		logger:    cfg.Loggers.Err,
	}
	r.Use(obs.middleware)

	if cfg.Accepting != nil {
		r.Use(gate(cfg.Accepting))
	}

	r.Use(executionID)

	for _, path := range ReservedPaths {
		r.HandleFunc(path, NotFound)
	}

	dispatcher := NewDispatcher(cfg.Entry.Name, invoker, cfg.Loggers.Err, cfg.AccessLog)
	r.Handle("/", dispatcher)
	r.Handle("/*", dispatcher)

	// 未匹配的方法同样交给函数处理
	r.MethodNotAllowed(dispatcher.ServeHTTP)
	r.NotFound(dispatcher.ServeHTTP)

	return r, nil
}
