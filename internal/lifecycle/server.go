// Package lifecycle 管理函数服务进程的生命周期：
// 绑定端口、输出就绪日志、响应 SIGINT/SIGTERM 并执行有限时长的优雅关闭。
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// defaultShutdownTimeout 在未配置关闭超时时使用。
const defaultShutdownTimeout = 10 * time.Second

// State 表示进程状态。
// 状态只会按 Starting → Listening → ShuttingDown → Terminated 单向推进。
type State int32

// 进程状态常量定义
const (
	StateStarting State = iota
	StateListening
	StateShuttingDown
	StateTerminated
)

// String 实现 fmt.Stringer 接口。
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ShutdownHook 在 HTTP 服务器关闭之后执行的清理函数（例如刷新追踪数据、关闭 NATS 连接）。
type ShutdownHook func(ctx context.Context) error

// Server 持有进程状态并驱动 HTTP 监听器。
// 状态只由 Server 自身修改，其他组件通过 Accepting 观察。
type Server struct {
	port     int
	settings config.ServerSettings
	loggers  *telemetry.Loggers

	listener net.Listener
	signals  <-chan os.Signal

	metricsAddr    string
	metricsHandler http.Handler

	hooks []ShutdownHook
	state atomic.Int32
}

// Option 是 Server 的可选配置。
type Option func(*Server)

// WithListener 使用已绑定的监听器代替按端口监听（测试中绑定随机端口）。
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.listener = ln }
}

// WithSignals 使用给定的信号通道代替 signal.Notify 安装的通道。
func WithSignals(ch <-chan os.Signal) Option {
	return func(s *Server) { s.signals = ch }
}

// WithMetrics 在独立端口上暴露 /metrics。
func WithMetrics(addr string, handler http.Handler) Option {
	return func(s *Server) {
		s.metricsAddr = addr
		s.metricsHandler = handler
	}
}

// WithShutdownHook 注册关闭时执行的清理函数，按注册顺序执行。
func WithShutdownHook(hook ShutdownHook) Option {
	return func(s *Server) { s.hooks = append(s.hooks, hook) }
}

// New 创建处于 Starting 状态的 Server。
func New(cfg *config.Config, loggers *telemetry.Loggers, opts ...Option) *Server {
	s := &Server{
		port:    cfg.Port,
		loggers: loggers,
	}
	if cfg.Settings != nil {
		s.settings = cfg.Settings.Server
	}
	if s.settings.ShutdownTimeout <= 0 {
		s.settings.ShutdownTimeout = defaultShutdownTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State 返回当前进程状态。
func (s *Server) State() State {
	return State(s.state.Load())
}

// Accepting 报告是否仍在接收新请求。
func (s *Server) Accepting() bool {
	return s.State() == StateListening
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
}

// Run 绑定端口并处理请求，直到收到 SIGINT/SIGTERM、ctx 被取消或服务器出现故障。
//
// 收到信号时输出 "Got signal <信号名> - closing"，ctx 取消时静默关闭；两种情况均返回 nil。
// 绑定失败或服务器故障返回错误，调用方应以非零状态退出。
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", s.port))
		if err != nil {
			s.setState(StateTerminated)
			return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
		}
	}

	signals := s.signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	// net/http 内部错误（如 TLS 握手失败）写入错误日志
	errWriter := s.loggers.Err.WriterLevel(logrus.WarnLevel)
	defer errWriter.Close()

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
		ErrorLog:     log.New(errWriter, "", 0),
	}

	metricsServer := s.startMetrics()

	serveErr := make(chan error, 1)
	s.setState(StateListening)
	s.loggers.Out.Infof("App listening on :%d", listenPort(ln, s.port))

	// 在后台协程中启动 HTTP 服务器
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var fault error
	select {
	case sig := <-signals:
		s.loggers.Out.Infof("Got signal %s - closing", SignalName(sig))
	case <-ctx.Done():
	case err := <-serveErr:
		fault = fmt.Errorf("server failed: %w", err)
	}

	s.setState(StateShuttingDown)
	s.shutdown(server, metricsServer)
	s.setState(StateTerminated)
	return fault
}

// shutdown 在超时时间内等待进行中的请求完成，超时后强制关闭连接，然后执行清理函数。
func (s *Server) shutdown(server, metricsServer *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.ShutdownTimeout)
	defer cancel()

	server.SetKeepAlivesEnabled(false)
	if err := server.Shutdown(ctx); err != nil {
		s.loggers.Err.WithError(err).Warn("Graceful shutdown did not finish, closing connections")
		server.Close()
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			metricsServer.Close()
		}
	}

	for _, hook := range s.hooks {
		if err := hook(ctx); err != nil {
			s.loggers.Err.WithError(err).Warn("Shutdown hook failed")
		}
	}
}

// startMetrics 在后台启动指标服务器。
// 指标端口不可用只记录错误，不影响函数服务。
func (s *Server) startMetrics() *http.Server {
	if s.metricsHandler == nil || s.metricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metricsHandler) // Prometheus 指标端点
	metricsServer := &http.Server{
		Addr:         s.metricsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		s.loggers.Err.WithField("addr", s.metricsAddr).Debug("Starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.loggers.Err.WithError(err).Error("Metrics server failed")
		}
	}()
	return metricsServer
}

// SignalName 返回信号的标准名称，如 "SIGINT"、"SIGTERM"。
func SignalName(sig os.Signal) string {
	if ss, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(ss); name != "" {
			return name
		}
	}
	return sig.String()
}

// listenPort 返回监听器实际绑定的端口，无法确定时返回配置的端口。
func listenPort(ln net.Listener, fallback int) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok && addr.Port != 0 {
		return addr.Port
	}
	return fallback
}
