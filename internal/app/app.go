// Package app 组装函数服务进程：解析命令行与环境变量、解析目标函数，
// 构建日志、追踪、指标和事件组件，然后交给生命周期管理器运行。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/oriys/nimbus-functions/internal/api"
	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/events"
	"github.com/oriys/nimbus-functions/internal/lifecycle"
	"github.com/oriys/nimbus-functions/internal/metrics"
	"github.com/oriys/nimbus-functions/internal/registry"
	"github.com/oriys/nimbus-functions/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// 进程退出码
const (
	// ExitOK 正常退出（包括收到 SIGINT/SIGTERM 后的关闭）
	ExitOK = 0
	// ExitFault 运行期故障（端口绑定失败、服务器故障等）
	ExitFault = 1
	// ExitUsage 命令行或环境变量配置错误
	ExitUsage = 64
)

// App 是函数服务进程。
type App struct {
	registry *registry.Registry
	stdout   io.Writer
	stderr   io.Writer

	signals  <-chan os.Signal
	listener net.Listener
}

// Option 是 App 的可选配置。
type Option func(*App)

// WithOutput 设置标准输出和标准错误的写入目标。
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithSignals 使用给定的信号通道代替进程信号。
func WithSignals(ch <-chan os.Signal) Option {
	return func(a *App) { a.signals = ch }
}

// WithListener 使用已绑定的监听器代替按端口监听。
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// New 创建 App。
func New(reg *registry.Registry, opts ...Option) *App {
	a := &App{
		registry: reg,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run 解析参数并运行服务，返回进程退出码。
//
// 配置错误输出到标准错误并返回 ExitUsage；错误来自命令行选项时追加用法说明，
// 来自环境变量时只输出错误消息。
func (a *App) Run(ctx context.Context, args []string) int {
	cmd := a.Command()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		fmt.Fprintln(a.stderr, cfgErr.Error())
		if cfgErr.ShowUsage() {
			fmt.Fprint(a.stderr, cmd.UsageString())
		}
		return ExitUsage
	}

	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return ExitFault
}

// Command 返回服务进程的 cobra 命令。
func (a *App) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve a function over HTTP",
		Long: `server 在本地 HTTP 端口上运行一个已注册的函数。

每个选项按以下优先级取值：命令行选项 > 环境变量 > 默认值。

使用示例:
  # 使用默认函数，监听 8080 端口
  server

  # 通过环境变量选择函数
  FUNCTION_TARGET=echo PORT=9000 server

  # 运行 cloudevent 函数
  server --target event --signature-type cloudevent`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return config.UnexpectedArgument(args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewResolver(cmd.Flags()).Resolve()
			if err != nil {
				return err
			}
			entry, err := a.registry.ResolveConfig(cfg)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), cfg, entry)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	config.RegisterFlags(cmd.Flags())
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return config.FlagError(err)
	})
	return cmd
}

// serve 构建运行期组件并阻塞直到进程关闭。
func (a *App) serve(ctx context.Context, cfg *config.Config, entry domain.FunctionEntry) error {
	settings := cfg.Settings
	loggers := telemetry.NewLoggers(a.stdout, a.stderr, settings.Logging)
	configureStandardLogger(loggers.Err)
	loggers.Err.WithFields(logrus.Fields{
		"target":         entry.Name,
		"signature_type": entry.Kind,
		"registered":     a.registry.Names(),
	}).Debug("Function resolved")

	tel, err := telemetry.New(ctx, settings.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tel.IsEnabled() {
		loggers.AddHook(telemetry.NewLogrusHook())
		logrus.AddHook(telemetry.NewLogrusHook())
	}

	opts := []lifecycle.Option{lifecycle.WithShutdownHook(tel.Shutdown)}
	if a.signals != nil {
		opts = append(opts, lifecycle.WithSignals(a.signals))
	}
	if a.listener != nil {
		opts = append(opts, lifecycle.WithListener(a.listener))
	}

	var m *metrics.Metrics
	if settings.Metrics.Enabled && settings.Metrics.Port > 0 {
		if settings.Metrics.Port == cfg.Port {
			// 函数端口上的所有路径都属于函数本身
			loggers.Err.WithField("port", cfg.Port).Warn("Metrics port equals function port, metrics disabled")
		} else {
			m = metrics.NewMetrics(settings.Metrics.Namespace)
			opts = append(opts, lifecycle.WithMetrics(fmt.Sprintf(":%d", settings.Metrics.Port), m.Handler()))
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if settings.Events.NATSURL != "" {
		bus, err := events.NewEventBus(settings.Events, settings.Telemetry.ServiceName, loggers.Err)
		if err != nil {
			return fmt.Errorf("failed to initialize invocation events: %w", err)
		}
		publisher = bus
	}
	opts = append(opts, lifecycle.WithShutdownHook(func(context.Context) error {
		return publisher.Close()
	}))

	srv := lifecycle.New(cfg, loggers, opts...)

	routerCfg := &api.RouterConfig{
		Entry:     entry,
		Loggers:   loggers,
		AccessLog: telemetry.NewAccessLogger(loggers.Out, settings.Logging),
		Metrics:   m,
		Publisher: publisher,
		Accepting: srv.Accepting,
	}
	if tel.IsEnabled() {
		routerCfg.TracingService = tel.ServiceName()
	}
	router, err := api.NewRouter(routerCfg)
	if err != nil {
		return err
	}

	return srv.Run(ctx, router)
}

// configureStandardLogger 让用户函数通过 logrus 包级函数输出的日志与框架错误日志保持一致。
func configureStandardLogger(l *logrus.Logger) {
	std := logrus.StandardLogger()
	std.SetOutput(l.Out)
	std.SetFormatter(l.Formatter)
	std.SetLevel(l.GetLevel())
}
