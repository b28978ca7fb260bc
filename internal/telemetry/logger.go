// Package telemetry 提供日志、访问日志和 OpenTelemetry 分布式追踪功能的封装。
// 本文件负责构建进程使用的两个 Logrus 日志记录器，以及日志与追踪的集成：
// 通过 Logrus Hook 自动将追踪上下文（Trace ID、Span ID）注入到日志条目中。
package telemetry

import (
	"encoding/json"
	"io"
	"time"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Loggers 是进程使用的日志记录器集合。
type Loggers struct {
	// Out 写入标准输出，用于启动、关闭和访问日志等对外约定的输出行
	Out *logrus.Logger
	// Err 写入标准错误，用于请求错误和运行故障
	Err *logrus.Logger
}

// NewLoggers 根据日志设置创建日志记录器。
//
// text 格式下 Out 只输出消息本身，Err 使用 logrus.TextFormatter；
// cloud 格式下两者都输出 Cloud Logging 可识别的结构化 JSON。
func NewLoggers(stdout, stderr io.Writer, settings config.LoggingSettings) *Loggers {
	level, err := logrus.ParseLevel(settings.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	out := logrus.New()
	out.SetOutput(stdout)
	// 约定输出行固定为 Info 级别，不受日志级别设置影响
	out.SetLevel(logrus.InfoLevel)

	errLog := logrus.New()
	errLog.SetOutput(stderr)
	errLog.SetLevel(level)

	if settings.Format == config.LogFormatCloud {
		out.SetFormatter(&CloudFormatter{})
		errLog.SetFormatter(&CloudFormatter{})
	} else {
		out.SetFormatter(&LineFormatter{})
		errLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Loggers{Out: out, Err: errLog}
}

// AddHook 为两个日志记录器添加同一个钩子。
func (l *Loggers) AddHook(hook logrus.Hook) {
	l.Out.AddHook(hook)
	l.Err.AddHook(hook)
}

// LineFormatter 只输出日志消息本身，每条一行。
// 用于 "App listening on :8080" 等需要逐字匹配的输出行。
type LineFormatter struct{}

// Format 实现 logrus.Formatter 接口。
func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := make([]byte, 0, len(entry.Message)+1)
	b = append(b, entry.Message...)
	return append(b, '\n'), nil
}

// CloudFormatter 输出 Cloud Logging 结构化日志格式的 JSON。
// 使用 severity、message、timestamp 作为保留字段名，其余字段原样输出。
type CloudFormatter struct{}

// Format 实现 logrus.Formatter 接口。
func (f *CloudFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(logrus.Fields, len(entry.Data)+3)
	for k, v := range entry.Data {
		// error 类型默认会被序列化为 {}，这里转换为字符串
		if err, ok := v.(error); ok {
			data[k] = err.Error()
			continue
		}
		data[k] = v
	}
	data["severity"] = cloudSeverity(entry.Level)
	data["message"] = entry.Message
	data["timestamp"] = entry.Time.UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// cloudSeverity 将 logrus 日志级别映射为 Cloud Logging 的 severity。
func cloudSeverity(level logrus.Level) string {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.FatalLevel:
		return "CRITICAL"
	default:
		return "ALERT"
	}
}

// LogrusHook 是一个 Logrus 钩子，用于自动将追踪上下文添加到日志条目中。
// 当日志条目包含有效的追踪上下文时，会自动添加 trace_id、span_id 和
// trace_sampled 字段，实现日志与追踪数据的关联。
type LogrusHook struct{}

// NewLogrusHook 创建一个新的 LogrusHook 实例。
func NewLogrusHook() *LogrusHook {
	return &LogrusHook{}
}

// Levels 返回该钩子应该触发的日志级别列表。
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在日志条目生成时被调用，用于向日志添加追踪上下文信息。
// 只有通过 WithContext 关联了上下文的日志条目才会被处理。
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	ctx := entry.Context
	if ctx == nil {
		return nil
	}

	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return nil
	}

	entry.Data["trace_id"] = spanCtx.TraceID().String()
	entry.Data["span_id"] = spanCtx.SpanID().String()
	if spanCtx.IsSampled() {
		entry.Data["trace_sampled"] = true
	}
	return nil
}
