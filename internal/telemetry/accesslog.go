package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/sirupsen/logrus"
)

// accessTimeLayout 是访问日志行首的时间格式（微秒精度，无时区）。
const accessTimeLayout = "2006-01-02T15:04:05.000000"

// cloudTraceKey 是 Cloud Logging 用于关联请求追踪的保留字段名。
const cloudTraceKey = "logging.googleapis.com/trace"

// AccessLogger 为每个请求输出一行访问日志。
// 日志在响应状态确定之后同步输出，不做缓冲。
type AccessLogger struct {
	logger    *logrus.Logger
	cloud     bool
	projectID string
}

// NewAccessLogger 创建访问日志记录器。
// logger 通常是 Loggers.Out；cloud 格式下每条日志附带 httpRequest 结构化字段。
func NewAccessLogger(logger *logrus.Logger, settings config.LoggingSettings) *AccessLogger {
	return &AccessLogger{
		logger:    logger,
		cloud:     settings.Format == config.LogFormatCloud,
		projectID: settings.ProjectID,
	}
}

// Log 输出一条访问日志。
// 文本格式示例：
//
//	2026-01-02T15:04:05.000123      215µs GET     [200] /
func (a *AccessLogger) Log(ctx context.Context, inv *domain.Invocation) {
	entry := a.logger.WithContext(ctx)
	if a.cloud {
		fields := logrus.Fields{
			"httpRequest": map[string]string{
				"requestMethod": inv.Method,
				"requestUrl":    inv.Path,
				"status":        strconv.Itoa(inv.StatusCode),
				"responseSize":  strconv.Itoa(inv.BytesWritten),
				"userAgent":     inv.UserAgent,
				"remoteIp":      inv.RemoteAddr,
				"latency":       fmt.Sprintf("%.9fs", inv.Duration.Seconds()),
			},
			"execution_id": inv.ExecutionID,
		}
		if trace := CloudTrace(a.projectID, inv.TraceContext); trace != "" {
			fields[cloudTraceKey] = trace
		}
		entry = entry.WithFields(fields)
	}
	entry.Info(FormatAccessLine(inv))
}

// FormatAccessLine 生成访问日志文本。
// 行尾固定为 "<方法左对齐补齐到 7 列> [<状态码>] <URI>"，例如 "GET     [200] /"。
func FormatAccessLine(inv *domain.Invocation) string {
	return fmt.Sprintf("%s %12s %-7s [%d] %s",
		inv.StartedAt.Format(accessTimeLayout),
		inv.Duration.String(),
		inv.Method,
		inv.StatusCode,
		inv.Path,
	)
}

// CloudTrace 根据 X-Cloud-Trace-Context 请求头生成 Cloud Logging trace 字段值。
// 请求头格式为 "TRACE_ID/SPAN_ID;o=TRACE_TRUE"，项目 ID 或 Trace ID 缺失时返回空字符串。
func CloudTrace(projectID, header string) string {
	if projectID == "" || header == "" {
		return ""
	}
	traceID, _, _ := strings.Cut(header, "/")
	traceID, _, _ = strings.Cut(traceID, ";")
	if traceID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", projectID, traceID)
}

// CloudTraceFields 返回用于错误日志的 trace 字段（cloud 格式下）。
func (a *AccessLogger) CloudTraceFields(header string) logrus.Fields {
	if !a.cloud {
		return logrus.Fields{}
	}
	if trace := CloudTrace(a.projectID, header); trace != "" {
		return logrus.Fields{cloudTraceKey: trace}
	}
	return logrus.Fields{}
}
