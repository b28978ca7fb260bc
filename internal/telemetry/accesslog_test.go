package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvocation() *domain.Invocation {
	return &domain.Invocation{
		ExecutionID:   "exec-1",
		Target:        "function",
		SignatureType: domain.SignatureHTTP,
		Method:        "GET",
		Path:          "/",
		StatusCode:    200,
		BytesWritten:  13,
		UserAgent:     "test",
		RemoteAddr:    "127.0.0.1",
		TraceContext:  "105445aa7843bc8bf206b12000100000/1;o=1",
		StartedAt:     time.Date(2026, 1, 2, 15, 4, 5, 123000, time.UTC),
		Duration:      215 * time.Microsecond,
	}
}

func TestFormatAccessLine(t *testing.T) {
	line := FormatAccessLine(sampleInvocation())
	assert.True(t, strings.HasPrefix(line, "2026-01-02T15:04:05.000123"))
	assert.True(t, strings.HasSuffix(line, "GET     [200] /"), line)

	inv := sampleInvocation()
	inv.Method = "OPTIONS"
	inv.StatusCode = 404
	inv.Path = "/robots.txt"
	assert.True(t, strings.HasSuffix(FormatAccessLine(inv), "OPTIONS [404] /robots.txt"))
}

func TestAccessLoggerText(t *testing.T) {
	var out, errOut bytes.Buffer
	loggers := NewLoggers(&out, &errOut, config.LoggingSettings{Level: "info", Format: config.LogFormatText})

	NewAccessLogger(loggers.Out, config.LoggingSettings{Format: config.LogFormatText}).
		Log(context.Background(), sampleInvocation())

	line := out.String()
	assert.True(t, strings.HasSuffix(line, "GET     [200] /\n"), line)
	assert.Equal(t, 1, strings.Count(line, "\n"))
	assert.Empty(t, errOut.String())
}

func TestAccessLoggerCloud(t *testing.T) {
	var out bytes.Buffer
	settings := config.LoggingSettings{Level: "info", Format: config.LogFormatCloud, ProjectID: "demo"}
	loggers := NewLoggers(&out, &out, settings)

	NewAccessLogger(loggers.Out, settings).Log(context.Background(), sampleInvocation())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
	assert.Equal(t, "INFO", payload["severity"])
	assert.Equal(t, "exec-1", payload["execution_id"])
	assert.Equal(t, "projects/demo/traces/105445aa7843bc8bf206b12000100000", payload[cloudTraceKey])
	assert.True(t, strings.HasSuffix(payload["message"].(string), "GET     [200] /"))

	req, ok := payload["httpRequest"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "GET", req["requestMethod"])
	assert.Equal(t, "200", req["status"])
}

func TestCloudTrace(t *testing.T) {
	tests := []struct {
		name      string
		projectID string
		header    string
		want      string
	}{
		{"完整请求头", "p", "abc/123;o=1", "projects/p/traces/abc"},
		{"仅 trace id", "p", "abc", "projects/p/traces/abc"},
		{"带选项无 span", "p", "abc;o=1", "projects/p/traces/abc"},
		{"缺少项目", "", "abc/1", ""},
		{"缺少请求头", "p", "", ""},
		{"空 trace id", "p", "/1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CloudTrace(tt.projectID, tt.header))
		})
	}
}

func TestCloudTraceFields(t *testing.T) {
	text := NewAccessLogger(nil, config.LoggingSettings{Format: config.LogFormatText, ProjectID: "p"})
	assert.Empty(t, text.CloudTraceFields("abc/1"))

	cloud := NewAccessLogger(nil, config.LoggingSettings{Format: config.LogFormatCloud, ProjectID: "p"})
	assert.Equal(t, "projects/p/traces/abc", cloud.CloudTraceFields("abc/1")[cloudTraceKey])
	assert.Empty(t, cloud.CloudTraceFields(""))
}
