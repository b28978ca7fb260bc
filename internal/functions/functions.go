// Package functions 包含随框架一起发布的示例函数。
// cmd/server 将它们注册到注册表中，通过 FUNCTION_TARGET 选择其一。
package functions

import (
	"context"
	"io"
	"net/http"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/sirupsen/logrus"
)

// 示例函数名称
const (
	NameHello = "function"
	NameEcho  = "echo"
	NameEvent = "event"
)

// maxEchoBody 是 echo 函数接受的最大请求体（1 MiB）。
const maxEchoBody = 1 << 20

// All 返回全部示例函数条目。
// logger 供 cloudevent 示例输出收到的事件。
func All(logger *logrus.Logger) []domain.FunctionEntry {
	return []domain.FunctionEntry{
		domain.NewHTTPFunction(NameHello, Hello),
		domain.NewHTTPFunction(NameEcho, Echo),
		domain.NewCloudEventFunction(NameEvent, LogEvent(logger)),
	}
}

// Hello 对任何请求返回 "Hello, World!"。
func Hello(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := io.WriteString(w, "Hello, World!")
	return err
}

// Echo 原样返回请求体，请求体为空时返回 400。
func Echo(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEchoBody))
	if err != nil {
		return domain.NewHTTPError(http.StatusRequestEntityTooLarge, "").WithCause(err)
	}
	if len(body) == 0 {
		return domain.BadRequest("Request body is empty.")
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, err = w.Write(body)
	return err
}

// LogEvent 返回一个记录事件元数据的 cloudevent 函数。
func LogEvent(logger *logrus.Logger) domain.CloudEventFunction {
	return func(ctx context.Context, e event.Event) error {
		logger.WithContext(ctx).WithFields(logrus.Fields{
			"event_id":     e.ID(),
			"event_type":   e.Type(),
			"event_source": e.Source(),
			"data_bytes":   len(e.Data()),
		}).Info("Received CloudEvent")
		return nil
	}
}
