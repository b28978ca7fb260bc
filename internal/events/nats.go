// Package events 提供调用事件的发布。
// 当前实现基于 NATS JetStream，每次调用完成后异步发布一条 invocation 事件，供下游审计或统计消费。
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/sirupsen/logrus"
)

// StreamName 是承载调用事件的 JetStream Stream 名称。
const StreamName = "FUNCTION_INVOCATIONS"

// EventTypeCompleted 是调用完成事件的类型。
const EventTypeCompleted = "invocation.completed"

// Publisher 定义调用事件的发布能力。
type Publisher interface {
	PublishInvocation(ctx context.Context, inv *domain.Invocation) error
	Close() error
}

// Event 表示调用事件（JSON 格式）。
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventBus 封装 NATS/JetStream 连接与异步发布。
type EventBus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	prefix string
	source string
	logger *logrus.Logger
}

// streamSetupTimeout 限制启动时创建或更新 Stream 的总耗时。
const streamSetupTimeout = 3 * time.Second

// streamManager 是 ensureStream 需要的 JetStream 管理能力。
type streamManager interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// ensureStream 创建 Stream；同名 Stream 已存在但配置不同时更新其配置。
func ensureStream(js streamManager, cfg *nats.StreamConfig, opts ...nats.JSOpt) error {
	_, err := js.AddStream(cfg, opts...)
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		_, err = js.UpdateStream(cfg, opts...)
	}
	return err
}

// NewEventBus 连接 NATS 并初始化调用事件 Stream。
// source 写入每个事件的 Source 字段，通常为服务名称。
func NewEventBus(settings config.EventsSettings, source string, logger *logrus.Logger) (*EventBus, error) {
	prefix := strings.Trim(settings.SubjectPrefix, ".")
	if prefix == "" {
		return nil, errors.New("events subject prefix is required")
	}

	nc, err := nats.Connect(settings.NATSURL,
		nats.Name(source),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(
		nats.PublishAsyncMaxPending(256),
		nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
			logger.WithError(err).WithField("subject", msg.Subject).Warn("Invocation event publish failed")
		}),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{prefix + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	}
	ctx, cancel := context.WithTimeout(context.Background(), streamSetupTimeout)
	defer cancel()
	if err := ensureStream(js, cfg, nats.Context(ctx)); err != nil {
		// 服务器暂不可用时继续启动，发布失败由 PublishAsyncErrHandler 记录
		logger.WithError(err).WithField("stream", StreamName).Warn("Failed to ensure invocation stream")
	}

	return &EventBus{
		conn:   nc,
		js:     js,
		prefix: prefix,
		source: source,
		logger: logger,
	}, nil
}

// PublishInvocation 异步发布调用完成事件，不阻塞请求处理。
func (eb *EventBus) PublishInvocation(ctx context.Context, inv *domain.Invocation) error {
	event, err := NewInvocationEvent(eb.prefix, eb.source, inv)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := eb.js.PublishAsync(event.Subject, data, nats.MsgId(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.WithContext(ctx).WithFields(logrus.Fields{
		"subject":  event.Subject,
		"event_id": event.ID,
	}).Debug("Event published")
	return nil
}

// Close 等待未确认的异步发布（最多 5 秒）后关闭连接。
func (eb *EventBus) Close() error {
	select {
	case <-eb.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		eb.logger.WithField("pending", eb.js.PublishAsyncPending()).Warn("Closing with unacknowledged invocation events")
	}
	eb.conn.Close()
	return nil
}

// NewInvocationEvent 构造调用完成事件。
func NewInvocationEvent(prefix, source string, inv *domain.Invocation) (*Event, error) {
	data, err := json.Marshal(inv)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTypeCompleted,
		Source:    source,
		Subject:   InvocationSubject(prefix, inv.Target),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// InvocationSubject 返回调用完成事件的 subject：<prefix>.<target>.completed。
// target 中的 NATS 分隔符与通配符会被替换为下划线。
func InvocationSubject(prefix, target string) string {
	target = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, target)
	if target == "" {
		target = "_"
	}
	return fmt.Sprintf("%s.%s.completed", strings.Trim(prefix, "."), target)
}

// NopPublisher 丢弃所有事件，未配置 NATS 时使用。
type NopPublisher struct{}

// PublishInvocation 实现 Publisher 接口。
func (NopPublisher) PublishInvocation(context.Context, *domain.Invocation) error { return nil }

// Close 实现 Publisher 接口。
func (NopPublisher) Close() error { return nil }
