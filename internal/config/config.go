// Package config 提供了函数框架的配置管理功能。
// 核心配置（端口、目标函数、签名类型）来自命令行选项和环境变量，优先级为
// 命令行选项 > 环境变量 > 内置默认值；日志、指标、遥测、事件等运行设置
// 可从 YAML 设置文件加载，并支持通过环境变量覆盖。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/nimbus-functions/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config 是进程唯一的已验证配置。
// 在启动阶段构建一次，之后不可变，以参数形式注入各组件。
type Config struct {
	// Port 监听端口，取值范围 1-65535
	Port int
	// Target 目标函数名称
	Target string
	// SignatureType 目标函数的调用约定
	SignatureType domain.SignatureType
	// Settings 运行设置
	Settings *Settings
}

// Addr 返回 http.Server 使用的监听地址，如 ":8080"。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Settings 是运行设置的主结构体，通过 YAML 标签与设置文件映射。
type Settings struct {
	// Server 服务器超时设置
	Server ServerSettings `yaml:"server"`
	// Logging 日志设置
	Logging LoggingSettings `yaml:"logging"`
	// Metrics Prometheus 指标设置
	Metrics MetricsSettings `yaml:"metrics"`
	// Telemetry 分布式追踪设置
	Telemetry TelemetrySettings `yaml:"telemetry"`
	// Events 调用事件发布设置
	Events EventsSettings `yaml:"events"`
}

// ServerSettings 服务器设置结构体。
type ServerSettings struct {
	// ShutdownTimeout 优雅关闭时等待进行中请求的最长时间，超时后强制关闭连接
	// 默认值：10 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ReadTimeout 读取请求超时
	// 默认值：30 秒
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout 写入响应超时，0 表示不限制（函数执行时间由用户决定）
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// IdleTimeout 空闲连接超时
	// 默认值：120 秒
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// LoggingSettings 日志设置结构体。
type LoggingSettings struct {
	// Level 日志级别：debug、info、warn、error
	// 默认值：info
	Level string `yaml:"level"`
	// Format 日志格式：text 或 cloud（Cloud Logging 结构化 JSON）
	// 默认值：text；设置了 K_SERVICE 环境变量时为 cloud
	Format string `yaml:"format"`
	// ProjectID Google Cloud 项目 ID，用于生成 Cloud Logging 的 trace 字段
	ProjectID string `yaml:"project_id"`
}

// MetricsSettings 指标设置结构体。
type MetricsSettings struct {
	// Enabled 是否启用指标采集
	Enabled bool `yaml:"enabled"`
	// Port 指标服务端口；指标不会暴露在函数端口上
	// 默认值：9090
	Port int `yaml:"port"`
	// Namespace 指标名前缀
	// 默认值：nimbus_function
	Namespace string `yaml:"namespace"`
}

// TelemetrySettings 遥测设置结构体。
type TelemetrySettings struct {
	// Enabled 是否启用追踪
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP gRPC 端点，例如 "tempo:4317"
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称
	// 默认值：nimbus-function
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率，0.0 到 1.0
	// 默认值：0.1
	SampleRate float64 `yaml:"sample_rate"`
	// Environment 运行环境标识
	// 默认值：development
	Environment string `yaml:"environment"`
}

// EventsSettings 调用事件设置结构体。
type EventsSettings struct {
	// NATSURL NATS 服务器地址，为空时不发布事件
	NATSURL string `yaml:"nats_url"`
	// SubjectPrefix 事件 subject 前缀
	// 默认值：invocation
	SubjectPrefix string `yaml:"subject_prefix"`
}

// 日志格式常量
const (
	LogFormatText  = "text"
	LogFormatCloud = "cloud"
)

// DefaultSettings 返回应用了默认值和环境变量覆盖的设置。
func DefaultSettings() *Settings {
	s := &Settings{}
	s.applyDefaults()
	s.applyEnvOverrides()
	return s
}

// LoadSettings 从指定路径加载设置文件。
// 该函数执行以下步骤：
//  1. 读取设置文件内容
//  2. 解析 YAML 格式的设置
//  3. 应用默认值
//  4. 应用环境变量覆盖
//
// path 为空时跳过前两步。
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, err
		}
	}

	s.applyDefaults()
	s.applyEnvOverrides()
	return s, nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 环境变量优先于设置文件中的值。
func (s *Settings) applyEnvOverrides() {
	if v := readEnv("FUNCTION_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
	// 运行在 Cloud Run / Cloud Functions 上时输出 Cloud Logging 格式
	if readEnv("K_SERVICE") != "" {
		s.Logging.Format = LogFormatCloud
	}
	if v := readEnv("GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"); v != "" {
		s.Logging.ProjectID = v
	}
	if v := readEnv("FUNCTION_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.Server.ShutdownTimeout = d
		}
	}
	if v := readEnv("FUNCTION_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			s.Metrics.Enabled = true
			s.Metrics.Port = port
		}
	}
	if v := readEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		s.Telemetry.Enabled = true
		s.Telemetry.Endpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
	}
	if v := readEnv("OTEL_SERVICE_NAME", "K_SERVICE"); v != "" {
		s.Telemetry.ServiceName = v
	}
	if v := readEnv("FUNCTION_EVENTS_NATS_URL"); v != "" {
		s.Events.NATSURL = v
	}
}

// readEnv 按顺序读取环境变量，返回第一个非空值。
func readEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// applyDefaults 应用默认设置值。
func (s *Settings) applyDefaults() {
	// 优雅关闭超时默认为 10 秒
	if s.Server.ShutdownTimeout == 0 {
		s.Server.ShutdownTimeout = 10 * time.Second
	}
	// 读取请求超时默认为 30 秒
	if s.Server.ReadTimeout == 0 {
		s.Server.ReadTimeout = 30 * time.Second
	}
	// 空闲连接超时默认为 120 秒
	if s.Server.IdleTimeout == 0 {
		s.Server.IdleTimeout = 120 * time.Second
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Logging.Format == "" {
		s.Logging.Format = LogFormatText
	}
	// 指标端口默认为 9090
	if s.Metrics.Port == 0 {
		s.Metrics.Port = 9090
	}
	if s.Metrics.Namespace == "" {
		s.Metrics.Namespace = "nimbus_function"
	}
	if s.Telemetry.ServiceName == "" {
		s.Telemetry.ServiceName = "nimbus-function"
	}
	// OTLP 端点默认为 tempo:4317
	if s.Telemetry.Endpoint == "" {
		s.Telemetry.Endpoint = "tempo:4317"
	}
	// 采样率默认为 10%
	if s.Telemetry.SampleRate == 0 {
		s.Telemetry.SampleRate = 0.1
	}
	if s.Telemetry.Environment == "" {
		s.Telemetry.Environment = "development"
	}
	if s.Events.SubjectPrefix == "" {
		s.Events.SubjectPrefix = "invocation"
	}
}
