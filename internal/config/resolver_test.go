package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清除会影响解析结果的环境变量，测试结束后自动恢复。
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		EnvPort, EnvTarget, EnvSignatureType, EnvConfig,
		"K_SERVICE", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "FUNCTION_LOG_LEVEL", "FUNCTION_SHUTDOWN_TIMEOUT",
		"FUNCTION_METRICS_PORT", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "FUNCTION_EVENTS_NATS_URL",
	}
	for _, key := range keys {
		if old, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, old) })
		}
	}
}

// parseFlags 注册框架选项并解析给定参数。
func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func resolve(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return NewResolver(parseFlags(t, args...)).Resolve()
}

// requireConfigError 断言错误为指定类别和来源的 *Error。
func requireConfigError(t *testing.T, err error, kind ErrorKind, src Source) *Error {
	t.Helper()
	require.Error(t, err)
	cfgErr, ok := err.(*Error)
	require.True(t, ok, "expected *config.Error, got %T", err)
	assert.Equal(t, kind, cfgErr.Kind)
	assert.Equal(t, src, cfgErr.Source)
	return cfgErr
}

func TestResolve_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := resolve(t)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "function", cfg.Target)
	assert.Equal(t, domain.SignatureHTTP, cfg.SignatureType)
	assert.Equal(t, ":8080", cfg.Addr())
	require.NotNil(t, cfg.Settings)
	assert.Equal(t, 10*time.Second, cfg.Settings.Server.ShutdownTimeout)
}

func TestResolve_EnvironmentOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvTarget, "event")
	t.Setenv(EnvSignatureType, "cloudevent")

	cfg, err := resolve(t)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "event", cfg.Target)
	assert.Equal(t, domain.SignatureCloudEvent, cfg.SignatureType)
}

func TestResolve_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvTarget, "foo")
	t.Setenv(EnvSignatureType, "cloudevent")

	cfg, err := resolve(t, "--port", "9001", "--target", "function", "--signature-type", "http")
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "function", cfg.Target)
	assert.Equal(t, domain.SignatureHTTP, cfg.SignatureType)
}

func TestResolve_PartialFlagOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvTarget, "foo")

	cfg, err := resolve(t, "--target=function")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port, "port still comes from the environment")
	assert.Equal(t, "function", cfg.Target)
}

func TestResolve_InvalidPort(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		args    []string
		src     Source
		wantMsg string
	}{
		{
			name:    "non numeric env",
			env:     "ten",
			src:     SourceEnv,
			wantMsg: `Bad value for environment variable PORT: "ten".`,
		},
		{
			name:    "negative env",
			env:     "-1",
			src:     SourceEnv,
			wantMsg: `Bad value for environment variable PORT: "-1".`,
		},
		{
			name:    "empty env counts as set",
			env:     "",
			src:     SourceEnv,
			wantMsg: `Bad value for environment variable PORT: "".`,
		},
		{
			name:    "out of range flag",
			args:    []string{"--port", "70000"},
			src:     SourceFlag,
			wantMsg: `Bad value for option "--port": "70000".`,
		},
		{
			name:    "zero flag",
			args:    []string{"--port", "0"},
			src:     SourceFlag,
			wantMsg: `Bad value for option "--port": "0".`,
		},
		{
			name:    "flag wins over valid env",
			env:     "8081",
			args:    []string{"--port", "abc"},
			src:     SourceFlag,
			wantMsg: `Bad value for option "--port": "abc".`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.src == SourceEnv || tt.env != "" {
				t.Setenv(EnvPort, tt.env)
			}

			_, err := resolve(t, tt.args...)
			cfgErr := requireConfigError(t, err, KindInvalidPort, tt.src)
			assert.Equal(t, tt.wantMsg, cfgErr.Error())
			assert.Equal(t, tt.src == SourceFlag, cfgErr.ShowUsage())
		})
	}
}

func TestResolve_InvalidSignatureType(t *testing.T) {
	clearEnv(t)

	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvSignatureType, "HTTP")
		_, err := resolve(t)
		cfgErr := requireConfigError(t, err, KindInvalidSignatureType, SourceEnv)
		assert.Equal(t, `Bad value for environment variable FUNCTION_SIGNATURE_TYPE: "HTTP". Allowed values: http, cloudevent.`, cfgErr.Error())
		assert.False(t, cfgErr.ShowUsage())
	})

	t.Run("flag", func(t *testing.T) {
		_, err := resolve(t, "--signature-type", "event")
		cfgErr := requireConfigError(t, err, KindInvalidSignatureType, SourceFlag)
		assert.Equal(t, `Bad value for option "--signature-type": "event". Allowed values: http, cloudevent.`, cfgErr.Error())
		assert.True(t, cfgErr.ShowUsage())
	})
}

func TestResolve_EmptyTarget(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTarget, "")

	_, err := resolve(t)
	cfgErr := requireConfigError(t, err, KindNoHandlerForTarget, SourceDefault)
	assert.Equal(t, "There is no handler configured for FUNCTION_TARGET ``.", cfgErr.Error())
	assert.False(t, cfgErr.ShowUsage())
}

func TestResolve_SettingsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  shutdown_timeout: 3s\nlogging:\n  level: debug\n"), 0o644))

	cfg, err := resolve(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Settings.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Settings.Logging.Level)

	t.Run("missing file from environment", func(t *testing.T) {
		t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := resolve(t)
		cfgErr := requireConfigError(t, err, KindInvalidSettings, SourceEnv)
		assert.Contains(t, cfgErr.Error(), "Could not load settings from")
		assert.False(t, cfgErr.ShowUsage())
	})
}

func TestFlagError(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)

	err := fs.Parse([]string{"--bob"})
	require.Error(t, err)
	cfgErr := FlagError(err)
	assert.Equal(t, KindUnrecognizedOption, cfgErr.Kind)
	assert.Equal(t, `Could not find an option named "bob".`, cfgErr.Error())
	assert.True(t, cfgErr.ShowUsage())

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	err = fs.Parse([]string{"--port"})
	require.Error(t, err)
	cfgErr = FlagError(err)
	assert.Equal(t, KindBadUsage, cfgErr.Kind)
	assert.True(t, cfgErr.ShowUsage())
}

func TestParsePort(t *testing.T) {
	valid := map[string]int{"1": 1, "80": 80, "8080": 8080, "65535": 65535}
	for raw, want := range valid {
		got, err := ParsePort(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	for _, raw := range []string{"", "0", "65536", "-80", "+80", " 80", "80.0", "0x50", "eighty"} {
		_, err := ParsePort(raw)
		assert.Error(t, err, raw)
	}
}
