// Package domain 定义了函数框架的核心领域模型。
package domain

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/stretchr/testify/assert"
)

// TestParseSignatureType 测试签名类型解析，覆盖合法值、大小写错误和空值。
func TestParseSignatureType(t *testing.T) {
	tests := []struct {
		input  string        // 输入字符串
		want   SignatureType // 期望的签名类型
		wantOK bool          // 是否期望解析成功
	}{
		{"http", SignatureHTTP, true},
		{"cloudevent", SignatureCloudEvent, true},
		{"HTTP", "", false},
		{"CloudEvent", "", false},
		{"event", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseSignatureType(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowedSignatureTypes(t *testing.T) {
	assert.Equal(t, "http, cloudevent", AllowedSignatureTypes())
}

// TestFunctionEntry_Validate 测试函数条目验证。
func TestFunctionEntry_Validate(t *testing.T) {
	httpFn := func(w http.ResponseWriter, r *http.Request) error { return nil }
	eventFn := func(ctx context.Context, e event.Event) error { return nil }

	tests := []struct {
		name    string
		entry   FunctionEntry
		wantErr error
	}{
		{"valid http", NewHTTPFunction("function", httpFn), nil},
		{"valid cloudevent", NewCloudEventFunction("event", eventFn), nil},
		{"empty name", NewHTTPFunction("", httpFn), ErrInvalidFunctionName},
		{"name with space", NewHTTPFunction("my function", httpFn), ErrInvalidFunctionName},
		{"nil http implementation", NewHTTPFunction("function", nil), ErrMissingImplementation},
		{"nil cloudevent implementation", NewCloudEventFunction("event", nil), ErrMissingImplementation},
		{"unknown kind", FunctionEntry{Name: "x", Kind: "pubsub", HTTP: httpFn}, ErrInvalidSignatureType},
		{"kind without matching implementation", FunctionEntry{Name: "x", Kind: SignatureCloudEvent, HTTP: httpFn}, ErrMissingImplementation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPError(t *testing.T) {
	err := BadRequest("missing field %q", "name")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, `missing field "name"`, err.Message)
	assert.Equal(t, `400 missing field "name"`, err.Error())

	cause := errors.New("boom")
	wrapped := NewHTTPError(http.StatusServiceUnavailable, "").WithCause(cause)
	assert.Equal(t, "Service Unavailable", wrapped.Message)
	assert.ErrorIs(t, wrapped, cause)

	got, ok := AsHTTPError(errors.Join(errors.New("outer"), wrapped))
	assert.True(t, ok)
	assert.Same(t, wrapped, got)

	_, ok = AsHTTPError(cause)
	assert.False(t, ok)
}

func TestInvocation_StatusClass(t *testing.T) {
	cases := map[int]string{101: "1xx", 200: "2xx", 204: "2xx", 302: "3xx", 404: "4xx", 500: "5xx", 503: "5xx"}
	for code, want := range cases {
		inv := &Invocation{StatusCode: code}
		assert.Equal(t, want, inv.StatusClass(), "status %d", code)
		assert.Equal(t, code >= 500, inv.Failed(), "status %d", code)
	}
}
