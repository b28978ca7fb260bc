package functions

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHello(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, Hello(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, World!", rec.Body.String())
}

func TestEcho(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	require.NoError(t, Echo(rec, req))
	assert.Equal(t, `{"a":1}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	err := Echo(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	httpErr, ok := domain.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)

	big := strings.NewReader(strings.Repeat("x", maxEchoBody+1))
	err = Echo(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", big))
	httpErr, ok = domain.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, httpErr.Status)
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := event.New()
	e.SetID("evt-1")
	e.SetType("com.example.created")
	e.SetSource("//example")

	require.NoError(t, LogEvent(logger)(context.Background(), e))
	assert.Contains(t, buf.String(), `"event_id":"evt-1"`)
	assert.Contains(t, buf.String(), `"event_type":"com.example.created"`)
}

func TestAll(t *testing.T) {
	entries := All(logrus.New())
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.NoError(t, entry.Validate(), entry.Name)
	}
	assert.Equal(t, NameHello, entries[0].Name)
	assert.Equal(t, domain.SignatureCloudEvent, entries[2].Kind)
}
