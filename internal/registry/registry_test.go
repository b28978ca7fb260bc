package registry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpEntry(name string) domain.FunctionEntry {
	return domain.NewHTTPFunction(name, func(w http.ResponseWriter, r *http.Request) error { return nil })
}

func eventEntry(name string) domain.FunctionEntry {
	return domain.NewCloudEventFunction(name, func(ctx context.Context, e event.Event) error { return nil })
}

func TestNew(t *testing.T) {
	r, err := New(httpEntry("function"), eventEntry("event"))
	require.NoError(t, err)
	assert.Equal(t, []string{"event", "function"}, r.Names())

	_, err = New(httpEntry("function"), httpEntry("function"))
	assert.ErrorIs(t, err, domain.ErrDuplicateFunction)

	_, err = New(httpEntry(""))
	assert.ErrorIs(t, err, domain.ErrInvalidFunctionName)

	assert.Panics(t, func() { MustNew(domain.NewHTTPFunction("nil", nil)) })
}

func TestResolve(t *testing.T) {
	r := MustNew(httpEntry("function"))

	entry, err := r.Resolve("function")
	require.NoError(t, err)
	assert.Equal(t, "function", entry.Name)
	assert.Equal(t, domain.SignatureHTTP, entry.Kind)

	_, err = r.Resolve("foo")
	var cfgErr *config.Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, config.KindNoHandlerForTarget, cfgErr.Kind)
	assert.Equal(t, "There is no handler configured for FUNCTION_TARGET `foo`.", cfgErr.Error())
	assert.False(t, cfgErr.ShowUsage())
}

func TestResolveConfig(t *testing.T) {
	r := MustNew(httpEntry("function"), eventEntry("event"))

	entry, err := r.ResolveConfig(&config.Config{Target: "event", SignatureType: domain.SignatureCloudEvent})
	require.NoError(t, err)
	assert.Equal(t, "event", entry.Name)

	_, err = r.ResolveConfig(&config.Config{Target: "function", SignatureType: domain.SignatureCloudEvent})
	var cfgErr *config.Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, config.KindSignatureMismatch, cfgErr.Kind)
	assert.Equal(t, "The function `function` has signature type \"http\", but FUNCTION_SIGNATURE_TYPE is \"cloudevent\".", cfgErr.Error())

	_, err = r.ResolveConfig(&config.Config{Target: "missing", SignatureType: domain.SignatureHTTP})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, config.KindNoHandlerForTarget, cfgErr.Kind)
}
