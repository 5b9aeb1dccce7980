package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"
)

func probe(h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestReadiness(t *testing.T) {
	var failing error
	h := New(func(context.Context) error { return failing })

	assert.Equal(t, probe(h.Healthz).Code, http.StatusOK)
	assert.Equal(t, probe(h.Readyz).Code, http.StatusServiceUnavailable)

	h.SetReady()
	assert.Equal(t, probe(h.Readyz).Code, http.StatusOK)

	failing = errors.New("tool store missing")
	rec := probe(h.Readyz)
	assert.Equal(t, rec.Code, http.StatusServiceUnavailable)
	assert.Equal(t, rec.Body.String(), "not ready: tool store missing")

	h.SetNotReady()
	failing = nil
	assert.Equal(t, probe(h.Readyz).Code, http.StatusServiceUnavailable)
}
