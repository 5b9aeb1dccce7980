package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"
)

func TestLifecycleTransitions(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, l.State(), StateUnloaded)
	assert.ErrorIs(t, l.Begin(), ErrNotReady)

	l.Advance(StateLinked)
	l.Advance(StateInstantiated)
	l.Advance(StateReady)
	assert.NilError(t, l.Begin())
	assert.Equal(t, l.State(), StateInvoking)

	l.End(errors.New("guest returned bad json"))
	assert.Equal(t, l.State(), StateReady)

	assert.NilError(t, l.Begin())
	l.End(&Trap{Export: "exec", Err: errors.New("unreachable")})
	assert.Equal(t, l.State(), StateFaulted)

	l.Advance(StateReady)
	assert.Equal(t, l.State(), StateFaulted)
	assert.ErrorIs(t, l.Begin(), ErrNotReady)
}

func TestHTTPClientFunc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	call := HTTPClientFunc(srv.Client())
	raw, err := call(context.Background(), []byte(`{"method":"post","url":"`+srv.URL+`","body":"ping"}`))
	assert.NilError(t, err)

	var resp HTTPResponse
	assert.NilError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, resp.Status, 200)
	assert.Equal(t, resp.Body, "pong")
	assert.Equal(t, resp.Headers["X-Method"], "POST")

	raw, err = call(context.Background(), []byte(`not json`))
	assert.NilError(t, err)
	assert.NilError(t, json.Unmarshal(raw, &resp))
	assert.ErrorContains(t, errors.New(resp.Error), "decode request")
}
