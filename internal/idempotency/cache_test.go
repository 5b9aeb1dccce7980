package idempotency

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/internal/protocol"
)

func envelope(text string) protocol.Envelope {
	return protocol.CallEnvelope(&protocol.CallResult{
		Content: []protocol.Content{{Type: protocol.ContentText, Text: text}},
	}, nil, protocol.Latest)
}

func TestCacheExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCache(time.Minute, 10)
	c.now = func() time.Time { return now }

	c.Set("echo", "k", envelope("a"))
	got, ok := c.Get("k")
	assert.Assert(t, ok)
	assert.Equal(t, got.Call.Content[0].Text, "a")

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.Assert(t, !ok)
	assert.Equal(t, c.Len(), 0)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(time.Hour, 2)
	c.Set("echo", "a", envelope("a"))
	c.Set("echo", "b", envelope("b"))
	_, _ = c.Get("a")
	c.Set("echo", "c", envelope("c"))

	_, ok := c.Get("b")
	assert.Assert(t, !ok)
	_, ok = c.Get("a")
	assert.Assert(t, ok)
	assert.Equal(t, c.Len(), 2)
}

func TestCacheSkipsFailures(t *testing.T) {
	c := NewCache(time.Hour, 2)
	c.Set("echo", "bad", protocol.Envelope{Error: &protocol.ErrorBody{Code: protocol.CodeToolError}})
	c.Set("echo", "", envelope("no key"))
	assert.Equal(t, c.Len(), 0)

	var nilCache *Cache
	nilCache.Set("echo", "k", envelope("x"))
	_, ok := nilCache.Get("k")
	assert.Assert(t, !ok)
}

func TestForgetComponentMatchesExactLocator(t *testing.T) {
	c := NewCache(time.Hour, 10)
	c.Set("weather", "k1", envelope("a"))
	c.Set("weather", "k2", envelope("b"))
	c.Set("weather:v2", "k3", envelope("c"))
	c.Set("weatherman", "k4", envelope("d"))

	assert.Equal(t, c.ForgetComponent("weather"), 2)
	assert.Equal(t, c.Len(), 2)
	_, ok := c.Get("k3")
	assert.Assert(t, ok)
	_, ok = c.Get("k4")
	assert.Assert(t, ok)
	assert.Equal(t, c.ForgetComponent(""), 0)
}
