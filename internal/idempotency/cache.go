package idempotency

import (
	"container/list"
	"sync"
	"time"

	"github.com/codex-k8s/mcp-exec/internal/protocol"
)

// Cache stores successful call envelopes for a limited time, evicting the
// least recently used entry once maxEntries is reached.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	key       string
	component string
	value     protocol.Envelope
	expiresAt time.Time
}

// NewCache creates a cache with the given ttl and max entries.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves a cached envelope if present and not expired.
func (c *Cache) Get(key string) (protocol.Envelope, bool) {
	if c == nil || key == "" {
		return protocol.Envelope{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return protocol.Envelope{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return protocol.Envelope{}, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores an envelope produced by component. Only successful envelopes
// are cached.
func (c *Cache) Set(component, key string, value protocol.Envelope) {
	if !value.OK {
		return
	}
	if c == nil || key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.component = component
		entry.value = value
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{
		key:       key,
		component: component,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	elem := c.order.PushFront(entry)
	c.items[key] = elem
	c.trim()
}

func (c *Cache) trim() {
	for len(c.items) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		entry := elem.Value.(*cacheEntry)
		delete(c.items, entry.key)
		c.order.Remove(elem)
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ForgetComponent drops every entry stored for component and returns how
// many were removed.
func (c *Cache) ForgetComponent(component string) int {
	if c == nil || component == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if elem.Value.(*cacheEntry).component != component {
			continue
		}
		c.order.Remove(elem)
		delete(c.items, key)
		removed++
	}
	return removed
}
