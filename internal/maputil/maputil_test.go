package maputil

import (
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

func TestPop(t *testing.T) {
	var mu sync.Mutex
	items := map[string]int{"a": 1}

	value, ok := Pop(&mu, items, "a")
	assert.Assert(t, ok)
	assert.Equal(t, value, 1)
	assert.Equal(t, len(items), 0)

	_, ok = Pop(&mu, items, "a")
	assert.Assert(t, !ok)
}

func TestSortedKeys(t *testing.T) {
	assert.DeepEqual(t, SortedKeys(map[string]bool{"b": true, "c": false, "a": true}), []string{"a", "b", "c"})
	assert.Equal(t, len(SortedKeys(map[int]string(nil))), 0)
}
