package scheduler

import (
	"sync"

	"github.com/alexisbeaulieu97/flowtest/internal/model"
)

// MemoryResultCache is the default ResultCache: an in-process map guarded by
// a RWMutex, grounded on the teacher's registry map pattern. flowtest has no
// persisted state (spec §1 non-goals), so this cache lives only for the
// duration of one run. Only the scheduler consults it; the call strategy
// does not.
type MemoryResultCache struct {
	mu   sync.RWMutex
	data map[string]model.SuiteResult
}

// NewMemoryResultCache creates an empty cache.
func NewMemoryResultCache() *MemoryResultCache {
	return &MemoryResultCache{data: make(map[string]model.SuiteResult)}
}

// Get implements ResultCache.
func (c *MemoryResultCache) Get(key string) (model.SuiteResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.data[key]
	return r, ok
}

// Put implements ResultCache.
func (c *MemoryResultCache) Put(key string, result model.SuiteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = result
}
