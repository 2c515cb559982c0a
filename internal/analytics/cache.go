package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const keySep = "\x00"

// resultCache memoizes query results. Keys are prefixed by report id so a report's
// results can be dropped together; a per-report generation keeps a result computed
// before an invalidation from being stored after it.
type resultCache struct {
	lru *lru.Cache[string, Result]

	mu  sync.Mutex
	gen map[string]uint64
}

func newResultCache(size int) *resultCache {
	c := &resultCache{gen: make(map[string]uint64)}
	if size > 0 {
		c.lru, _ = lru.New[string, Result](size)
	}
	return c
}

func cacheKey(q Query) (string, error) {
	// encoding/json sorts map keys, so equal filter sets encode identically.
	b, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encoding query: %w", err)
	}
	return q.ReportID + keySep + string(b), nil
}

func (c *resultCache) get(key string) (Result, bool) {
	if c.lru == nil {
		return Result{}, false
	}
	return c.lru.Get(key)
}

func (c *resultCache) generation(reportID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[reportID]
}

func (c *resultCache) add(reportID string, gen uint64, key string, res Result) {
	if c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[reportID] != gen {
		return
	}
	c.lru.Add(key, res)
}

func (c *resultCache) invalidate(reportID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[reportID]++
	if c.lru == nil {
		return
	}
	prefix := reportID + keySep
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

func (c *resultCache) len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
