package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/viralideas/analysis-queue/internal/domain"
)

type entry struct {
	summary   domain.QueueSummary
	createdAt time.Time
	expiresAt time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// SummaryCache keeps recently built status projections for the polling hot
// path. Entries are short-lived by design: clients poll every few seconds and
// tolerate a slightly stale snapshot.
type SummaryCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
}

func NewSummaryCache(config Config) *SummaryCache {
	if config.TTL <= 0 {
		config.TTL = 2 * time.Second
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	return &SummaryCache{
		entries:    make(map[string]entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

func (c *SummaryCache) Get(sessionID string) (domain.QueueSummary, bool) {
	c.mu.RLock()
	cached, exists := c.entries[sessionID]
	c.mu.RUnlock()

	if !exists {
		return domain.QueueSummary{}, false
	}
	if time.Now().UTC().After(cached.expiresAt) {
		c.mu.Lock()
		delete(c.entries, sessionID)
		c.mu.Unlock()
		return domain.QueueSummary{}, false
	}
	return cloneSummary(cached.summary), true
}

func (c *SummaryCache) Set(sessionID string, summary domain.QueueSummary) {
	now := time.Now().UTC()
	stored := entry{
		summary:   cloneSummary(summary),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[sessionID] = stored
}

// Invalidate drops the cached projection after a write touches the session.
func (c *SummaryCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

func (c *SummaryCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value entry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.createdAt.Before(pairs[j].value.createdAt)
	})
	delete(c.entries, pairs[0].key)
}

func cloneSummary(summary domain.QueueSummary) domain.QueueSummary {
	clone := summary
	clone.Competitors = append([]domain.CompetitorView(nil), summary.Competitors...)
	return clone
}
