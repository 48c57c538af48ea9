package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QueueCache stores ranked queues per (period, filter key). Every
// InvalidatePeriod bumps the period version; Set stores nothing unless the
// version still equals the one read before the projection was built.
type QueueCache interface {
	Get(ctx context.Context, periodID uuid.UUID, key string) ([]QueueEntry, bool)
	Version(ctx context.Context, periodID uuid.UUID) uint64
	Set(ctx context.Context, periodID uuid.UUID, key string, version uint64, entries []QueueEntry)
	InvalidatePeriod(ctx context.Context, periodID uuid.UUID)
}

type cachedQueue struct {
	entries   []QueueEntry
	expiresAt time.Time
}

type memoryQueueCache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	now         func() time.Time
	entries     map[string]cachedQueue
	periodIndex map[uuid.UUID]map[string]struct{}
	versions    map[uuid.UUID]uint64
}

// NewMemoryQueueCache keeps queues in process. A zero ttl never expires.
func NewMemoryQueueCache(ttl time.Duration) QueueCache {
	return &memoryQueueCache{
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[string]cachedQueue),
		periodIndex: make(map[uuid.UUID]map[string]struct{}),
		versions:    make(map[uuid.UUID]uint64),
	}
}

func cacheEntryKey(periodID uuid.UUID, key string) string {
	return periodID.String() + "|" + key
}

func (c *memoryQueueCache) Get(_ context.Context, periodID uuid.UUID, key string) ([]QueueEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheEntryKey(periodID, key)]
	if !ok {
		return nil, false
	}
	if !v.expiresAt.IsZero() && c.now().After(v.expiresAt) {
		return nil, false
	}
	return cloneEntries(v.entries), true
}

func (c *memoryQueueCache) Version(_ context.Context, periodID uuid.UUID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[periodID]
}

func (c *memoryQueueCache) Set(_ context.Context, periodID uuid.UUID, key string, version uint64, entries []QueueEntry) {
	if periodID == uuid.Nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[periodID] != version {
		return
	}
	v := cachedQueue{entries: cloneEntries(entries)}
	if c.ttl > 0 {
		v.expiresAt = c.now().Add(c.ttl)
	}
	ek := cacheEntryKey(periodID, key)
	c.entries[ek] = v
	if _, ok := c.periodIndex[periodID]; !ok {
		c.periodIndex[periodID] = make(map[string]struct{})
	}
	c.periodIndex[periodID][ek] = struct{}{}
}

func (c *memoryQueueCache) InvalidatePeriod(_ context.Context, periodID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[periodID]++
	for ek := range c.periodIndex[periodID] {
		delete(c.entries, ek)
	}
	delete(c.periodIndex, periodID)
}

type noopQueueCache struct{}

// NewNoopQueueCache disables caching.
func NewNoopQueueCache() QueueCache { return noopQueueCache{} }

func (noopQueueCache) Get(context.Context, uuid.UUID, string) ([]QueueEntry, bool)  { return nil, false }
func (noopQueueCache) Version(context.Context, uuid.UUID) uint64                    { return 0 }
func (noopQueueCache) Set(context.Context, uuid.UUID, string, uint64, []QueueEntry) {}
func (noopQueueCache) InvalidatePeriod(context.Context, uuid.UUID)                  {}

func cloneEntries(in []QueueEntry) []QueueEntry {
	if in == nil {
		return nil
	}
	out := make([]QueueEntry, len(in))
	for i, e := range in {
		e.Ranks = append([]RankStatus(nil), e.Ranks...)
		out[i] = e
	}
	return out
}
