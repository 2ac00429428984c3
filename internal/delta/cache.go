package delta

import (
	"context"
	"sync"
	"time"

	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
)

// DefaultCacheTTL keeps a greeks snapshot warm across the strategies of
// one poll cycle without pinning stale data.
const DefaultCacheTTL = 3 * time.Second

// CachedGreeks memoizes ContractGreeks per contract key for a short
// TTL, so the live and theoretical strategies of one evaluation share a
// single broker roundtrip.
type CachedGreeks struct {
	Inner GreeksFetcher
	TTL   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	nowFn   func() time.Time
}

type cacheEntry struct {
	greeks   broker.Greeks
	fetched  time.Time
	fetchErr error
}

func NewCachedGreeks(inner GreeksFetcher, ttl time.Duration) *CachedGreeks {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGreeks{
		Inner:   inner,
		TTL:     ttl,
		entries: make(map[string]cacheEntry),
		nowFn:   time.Now,
	}
}

func (c *CachedGreeks) ContractGreeks(ctx context.Context, inst instrument.Instrument) (broker.Greeks, error) {
	key := inst.Key()
	now := c.nowFn()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Sub(e.fetched) < c.TTL {
		c.mu.Unlock()
		return e.greeks, e.fetchErr
	}
	c.mu.Unlock()

	g, err := c.Inner.ContractGreeks(ctx, inst)

	c.mu.Lock()
	c.entries[key] = cacheEntry{greeks: g, fetched: now, fetchErr: err}
	// Drop entries from earlier cycles so the map stays bounded by the
	// working contract set.
	for k, e := range c.entries {
		if now.Sub(e.fetched) >= c.TTL {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return g, err
}
