package quote

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

const (
	// DefaultHitTTL is how long a present quote stays fresh.
	DefaultHitTTL = 45 * time.Second
	// DefaultMissTTL is how long a confirmed absence is remembered.
	DefaultMissTTL = 60 * time.Second
)

type withExpiry[T any] struct {
	v         T
	expiresAt time.Time
}

// MemoryCache is the in-process QuoteCache. Entries are either a full quote
// or a miss marker (nil) and are treated as absent once expired.
type MemoryCache struct {
	entries *lru.Cache[domain.PairRef, withExpiry[*domain.Quote]]
	hitTTL  time.Duration
	missTTL time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache bounded to size entries.
func NewMemoryCache(size int, hitTTL, missTTL time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		size = 4096
	}
	if hitTTL <= 0 {
		hitTTL = DefaultHitTTL
	}
	if missTTL <= 0 {
		missTTL = DefaultMissTTL
	}
	entries, err := lru.New[domain.PairRef, withExpiry[*domain.Quote]](size)
	if err != nil {
		return nil, fmt.Errorf("quote: new memory cache: %w", err)
	}
	return &MemoryCache{
		entries: entries,
		hitTTL:  hitTTL,
		missTTL: missTTL,
		now:     time.Now,
	}, nil
}

// Get returns the cached quote for ref. found is false when nothing fresh is
// cached; found with a nil quote is a remembered miss.
func (c *MemoryCache) Get(_ context.Context, ref domain.PairRef) (*domain.Quote, bool, error) {
	e, ok := c.entries.Get(ref)
	if !ok {
		cacheResults.WithLabelValues("absent").Inc()
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(ref)
		cacheResults.WithLabelValues("expired").Inc()
		return nil, false, nil
	}
	if e.v == nil {
		cacheResults.WithLabelValues("miss_marker").Inc()
		return nil, true, nil
	}
	cacheResults.WithLabelValues("hit").Inc()
	q := *e.v
	return &q, true, nil
}

// Put stores q under ref, or a miss marker when q is nil.
func (c *MemoryCache) Put(_ context.Context, ref domain.PairRef, q *domain.Quote) error {
	ttl := c.hitTTL
	var stored *domain.Quote
	if q != nil {
		cp := *q
		stored = &cp
	} else {
		ttl = c.missTTL
	}
	c.entries.Add(ref, withExpiry[*domain.Quote]{v: stored, expiresAt: c.now().Add(ttl)})
	return nil
}

// Len reports the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
