package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// missMarker is stored for pairs confirmed absent upstream.
const missMarker = "-"

// QuoteCache implements domain.QuoteCache with one string key per pair
// ("quote:{network}:{pair}") holding the JSON quote or a miss marker.
// Redis expiry enforces the hit and miss TTLs.
type QuoteCache struct {
	client  *Client
	hitTTL  time.Duration
	missTTL time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client, hitTTL, missTTL time.Duration) *QuoteCache {
	return &QuoteCache{client: c, hitTTL: hitTTL, missTTL: missTTL}
}

func (qc *QuoteCache) key(ref domain.PairRef) string {
	return qc.client.Key("quote", ref.Network, ref.PairAddress)
}

// Get returns the cached quote for ref. A stored miss marker yields
// found=true with a nil quote.
func (qc *QuoteCache) Get(ctx context.Context, ref domain.PairRef) (*domain.Quote, bool, error) {
	val, err := qc.client.Underlying().Get(ctx, qc.key(ref)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis: get quote %s: %w", ref, err)
	}
	if val == missMarker {
		return nil, true, nil
	}

	var q domain.Quote
	if err := json.Unmarshal([]byte(val), &q); err != nil {
		return nil, false, fmt.Errorf("redis: unmarshal quote %s: %w", ref, err)
	}
	return &q, true, nil
}

// Put stores q under ref, or a miss marker when q is nil.
func (qc *QuoteCache) Put(ctx context.Context, ref domain.PairRef, q *domain.Quote) error {
	val, ttl := missMarker, qc.missTTL
	if q != nil {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("redis: marshal quote %s: %w", ref, err)
		}
		val, ttl = string(data), qc.hitTTL
	}
	if err := qc.client.Underlying().Set(ctx, qc.key(ref), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put quote %s: %w", ref, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
