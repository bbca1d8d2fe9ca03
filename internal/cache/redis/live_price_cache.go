package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// LivePriceCache implements domain.LivePriceCache using a single Redis hash
// ("prices:live") with one JSON field per token. Each field is written whole
// so readers never observe a partially updated record.
type LivePriceCache struct {
	client *Client
}

// NewLivePriceCache creates a LivePriceCache backed by the given Client.
func NewLivePriceCache(c *Client) *LivePriceCache {
	return &LivePriceCache{client: c}
}

func (lc *LivePriceCache) key() string {
	return lc.client.Key("prices", "live")
}

// SetLivePrice stores the latest record for p.TokenID.
func (lc *LivePriceCache) SetLivePrice(ctx context.Context, p domain.LivePrice) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: marshal live price %s: %w", p.TokenID, err)
	}
	if err := lc.client.Underlying().HSet(ctx, lc.key(), p.TokenID, data).Err(); err != nil {
		return fmt.Errorf("redis: set live price %s: %w", p.TokenID, err)
	}
	return nil
}

// GetLivePrice returns the record for tokenID, or domain.ErrNotFound.
func (lc *LivePriceCache) GetLivePrice(ctx context.Context, tokenID string) (domain.LivePrice, error) {
	val, err := lc.client.Underlying().HGet(ctx, lc.key(), tokenID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.LivePrice{}, domain.ErrNotFound
		}
		return domain.LivePrice{}, fmt.Errorf("redis: get live price %s: %w", tokenID, err)
	}
	var p domain.LivePrice
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return domain.LivePrice{}, fmt.Errorf("redis: unmarshal live price %s: %w", tokenID, err)
	}
	return p, nil
}

// GetLivePrices returns every stored record keyed by token id. Fields that
// fail to decode are skipped.
func (lc *LivePriceCache) GetLivePrices(ctx context.Context) (map[string]domain.LivePrice, error) {
	vals, err := lc.client.Underlying().HGetAll(ctx, lc.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get live prices: %w", err)
	}
	out := make(map[string]domain.LivePrice, len(vals))
	for id, val := range vals {
		var p domain.LivePrice
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			continue
		}
		out[id] = p
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.LivePriceCache = (*LivePriceCache)(nil)
