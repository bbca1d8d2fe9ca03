package domain

import (
	"context"
	"time"
)

// QuoteCache maps a pair to its last resolved quote. A nil quote with
// found=true is a confirmed miss; found=false means absent or expired and the
// caller must fetch again.
type QuoteCache interface {
	Get(ctx context.Context, ref PairRef) (q *Quote, found bool, err error)
	Put(ctx context.Context, ref PairRef, q *Quote) error
}

// LivePriceCache mirrors the orchestrator's current prices so processes that
// do not poll can still serve them.
type LivePriceCache interface {
	SetLivePrice(ctx context.Context, p LivePrice) error
	GetLivePrice(ctx context.Context, tokenID string) (LivePrice, error)
	GetLivePrices(ctx context.Context) (map[string]LivePrice, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter counts requests per key in a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
