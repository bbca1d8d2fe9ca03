package quote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

const (
	// DefaultFlushWindow is how long a network's batch collects requests.
	DefaultFlushWindow = 25 * time.Millisecond
	// DefaultChunkSize is the most addresses sent in one batch request.
	DefaultChunkSize = 30
)

// BatchFetcher is the subset of the primary provider the coalescer needs.
type BatchFetcher interface {
	FetchQuotesBatch(ctx context.Context, network string, pairAddresses []string) (map[string]domain.Quote, error)
	FetchQuote(ctx context.Context, network, pairAddress string) (*domain.Quote, error)
}

// TokenPairFinder maps a token contract address to its best pool.
type TokenPairFinder interface {
	BestPairForToken(ctx context.Context, network, tokenAddress string) (*domain.PairRef, error)
}

// Result is delivered to every waiter of a coalesced request. Quote is nil
// with a nil Err when the pair is confirmed absent.
type Result struct {
	Quote *domain.Quote
	Err   error
}

// batch is one network's pending set of addresses. It is only mutated under
// Coalescer.mu while registered in Coalescer.pending.
type batch struct {
	order   []string
	waiters map[string][]chan Result
}

func (b *batch) resolve(addr string, res Result) {
	for _, ch := range b.waiters[addr] {
		ch <- res
	}
	delete(b.waiters, addr)
}

// CoalescerConfig tunes batching.
type CoalescerConfig struct {
	FlushWindow time.Duration
	ChunkSize   int
}

// Coalescer merges concurrent quote requests per network into batched
// upstream calls. Every request registered before a flush fires is answered
// by that flush.
type Coalescer struct {
	source   BatchFetcher
	tokens   TokenPairFinder
	cache    domain.QuoteCache
	retry    RetryPolicy
	window   time.Duration
	chunk    int
	logger   *slog.Logger
	fetchCtx context.Context

	mu      sync.Mutex
	pending map[string]*batch
}

// NewCoalescer creates a Coalescer. tokens may be nil to disable the token
// address fallback.
func NewCoalescer(source BatchFetcher, tokens TokenPairFinder, cache domain.QuoteCache, retry RetryPolicy, cfg CoalescerConfig, logger *slog.Logger) *Coalescer {
	if cfg.FlushWindow <= 0 {
		cfg.FlushWindow = DefaultFlushWindow
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Coalescer{
		source:   source,
		tokens:   tokens,
		cache:    cache,
		retry:    retry,
		window:   cfg.FlushWindow,
		chunk:    cfg.ChunkSize,
		logger:   logger.With(slog.String("component", "coalescer")),
		fetchCtx: context.Background(),
		pending:  make(map[string]*batch),
	}
}

// Request registers interest in a pair and returns a channel that receives
// exactly one Result.
func (c *Coalescer) Request(network, pairAddress string) <-chan Result {
	ref := domain.NewPairRef(network, pairAddress)
	ch := make(chan Result, 1)
	if ref.IsZero() {
		ch <- Result{}
		return ch
	}

	c.mu.Lock()
	b, ok := c.pending[ref.Network]
	if !ok {
		b = &batch{waiters: make(map[string][]chan Result)}
		c.pending[ref.Network] = b
		time.AfterFunc(c.window, func() { c.flush(ref.Network, b) })
	}
	if _, seen := b.waiters[ref.PairAddress]; !seen {
		b.order = append(b.order, ref.PairAddress)
	}
	b.waiters[ref.PairAddress] = append(b.waiters[ref.PairAddress], ch)
	c.mu.Unlock()

	return ch
}

// Quote requests ref and waits for the result or for ctx to end. Abandoning
// the wait does not cancel the upstream fetch.
func (c *Coalescer) Quote(ctx context.Context, ref domain.PairRef) (*domain.Quote, error) {
	select {
	case res := <-c.Request(ref.Network, ref.PairAddress):
		return res.Quote, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coalescer) flush(network string, b *batch) {
	c.mu.Lock()
	if c.pending[network] == b {
		delete(c.pending, network)
	}
	c.mu.Unlock()

	flushSize.Observe(float64(len(b.order)))
	for start := 0; start < len(b.order); start += c.chunk {
		end := min(start+c.chunk, len(b.order))
		c.fetchChunk(c.fetchCtx, network, b.order[start:end], b)
	}
}

func (c *Coalescer) fetchChunk(ctx context.Context, network string, addrs []string, b *batch) {
	var quotes map[string]domain.Quote
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		quotes, err = c.source.FetchQuotesBatch(ctx, network, addrs)
		return err
	}, c.logRetry(network, "batch"))
	upstreamFetches.WithLabelValues("batch", outcome(err)).Inc()

	if err != nil {
		c.logger.Warn("batch fetch failed",
			slog.String("network", network),
			slog.Int("pairs", len(addrs)),
			slog.String("error", err.Error()),
		)
		failed := fmt.Errorf("%w: %s batch: %w", domain.ErrFetchFailed, network, err)
		for _, addr := range addrs {
			b.resolve(addr, Result{Err: failed})
		}
		return
	}

	for _, addr := range addrs {
		ref := domain.PairRef{Network: network, PairAddress: addr}
		if q, ok := quotes[addr]; ok {
			c.put(ctx, ref, &q)
			b.resolve(addr, Result{Quote: &q})
			continue
		}
		if c.tokens == nil || !IsHexAddress(addr) {
			c.put(ctx, ref, nil)
			b.resolve(addr, Result{})
			continue
		}
		b.resolve(addr, c.viaTokenFallback(ctx, ref))
	}
}

// viaTokenFallback treats an address the batch did not know as a token
// contract and quotes the token's best pool instead. The quote is cached
// under the pool's own key and under the token address.
func (c *Coalescer) viaTokenFallback(ctx context.Context, ref domain.PairRef) Result {
	pool, err := c.tokens.BestPairForToken(ctx, ref.Network, ref.PairAddress)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s: %w", domain.ErrFetchFailed, ref, err)}
	}
	if pool == nil {
		c.put(ctx, ref, nil)
		return Result{}
	}

	var q *domain.Quote
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		q, err = c.source.FetchQuote(ctx, pool.Network, pool.PairAddress)
		return err
	}, c.logRetry(ref.Network, "token_fallback"))
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s via %s: %w", domain.ErrFetchFailed, ref, pool, err)}
	}

	c.put(ctx, *pool, q)
	c.put(ctx, ref, q)
	c.logger.Debug("token address resolved to pool",
		slog.String("token", ref.String()),
		slog.String("pool", pool.String()),
		slog.Bool("priced", q != nil),
	)
	return Result{Quote: q}
}

func (c *Coalescer) put(ctx context.Context, ref domain.PairRef, q *domain.Quote) {
	if err := c.cache.Put(ctx, ref, q); err != nil {
		c.logger.Warn("cache put failed",
			slog.String("pair", ref.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coalescer) logRetry(network, path string) RetryNotify {
	return func(err error, attempt int, delay time.Duration) {
		c.logger.Debug("retrying upstream fetch",
			slog.String("network", network),
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	}
}
