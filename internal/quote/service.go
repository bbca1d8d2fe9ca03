// Package quote acquires and caches token prices from the upstream
// providers. Service is the entry point; it owns the cache, the per-network
// request coalescer and the pair resolver.
package quote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// Primary is the primary provider contract.
type Primary interface {
	BatchFetcher
	PairSearcher
}

// Secondary is the pool-level fallback provider.
type Secondary interface {
	FetchPoolQuote(ctx context.Context, network, poolAddress, symbolHint string) (*domain.Quote, error)
}

// Config tunes a Service.
type Config struct {
	Retry         RetryPolicy
	FlushWindow   time.Duration
	ChunkSize     int
	SearchSpacing time.Duration
}

// Service is the price service: cache lookups, coalesced batch fetches,
// the strict single-pair path and the secondary fallback.
type Service struct {
	primary   Primary
	secondary Secondary
	cache     domain.QuoteCache
	retry     RetryPolicy
	coalescer *Coalescer
	resolver  *Resolver
	logger    *slog.Logger

	strict singleflight.Group
}

// NewService wires a Service. secondary may be nil.
func NewService(primary Primary, secondary Secondary, cache domain.QuoteCache, cfg Config, logger *slog.Logger) *Service {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	resolver := NewResolver(primary, cfg.Retry, cfg.SearchSpacing, logger)
	return &Service{
		primary:   primary,
		secondary: secondary,
		cache:     cache,
		retry:     cfg.Retry,
		resolver:  resolver,
		coalescer: NewCoalescer(primary, resolver, cache, cfg.Retry, CoalescerConfig{
			FlushWindow: cfg.FlushWindow,
			ChunkSize:   cfg.ChunkSize,
		}, logger),
		logger: logger.With(slog.String("component", "quote_service")),
	}
}

// Quote returns the quote for a pair through the cache and the coalescer.
// An address the primary does not know as a pool may be resolved as a token
// contract. nil, nil means the pair is confirmed absent.
func (s *Service) Quote(ctx context.Context, network, pairAddress string) (*domain.Quote, error) {
	ref := domain.NewPairRef(network, pairAddress)
	if ref.IsZero() {
		return nil, nil
	}
	if q, found := s.cached(ctx, ref); found {
		return q, nil
	}
	return s.coalescer.Quote(ctx, ref)
}

// QuoteStrict quotes exactly the given pair. It never consults the resolver
// or the token fallback and caches under the requested key. Concurrent
// callers for the same pair share one upstream call.
func (s *Service) QuoteStrict(ctx context.Context, network, pairAddress string) (*domain.Quote, error) {
	ref := domain.NewPairRef(network, pairAddress)
	if ref.IsZero() {
		return nil, nil
	}
	if q, found := s.cached(ctx, ref); found {
		return q, nil
	}

	ch := s.strict.DoChan(ref.String(), func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		var q *domain.Quote
		err := s.retry.Do(fetchCtx, func(ctx context.Context) error {
			var err error
			q, err = s.primary.FetchQuote(ctx, ref.Network, ref.PairAddress)
			return err
		}, nil)
		upstreamFetches.WithLabelValues("strict", outcome(err)).Inc()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrFetchFailed, ref, err)
		}
		if err := s.cache.Put(fetchCtx, ref, q); err != nil {
			s.logger.Warn("cache put failed",
				slog.String("pair", ref.String()),
				slog.String("error", err.Error()),
			)
		}
		return q, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		q, _ := res.Val.(*domain.Quote)
		if q == nil {
			return nil, nil
		}
		cp := *q
		return &cp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SecondaryQuote asks the fallback provider for a pool quote. It returns
// nil, nil when no secondary provider is configured.
func (s *Service) SecondaryQuote(ctx context.Context, ref domain.PairRef, symbolHint string) (*domain.Quote, error) {
	if s.secondary == nil || ref.IsZero() {
		return nil, nil
	}
	var q *domain.Quote
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		q, err = s.secondary.FetchPoolQuote(ctx, ref.Network, ref.PairAddress, symbolHint)
		return err
	}, nil)
	upstreamFetches.WithLabelValues("secondary", outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%w: secondary %s: %w", domain.ErrFetchFailed, ref, err)
	}
	return q, nil
}

// QuoteForToken resolves token to a pool and quotes it, asking the
// secondary provider when the primary has no price.
func (s *Service) QuoteForToken(ctx context.Context, token domain.TokenConfig) (*domain.Quote, error) {
	ref, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}

	q, err := s.Quote(ctx, ref.Network, ref.PairAddress)
	if err != nil {
		return nil, err
	}
	if q != nil {
		return q, nil
	}
	return s.SecondaryQuote(ctx, *ref, token.Symbol)
}

// cached reads through the cache, treating cache errors as absence.
func (s *Service) cached(ctx context.Context, ref domain.PairRef) (*domain.Quote, bool) {
	q, found, err := s.cache.Get(ctx, ref)
	if err != nil {
		s.logger.Warn("cache get failed",
			slog.String("pair", ref.String()),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return q, found
}
