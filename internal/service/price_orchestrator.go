// Package service holds the long-running application services: the live
// price poller, duel settlement glue and the snapshot archiver.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/cache/redis"
	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/quote"
)

const (
	DefaultPollInterval = 60 * time.Second
	MinPollInterval     = 15 * time.Second
)

// QuoteSource is the part of the quote service the orchestrator polls.
type QuoteSource interface {
	QuoteStrict(ctx context.Context, network, pairAddress string) (*domain.Quote, error)
	SecondaryQuote(ctx context.Context, ref domain.PairRef, symbolHint string) (*domain.Quote, error)
}

// OrchestratorConfig configures a PriceOrchestrator.
type OrchestratorConfig struct {
	Interval time.Duration
	Tokens   []domain.TokenConfig
}

type trackedToken struct {
	id     string
	symbol string
	ref    domain.PairRef
}

// PriceOrchestrator polls the configured token pairs on a fixed interval and
// keeps the last known price for each. A failed poll leaves the previous
// value in place.
type PriceOrchestrator struct {
	quotes    QuoteSource
	bus       domain.SignalBus
	mirror    domain.LivePriceCache
	tracked   []trackedToken
	virtualID string
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	prices map[string]domain.LivePrice

	startOnce sync.Once
}

// NewPriceOrchestrator builds the tracked list from tokens with an explicit
// pair. bus and mirror may be nil.
func NewPriceOrchestrator(
	quotes QuoteSource,
	bus domain.SignalBus,
	mirror domain.LivePriceCache,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *PriceOrchestrator {
	logger = logger.With(slog.String("component", "price_orchestrator"))

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if interval < MinPollInterval {
		interval = MinPollInterval
	}

	o := &PriceOrchestrator{
		quotes:   quotes,
		bus:      bus,
		mirror:   mirror,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		prices:   make(map[string]domain.LivePrice),
	}

	for _, t := range cfg.Tokens {
		if t.Virtual {
			o.virtualID = t.ID
		}
		if strings.TrimSpace(t.PairAddress) == "" {
			continue
		}
		addr := quote.SanitizePairAddress(t.PairAddress)
		if addr == "" || strings.TrimSpace(t.Network) == "" {
			logger.Warn("token not tracked: unusable pair configuration",
				slog.String("token", t.ID),
				slog.String("pair_address", t.PairAddress),
			)
			continue
		}
		o.tracked = append(o.tracked, trackedToken{
			id:     t.ID,
			symbol: t.Symbol,
			ref:    domain.NewPairRef(t.Network, addr),
		})
	}
	trackedTokens.Set(float64(len(o.tracked)))
	return o
}

// Interval returns the effective poll interval.
func (o *PriceOrchestrator) Interval() time.Duration {
	return o.interval
}

// Start launches the poll loop. Calls after the first are no-ops. The loop
// stops when ctx is cancelled.
func (o *PriceOrchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.logger.Info("price orchestrator starting",
			slog.Int("tokens", len(o.tracked)),
			slog.Duration("interval", o.interval),
		)
		go o.loop(ctx)
	})
}

func (o *PriceOrchestrator) loop(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("price orchestrator stopped")
			return
		case <-ticker.C:
			o.PollOnce(ctx)
		}
	}
}

// PollOnce runs one tick over every tracked token and returns how many were
// updated.
func (o *PriceOrchestrator) PollOnce(ctx context.Context) int {
	updated := make([]domain.LivePrice, 0, len(o.tracked))
	for _, t := range o.tracked {
		if ctx.Err() != nil {
			break
		}
		q, result := o.fetch(ctx, t)
		pollResults.WithLabelValues(result).Inc()
		if q == nil {
			continue
		}

		p := domain.LivePrice{
			TokenID:       t.id,
			PriceUSD:      q.PriceUSD,
			BaselinePrice: Baseline(q.PriceUSD, q.ChangePct24h),
			ChangePct:     q.ChangePct24h,
			FDV:           q.FDVUSD,
			AsOf:          o.now().UTC(),
			Source:        q.Source,
		}
		o.mu.Lock()
		o.prices[t.id] = p
		o.mu.Unlock()
		updated = append(updated, p)

		if o.mirror != nil {
			if err := o.mirror.SetLivePrice(ctx, p); err != nil {
				o.logger.Warn("mirror live price failed",
					slog.String("token", t.id),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if len(updated) > 0 {
		o.publish(ctx)
	}
	return len(updated)
}

// fetch tries the strict primary path, then the secondary provider.
func (o *PriceOrchestrator) fetch(ctx context.Context, t trackedToken) (*domain.Quote, string) {
	q, err := o.quotes.QuoteStrict(ctx, t.ref.Network, t.ref.PairAddress)
	if err != nil {
		o.logger.Warn("strict quote failed",
			slog.String("token", t.id),
			slog.String("pair", t.ref.String()),
			slog.String("error", err.Error()),
		)
	}
	if q != nil {
		return q, "primary"
	}

	q, err = o.quotes.SecondaryQuote(ctx, t.ref, t.symbol)
	if err != nil {
		o.logger.Warn("secondary quote failed",
			slog.String("token", t.id),
			slog.String("pair", t.ref.String()),
			slog.String("error", err.Error()),
		)
	}
	if q != nil {
		return q, "secondary"
	}

	o.logger.Info("no price this tick, keeping last value",
		slog.String("token", t.id),
		slog.String("pair", t.ref.String()),
	)
	return nil, "stale"
}

func (o *PriceOrchestrator) publish(ctx context.Context) {
	if o.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":  "prices",
		"prices": o.Snapshot(),
	})
	if err := o.bus.Publish(ctx, redis.ChannelPrices, evt); err != nil {
		o.logger.Warn("publish prices event failed", slog.String("error", err.Error()))
	}
}

// GetLivePrice returns the current price for a token, rescaled by the
// virtual token when one is configured.
func (o *PriceOrchestrator) GetLivePrice(tokenID string) (domain.LivePrice, bool) {
	o.mu.RLock()
	p, ok := o.prices[tokenID]
	mult := o.multiplierLocked(tokenID)
	o.mu.RUnlock()
	if !ok {
		return domain.LivePrice{}, false
	}
	return rescale(p, mult), true
}

// GetLivePrices returns every known price, rescaled.
func (o *PriceOrchestrator) GetLivePrices() map[string]domain.LivePrice {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return rescaleAll(o.prices, o.virtualID)
}

// Snapshot returns every known price sorted by token id.
func (o *PriceOrchestrator) Snapshot() []domain.LivePrice {
	return sortedPrices(o.GetLivePrices())
}

func (o *PriceOrchestrator) multiplierLocked(tokenID string) float64 {
	return virtualMultiplier(o.prices, o.virtualID, tokenID)
}

// Baseline derives the price 24h ago from the current price and the 24h
// change. Missing, non-finite, zero or <= -100% changes yield current.
func Baseline(current float64, changePct *float64) float64 {
	if changePct == nil {
		return current
	}
	chg := *changePct
	if math.IsNaN(chg) || math.IsInf(chg, 0) || chg == 0 || chg <= -100 {
		return current
	}
	return current / (1 + chg/100)
}

// virtualMultiplier is the virtual token's USD price, or 1 when there is no
// virtual token, it has no usable price, or tokenID is the virtual token.
func virtualMultiplier(prices map[string]domain.LivePrice, virtualID, tokenID string) float64 {
	if virtualID == "" || tokenID == virtualID {
		return 1
	}
	v, ok := prices[virtualID]
	if !ok || v.PriceUSD <= 0 || math.IsNaN(v.PriceUSD) || math.IsInf(v.PriceUSD, 0) {
		return 1
	}
	return v.PriceUSD
}

func rescale(p domain.LivePrice, mult float64) domain.LivePrice {
	if mult == 1 {
		return p
	}
	p.PriceUSD *= mult
	p.BaselinePrice *= mult
	if p.FDV != nil {
		p.FDV = domain.Float64Ptr(*p.FDV * mult)
	}
	return p
}

func rescaleAll(prices map[string]domain.LivePrice, virtualID string) map[string]domain.LivePrice {
	out := make(map[string]domain.LivePrice, len(prices))
	for id, p := range prices {
		out[id] = rescale(p, virtualMultiplier(prices, virtualID, id))
	}
	return out
}

func sortedPrices(m map[string]domain.LivePrice) []domain.LivePrice {
	out := make([]domain.LivePrice, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}
