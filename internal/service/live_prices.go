package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/settlement"
)

// PriceReader serves live prices to the HTTP layer and settlement. The
// in-process orchestrator and the Redis mirror both satisfy it.
type PriceReader interface {
	LivePrice(ctx context.Context, tokenID string) (domain.LivePrice, error)
	LivePrices(ctx context.Context) ([]domain.LivePrice, error)
}

type localReader struct {
	o *PriceOrchestrator
}

// Reader exposes the orchestrator as a PriceReader.
func (o *PriceOrchestrator) Reader() PriceReader {
	return localReader{o: o}
}

func (r localReader) LivePrice(_ context.Context, tokenID string) (domain.LivePrice, error) {
	p, ok := r.o.GetLivePrice(tokenID)
	if !ok {
		return domain.LivePrice{}, fmt.Errorf("service: live price %s: %w", tokenID, domain.ErrNotFound)
	}
	return p, nil
}

func (r localReader) LivePrices(context.Context) ([]domain.LivePrice, error) {
	return r.o.Snapshot(), nil
}

// MirrorReader reads prices another process's orchestrator mirrored into the
// live price cache, applying the same virtual token rescale.
type MirrorReader struct {
	cache     domain.LivePriceCache
	virtualID string
}

// NewMirrorReader creates a MirrorReader. virtualID may be empty.
func NewMirrorReader(cache domain.LivePriceCache, virtualID string) *MirrorReader {
	return &MirrorReader{cache: cache, virtualID: virtualID}
}

func (m *MirrorReader) LivePrice(ctx context.Context, tokenID string) (domain.LivePrice, error) {
	p, err := m.cache.GetLivePrice(ctx, tokenID)
	if err != nil {
		return domain.LivePrice{}, fmt.Errorf("service: live price %s: %w", tokenID, err)
	}
	if m.virtualID == "" || tokenID == m.virtualID {
		return p, nil
	}
	v, err := m.cache.GetLivePrice(ctx, m.virtualID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.LivePrice{}, fmt.Errorf("service: live price %s: %w", m.virtualID, err)
	}
	prices := map[string]domain.LivePrice{tokenID: p}
	if err == nil {
		prices[m.virtualID] = v
	}
	return rescale(p, virtualMultiplier(prices, m.virtualID, tokenID)), nil
}

func (m *MirrorReader) LivePrices(ctx context.Context) ([]domain.LivePrice, error) {
	all, err := m.cache.GetLivePrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: live prices: %w", err)
	}
	return sortedPrices(rescaleAll(all, m.virtualID)), nil
}

// StrictQuoter fetches a fresh quote for a pair.
type StrictQuoter interface {
	QuoteStrict(ctx context.Context, network, pairAddress string) (*domain.Quote, error)
}

// SettlementPrices prices duel and round picks. Tracked tokens use the live
// price and its baseline; picks carrying their own pair fall back to a
// strict quote.
type SettlementPrices struct {
	reader PriceReader
	quotes StrictQuoter
}

// NewSettlementPrices creates a SettlementPrices. quotes may be nil.
func NewSettlementPrices(reader PriceReader, quotes StrictQuoter) *SettlementPrices {
	return &SettlementPrices{reader: reader, quotes: quotes}
}

// PickPrice implements settlement.PriceSource.
func (s *SettlementPrices) PickPrice(ctx context.Context, pick domain.DuelPick) (float64, float64, bool) {
	if b, c, ok := s.TokenPrice(ctx, pick.TokenID); ok {
		return b, c, true
	}
	if s.quotes == nil || pick.Network == "" || pick.PairAddress == "" {
		return 0, 0, false
	}
	q, err := s.quotes.QuoteStrict(ctx, pick.Network, pick.PairAddress)
	if err != nil || q == nil {
		return 0, 0, false
	}
	return Baseline(q.PriceUSD, q.ChangePct24h), q.PriceUSD, true
}

// TokenPrice implements settlement.TokenPrices.
func (s *SettlementPrices) TokenPrice(ctx context.Context, tokenID string) (float64, float64, bool) {
	if tokenID == "" {
		return 0, 0, false
	}
	p, err := s.reader.LivePrice(ctx, tokenID)
	if err != nil || p.PriceUSD <= 0 {
		return 0, 0, false
	}
	return p.BaselinePrice, p.PriceUSD, true
}

var (
	_ settlement.PriceSource = (*SettlementPrices)(nil)
	_ settlement.TokenPrices = (*SettlementPrices)(nil)
)
