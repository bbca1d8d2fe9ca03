package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenduel/internal/cache/redis"
	"github.com/alanyoungcy/tokenduel/internal/domain"
)

func chg(v float64) *float64 { return &v }

func TestBaseline(t *testing.T) {
	tests := []struct {
		name string
		chg  *float64
		want float64
	}{
		{"no change", nil, 100},
		{"zero", chg(0), 100},
		{"minus 100", chg(-100), 100},
		{"below minus 100", chg(-150), 100},
		{"nan", chg(math.NaN()), 100},
		{"inf", chg(math.Inf(1)), 100},
		{"up 25", chg(25), 80},
		{"down 50", chg(-50), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Baseline(100, tt.chg), 1e-9)
		})
	}
}

func TestOrchestratorInterval(t *testing.T) {
	q := newFakeQuotes()
	assert.Equal(t, DefaultPollInterval, NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{}, testLogger()).Interval())
	assert.Equal(t, MinPollInterval, NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{Interval: time.Second}, testLogger()).Interval())
	assert.Equal(t, 30*time.Second, NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{Interval: 30 * time.Second}, testLogger()).Interval())
}

func TestOrchestratorTracksExplicitPairsOnly(t *testing.T) {
	q := newFakeQuotes()
	o := NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{Tokens: []domain.TokenConfig{
		{ID: "a", Network: "ethereum", PairAddress: addr('a')},
		{ID: "b", Network: "ethereum", SourceURL: "https://dexscreener.com/ethereum/" + addr('b')},
		{ID: "c", Network: "ethereum", PairAddress: "not-a-pair"},
		{ID: "d", PairAddress: addr('d')},
	}}, testLogger())

	o.PollOnce(context.Background())
	assert.Equal(t, []string{"ethereum:" + addr('a')}, q.strictCalls)
}

func TestOrchestratorPollPrimaryThenSecondary(t *testing.T) {
	q := newFakeQuotes()
	q.set(q.strict, addr('a'), quoteOf(10, chg(25), "dexscreener"))
	q.set(q.secondary, addr('b'), quoteOf(4, nil, "geckoterminal"))

	o := NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{Tokens: []domain.TokenConfig{
		{ID: "a", Symbol: "AAA", Network: "ethereum", PairAddress: addr('a')},
		{ID: "b", Symbol: "BBB", Network: "ethereum", PairAddress: addr('b')},
	}}, testLogger())

	assert.Equal(t, 2, o.PollOnce(context.Background()))
	assert.Equal(t, []string{"BBB"}, q.hints)

	a, ok := o.GetLivePrice("a")
	require.True(t, ok)
	assert.Equal(t, 10.0, a.PriceUSD)
	assert.InDelta(t, 8.0, a.BaselinePrice, 1e-9)
	assert.Equal(t, "dexscreener", a.Source)

	b, ok := o.GetLivePrice("b")
	require.True(t, ok)
	assert.Equal(t, 4.0, b.PriceUSD)
	assert.Equal(t, 4.0, b.BaselinePrice)
	assert.Equal(t, "geckoterminal", b.Source)
}

func TestOrchestratorKeepsLastValueOnFailure(t *testing.T) {
	q := newFakeQuotes()
	q.set(q.strict, addr('a'), quoteOf(10, nil, "dexscreener"))
	o := NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{Tokens: []domain.TokenConfig{
		{ID: "a", Network: "ethereum", PairAddress: addr('a')},
	}}, testLogger())

	require.Equal(t, 1, o.PollOnce(context.Background()))
	q.set(q.strict, addr('a'), nil)
	assert.Equal(t, 0, o.PollOnce(context.Background()))

	p, ok := o.GetLivePrice("a")
	require.True(t, ok)
	assert.Equal(t, 10.0, p.PriceUSD)

	_, ok = o.GetLivePrice("missing")
	assert.False(t, ok)
}

func TestOrchestratorVirtualRescale(t *testing.T) {
	q := newFakeQuotes()
	q.set(q.strict, addr('a'), &domain.Quote{PriceUSD: 10, ChangePct24h: chg(25), FDVUSD: domain.Float64Ptr(100)})
	tokens := []domain.TokenConfig{
		{ID: "v", Network: "base", PairAddress: addr('f'), Virtual: true},
		{ID: "a", Network: "base", PairAddress: addr('a')},
	}
	o := NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{Tokens: tokens}, testLogger())

	// Virtual price unavailable: multiplier 1.
	o.PollOnce(context.Background())
	a, _ := o.GetLivePrice("a")
	assert.Equal(t, 10.0, a.PriceUSD)

	q.set(q.strict, addr('f'), quoteOf(2, nil, "dexscreener"))
	o.PollOnce(context.Background())

	a, _ = o.GetLivePrice("a")
	assert.InDelta(t, 20.0, a.PriceUSD, 1e-9)
	assert.InDelta(t, 16.0, a.BaselinePrice, 1e-9)
	require.NotNil(t, a.FDV)
	assert.InDelta(t, 200.0, *a.FDV, 1e-9)

	v, _ := o.GetLivePrice("v")
	assert.Equal(t, 2.0, v.PriceUSD)

	all := o.GetLivePrices()
	assert.InDelta(t, 20.0, all["a"].PriceUSD, 1e-9)

	snap := o.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].TokenID)
	assert.Equal(t, "v", snap[1].TokenID)
}

func TestOrchestratorPublishesAndMirrors(t *testing.T) {
	q := newFakeQuotes()
	q.set(q.strict, addr('a'), quoteOf(10, nil, "dexscreener"))
	bus := &fakeBus{}
	mirror := redis.NewLivePriceCache(newRedis(t))

	o := NewPriceOrchestrator(q, bus, mirror, OrchestratorConfig{Tokens: []domain.TokenConfig{
		{ID: "a", Network: "ethereum", PairAddress: addr('a')},
	}}, testLogger())
	o.PollOnce(context.Background())

	require.Len(t, bus.msgs, 1)
	assert.Equal(t, redis.ChannelPrices, bus.msgs[0].channel)
	var evt struct {
		Event  string             `json:"event"`
		Prices []domain.LivePrice `json:"prices"`
	}
	require.NoError(t, json.Unmarshal(bus.msgs[0].payload, &evt))
	assert.Equal(t, "prices", evt.Event)
	require.Len(t, evt.Prices, 1)
	assert.Equal(t, 10.0, evt.Prices[0].PriceUSD)

	got, err := mirror.GetLivePrice(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.PriceUSD)

	// Nothing updated: nothing published.
	q.set(q.strict, addr('a'), nil)
	o.PollOnce(context.Background())
	assert.Len(t, bus.msgs, 1)
}

func TestOrchestratorStartIsIdempotent(t *testing.T) {
	q := newFakeQuotes()
	q.set(q.strict, addr('a'), quoteOf(10, nil, "dexscreener"))
	o := NewPriceOrchestrator(q, nil, nil, OrchestratorConfig{Tokens: []domain.TokenConfig{
		{ID: "a", Network: "ethereum", PairAddress: addr('a')},
	}}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	o.Start(ctx)

	require.Eventually(t, func() bool { return q.strictCount() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, q.strictCount())
}

func TestMirrorReaderRescales(t *testing.T) {
	ctx := context.Background()
	cache := redis.NewLivePriceCache(newRedis(t))
	require.NoError(t, cache.SetLivePrice(ctx, domain.LivePrice{TokenID: "a", PriceUSD: 10, BaselinePrice: 8}))

	r := NewMirrorReader(cache, "v")
	p, err := r.LivePrice(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.PriceUSD)

	require.NoError(t, cache.SetLivePrice(ctx, domain.LivePrice{TokenID: "v", PriceUSD: 3, BaselinePrice: 3}))
	p, err = r.LivePrice(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 30.0, p.PriceUSD, 1e-9)
	assert.InDelta(t, 24.0, p.BaselinePrice, 1e-9)

	all, err := r.LivePrices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].TokenID)
	assert.InDelta(t, 30.0, all[0].PriceUSD, 1e-9)
	assert.Equal(t, 3.0, all[1].PriceUSD)

	_, err = r.LivePrice(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSettlementPrices(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	q.set(q.strict, addr('b'), quoteOf(12, chg(20), "dexscreener"))
	reader := fixedReader{{TokenID: "a", PriceUSD: 11, BaselinePrice: 10}}
	sp := NewSettlementPrices(reader, q)

	b, c, ok := sp.PickPrice(ctx, domain.DuelPick{TokenID: "a"})
	require.True(t, ok)
	assert.Equal(t, 10.0, b)
	assert.Equal(t, 11.0, c)

	b, c, ok = sp.PickPrice(ctx, domain.DuelPick{TokenID: "b", Network: "ethereum", PairAddress: addr('b')})
	require.True(t, ok)
	assert.InDelta(t, 10.0, b, 1e-9)
	assert.Equal(t, 12.0, c)

	_, _, ok = sp.PickPrice(ctx, domain.DuelPick{TokenID: "zzz"})
	assert.False(t, ok)

	_, _, ok = sp.TokenPrice(ctx, "")
	assert.False(t, ok)
}
