package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/platform/dexscreener"
)

func newTestResolver(src PairSearcher, spacing time.Duration) *Resolver {
	return NewResolver(src, fastRetry(), spacing, testLogger())
}

func TestSanitizePairAddress(t *testing.T) {
	want := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	tests := []struct {
		in   string
		want string
	}{
		{want, want},
		{"0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD", want},
		{"pools/" + want, want},
		{"https://dexscreener.com/base/" + want + "?x=1", want},
		{"  " + want + "  ", want},
		{"0x1234", ""},
		{"not an address", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizePairAddress(tt.in), tt.in)
	}
}

func TestParseSourceURL(t *testing.T) {
	pair := "0x1111111111111111111111111111111111111111"
	tests := []struct {
		name    string
		url     string
		network string
		ok      bool
	}{
		{"dexscreener", "https://dexscreener.com/base/" + pair, "base", true},
		{"gecko web", "https://www.geckoterminal.com/eth/pools/" + pair, "eth", true},
		{"gecko api", "https://api.geckoterminal.com/api/v2/networks/base/pools/" + pair, "base", true},
		{"gecko api path", "https://x.test/networks/base/pools/" + pair, "base", true},
		{"locale", "https://www.geckoterminal.com/en/base/pools/" + pair, "base", true},
		{"locale short", "https://dexscreener.com/pt-BR/arbitrum/" + pair, "arbitrum", true},
		{"query", "https://example.com/chart?chainId=Ethereum&pairAddress=" + pair, "ethereum", true},
		{"no pair", "https://dexscreener.com/base", "", false},
		{"garbage", "::", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := ParseSourceURL(tt.url)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, domain.PairRef{Network: tt.network, PairAddress: pair}, ref)
			}
		})
	}
}

func TestResolveExplicitPairNeverSearches(t *testing.T) {
	src := newFakePrimary()
	r := newTestResolver(src, time.Millisecond)

	ref, err := r.Resolve(context.Background(), domain.TokenConfig{
		ID:          "aaa",
		Symbol:      "AAA",
		Network:     "Base",
		PairAddress: "https://dexscreener.com/base/0x1111111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, domain.NewPairRef("base", addr(1)), *ref)
	assert.Empty(t, src.searchCalls)
}

func TestResolveBadExplicitPairIsNil(t *testing.T) {
	src := newFakePrimary()
	r := newTestResolver(src, time.Millisecond)

	ref, err := r.Resolve(context.Background(), domain.TokenConfig{ID: "aaa", Symbol: "AAA", Network: "base", PairAddress: "oops"})
	require.NoError(t, err)
	assert.Nil(t, ref)
	assert.Empty(t, src.searchCalls)
}

func TestResolveSearchScoring(t *testing.T) {
	now := time.Now()
	src := newFakePrimary()
	src.searchPairs["AAA"] = []dexscreener.Pair{
		// Deep liquidity but the wrong symbol: rejected in strict mode.
		{ChainID: "base", PairAddress: addr(1), BaseToken: dexscreener.Token{Symbol: "AAAX"}, LiquidityUSD: liq(1e9)},
		// Right symbol on another network: filtered out.
		{ChainID: "ethereum", PairAddress: addr(2), BaseToken: dexscreener.Token{Symbol: "AAA"}, LiquidityUSD: liq(1e8)},
		// Right symbol and network, shallow.
		{ChainID: "base", PairAddress: addr(3), BaseToken: dexscreener.Token{Symbol: "aaa"}, LiquidityUSD: liq(1e3)},
		// Right symbol and network, deeper and older.
		{ChainID: "base", PairAddress: addr(4), BaseToken: dexscreener.Token{Symbol: "AAA"}, LiquidityUSD: liq(1e5),
			PairCreatedAt: now.Add(-200 * 24 * time.Hour).UnixMilli()},
	}
	r := newTestResolver(src, time.Millisecond)

	token := domain.TokenConfig{ID: "aaa", Symbol: "AAA", Name: "Alpha", Network: "base"}
	ref, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, domain.NewPairRef("base", addr(4)), *ref)

	// Memoized: no second search.
	_, err = r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, src.searchCalls)
}

func TestResolveLenientFallbackAndNameSearch(t *testing.T) {
	src := newFakePrimary()
	src.searchPairs["Alpha"] = []dexscreener.Pair{
		{ChainID: "base", PairAddress: addr(5), BaseToken: dexscreener.Token{Symbol: "WAAA"}, LiquidityUSD: liq(100)},
		{ChainID: "base", PairAddress: addr(6), BaseToken: dexscreener.Token{Symbol: "ZZZ"}, LiquidityUSD: liq(50)},
	}
	r := newTestResolver(src, time.Millisecond)

	ref, err := r.Resolve(context.Background(), domain.TokenConfig{ID: "aaa", Symbol: "AAA", Name: "Alpha", Network: "base"})
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, addr(5), ref.PairAddress)
	assert.Equal(t, []string{"AAA", "Alpha"}, src.searchCalls)
}

func TestResolveNoMatch(t *testing.T) {
	src := newFakePrimary()
	r := newTestResolver(src, time.Millisecond)

	ref, err := r.Resolve(context.Background(), domain.TokenConfig{ID: "nope", Symbol: "NOPE", Network: "base"})
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestSearchesAreSerializedAndSpaced(t *testing.T) {
	src := newFakePrimary()
	spacing := 40 * time.Millisecond
	r := newTestResolver(src, spacing)

	var wg sync.WaitGroup
	for _, sym := range []string{"A1", "A2", "A3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(context.Background(), domain.TokenConfig{ID: sym, Symbol: sym, Network: "base"})
		}()
	}
	wg.Wait()

	require.Len(t, src.searchTimes, 3)
	for i := 1; i < len(src.searchTimes); i++ {
		gap := src.searchTimes[i].Sub(src.searchTimes[i-1])
		assert.GreaterOrEqual(t, gap, spacing-5*time.Millisecond)
	}
}

func TestBestPairForToken(t *testing.T) {
	token := "0x9999999999999999999999999999999999999999"
	src := newFakePrimary()
	src.globalPairs[token] = []dexscreener.Pair{
		// Wrong chain.
		{ChainID: "ethereum", PairAddress: addr(1), BaseToken: dexscreener.Token{Address: token}, LiquidityUSD: liq(1e9)},
		// Unknown liquidity.
		{ChainID: "base", PairAddress: addr(2), BaseToken: dexscreener.Token{Address: token}},
		// Malformed pool id.
		{ChainID: "base", PairAddress: "pool-3", BaseToken: dexscreener.Token{Address: token}, LiquidityUSD: liq(1e9)},
		// Deep, but the token is not a leg.
		{ChainID: "base", PairAddress: addr(4), LiquidityUSD: liq(1e8)},
		// Token is the quote leg.
		{ChainID: "base", PairAddress: addr(5), QuoteToken: dexscreener.Token{Address: "0x9999999999999999999999999999999999999999"}, LiquidityUSD: liq(1e4)},
		// Token is the base leg, deeper.
		{ChainID: "base", PairAddress: addr(6), BaseToken: dexscreener.Token{Address: "0x9999999999999999999999999999999999999999"}, LiquidityUSD: liq(1e5)},
	}
	r := newTestResolver(src, time.Millisecond)

	ref, err := r.BestPairForToken(context.Background(), "base", token)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, domain.NewPairRef("base", addr(6)), *ref)
	assert.Equal(t, 1, src.tokenCalls)
	assert.Equal(t, 1, src.globalCalls)
	assert.Equal(t, []string{token}, src.searchCalls)

	_, err = r.BestPairForToken(context.Background(), "base", token)
	require.NoError(t, err)
	assert.Equal(t, 1, src.tokenCalls, "second lookup is memoized")
}

func TestBestPairForTokenFallsBackToSearch(t *testing.T) {
	token := "0x9999999999999999999999999999999999999999"
	src := newFakePrimary()
	src.searchPairs[token] = []dexscreener.Pair{
		{ChainID: "base", PairAddress: addr(7), BaseToken: dexscreener.Token{Address: token}, LiquidityUSD: liq(10)},
	}
	r := newTestResolver(src, time.Millisecond)

	ref, err := r.BestPairForToken(context.Background(), "base", token)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, addr(7), ref.PairAddress)
	assert.Equal(t, []string{token}, src.searchCalls)
}

func TestBestPairForTokenCombinesStages(t *testing.T) {
	token := "0x9999999999999999999999999999999999999999"
	src := newFakePrimary()
	// The chain endpoint only knows a deep pool without the token as a leg.
	src.tokenPairs["base:"+token] = []dexscreener.Pair{
		{ChainID: "base", PairAddress: addr(4), LiquidityUSD: liq(1e8)},
	}
	src.globalPairs[token] = []dexscreener.Pair{
		{ChainID: "base", PairAddress: addr(4), LiquidityUSD: liq(1e8)},
	}
	src.searchPairs[token] = []dexscreener.Pair{
		{ChainID: "base", PairAddress: addr(7), QuoteToken: dexscreener.Token{Address: token}, LiquidityUSD: liq(10)},
	}
	r := newTestResolver(src, time.Millisecond)

	ref, err := r.BestPairForToken(context.Background(), "base", token)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, addr(7), ref.PairAddress, "a later pool trading the token beats an earlier one that does not")
}

func TestValidPoolAddress(t *testing.T) {
	assert.True(t, ValidPoolAddress("base", addr(1)))
	assert.False(t, ValidPoolAddress("base", "1111111111111111111111111111111111111111"))
	assert.False(t, ValidPoolAddress("base", "0x1234"))
	assert.True(t, ValidPoolAddress("solana", "8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj"))
	assert.False(t, ValidPoolAddress("solana", ""))
}
