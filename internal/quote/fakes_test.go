package quote

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/platform/dexscreener"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, RateLimitBase: time.Millisecond, TransientStep: time.Millisecond}
}

// fakePrimary is an in-memory primary provider that records its calls.
type fakePrimary struct {
	mu sync.Mutex

	quotes     map[domain.PairRef]domain.Quote
	batchErrs  []error
	singleErrs []error
	gate       chan struct{}
	started    chan struct{}

	tokenPairs  map[string][]dexscreener.Pair
	globalPairs map[string][]dexscreener.Pair
	searchPairs map[string][]dexscreener.Pair

	batchCalls  [][]string
	singleCalls []domain.PairRef
	searchCalls []string
	searchTimes []time.Time
	tokenCalls  int
	globalCalls int
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{
		quotes:      make(map[domain.PairRef]domain.Quote),
		tokenPairs:  make(map[string][]dexscreener.Pair),
		globalPairs: make(map[string][]dexscreener.Pair),
		searchPairs: make(map[string][]dexscreener.Pair),
	}
}

func (f *fakePrimary) addQuote(network, pair string, price float64) {
	ref := domain.NewPairRef(network, pair)
	f.quotes[ref] = domain.Quote{
		Network:     ref.Network,
		PairAddress: ref.PairAddress,
		PriceUSD:    price,
		FetchedAtMs: 1_700_000_000_000,
		Source:      dexscreener.SourceName,
	}
}

func (f *fakePrimary) FetchQuotesBatch(_ context.Context, network string, pairs []string) (map[string]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls = append(f.batchCalls, append([]string(nil), pairs...))
	if len(f.batchErrs) > 0 {
		err := f.batchErrs[0]
		if len(f.batchErrs) > 1 {
			f.batchErrs = f.batchErrs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]domain.Quote)
	for _, p := range pairs {
		if q, ok := f.quotes[domain.NewPairRef(network, p)]; ok {
			out[p] = q
		}
	}
	return out, nil
}

func (f *fakePrimary) FetchQuote(_ context.Context, network, pair string) (*domain.Quote, error) {
	f.mu.Lock()
	f.singleCalls = append(f.singleCalls, domain.NewPairRef(network, pair))
	gate, started := f.gate, f.started
	var err error
	if len(f.singleErrs) > 0 {
		err = f.singleErrs[0]
		f.singleErrs = f.singleErrs[1:]
	}
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[domain.NewPairRef(network, pair)]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (f *fakePrimary) Search(_ context.Context, query string) ([]dexscreener.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, query)
	f.searchTimes = append(f.searchTimes, time.Now())
	return f.searchPairs[query], nil
}

func (f *fakePrimary) TokenPairs(_ context.Context, network, token string) ([]dexscreener.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	return f.tokenPairs[network+":"+token], nil
}

func (f *fakePrimary) TokenPairsGlobal(_ context.Context, token string) ([]dexscreener.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.globalCalls++
	return f.globalPairs[token], nil
}

func (f *fakePrimary) batchCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batchCalls)
}

func (f *fakePrimary) singleCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.singleCalls)
}

type fakeSecondary struct {
	mu    sync.Mutex
	quote *domain.Quote
	hints []string
}

func (f *fakeSecondary) FetchPoolQuote(_ context.Context, network, pool, hint string) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, hint)
	if f.quote == nil {
		return nil, nil
	}
	q := *f.quote
	return &q, nil
}

func liq(v float64) *float64 { return &v }

func addr(b byte) string {
	const hex = "0123456789abcdef"
	out := []byte("0x")
	for i := 0; i < 40; i++ {
		out = append(out, hex[b%16])
	}
	return string(out)
}
