package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tokenduel/internal/cache/redis"
	"github.com/alanyoungcy/tokenduel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addr(b byte) string {
	return "0x" + strings.Repeat(string(b), 40)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewFromClient(rdb, "td:")
}

// fakeQuotes serves strict and secondary quotes keyed by pair address.
type fakeQuotes struct {
	mu          sync.Mutex
	strict      map[string]*domain.Quote
	secondary   map[string]*domain.Quote
	strictCalls []string
	hints       []string
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		strict:    make(map[string]*domain.Quote),
		secondary: make(map[string]*domain.Quote),
	}
}

func (f *fakeQuotes) set(m map[string]*domain.Quote, pair string, q *domain.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m[pair] = q
}

func (f *fakeQuotes) QuoteStrict(_ context.Context, network, pair string) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strictCalls = append(f.strictCalls, network+":"+pair)
	return f.strict[pair], nil
}

func (f *fakeQuotes) SecondaryQuote(_ context.Context, ref domain.PairRef, hint string) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, hint)
	return f.secondary[ref.PairAddress], nil
}

func (f *fakeQuotes) strictCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.strictCalls)
}

func quoteOf(price float64, chg *float64, source string) *domain.Quote {
	return &domain.Quote{PriceUSD: price, ChangePct24h: chg, Source: source}
}

type published struct {
	channel string
	payload []byte
}

// fakeBus records publishes.
type fakeBus struct {
	mu   sync.Mutex
	msgs []published
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{channel: channel, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

// fakeLedger applies each room's settlement once.
type fakeLedger struct {
	mu      sync.Mutex
	rooms   map[string]bool
	credits []domain.Credit
	calls   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rooms: make(map[string]bool)}
}

func (l *fakeLedger) RecordSettlement(_ context.Context, room domain.DuelRoom) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.rooms[room.ID] {
		return false, nil
	}
	l.rooms[room.ID] = true
	l.credits = append(l.credits, room.Result.Payouts...)
	return true, nil
}

func (l *fakeLedger) Balance(_ context.Context, userID string) (int64, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var bank, competitive int64
	for _, c := range l.credits {
		if c.UserID != userID {
			continue
		}
		bank += c.Amount
		if c.Competitive {
			competitive += c.Amount
		}
	}
	return bank, competitive, nil
}

// staticPrices prices picks by token id as (baseline, current).
type staticPrices map[string][2]float64

func (s staticPrices) PickPrice(_ context.Context, p domain.DuelPick) (float64, float64, bool) {
	v, ok := s[p.TokenID]
	return v[0], v[1], ok
}

// fakeBlob records uploads.
type fakeBlob struct {
	path        string
	contentType string
	body        []byte
}

func (b *fakeBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.path, b.contentType, b.body = path, contentType, body
	return nil
}

type fakeRecorder struct {
	day   string
	key   string
	count int
}

func (r *fakeRecorder) RecordSnapshot(_ context.Context, day, key string, n int) error {
	r.day, r.key, r.count = day, key, n
	return nil
}

// fixedReader serves a fixed board.
type fixedReader []domain.LivePrice

func (r fixedReader) LivePrice(_ context.Context, id string) (domain.LivePrice, error) {
	for _, p := range r {
		if p.TokenID == id {
			return p, nil
		}
	}
	return domain.LivePrice{}, domain.ErrNotFound
}

func (r fixedReader) LivePrices(context.Context) ([]domain.LivePrice, error) {
	return r, nil
}
