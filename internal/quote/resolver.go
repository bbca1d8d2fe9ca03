package quote

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/platform/dexscreener"
)

// DefaultSearchSpacing is the minimum gap between two upstream searches.
const DefaultSearchSpacing = 400 * time.Millisecond

var pairAddressRe = regexp.MustCompile(`0x[0-9a-f]{40}`)

// nonEVMNetworks lists networks whose pool ids are not 20-byte hex addresses.
var nonEVMNetworks = map[string]bool{
	"solana": true,
	"sui":    true,
	"aptos":  true,
	"ton":    true,
	"tron":   true,
	"near":   true,
}

// PairSearcher is the subset of the primary provider the resolver needs.
type PairSearcher interface {
	Search(ctx context.Context, query string) ([]dexscreener.Pair, error)
	TokenPairs(ctx context.Context, network, tokenAddress string) ([]dexscreener.Pair, error)
	TokenPairsGlobal(ctx context.Context, tokenAddress string) ([]dexscreener.Pair, error)
}

// Resolver maps logical tokens to concrete pools. Upstream searches are
// serialized process-wide and spaced by a rate limiter.
type Resolver struct {
	source PairSearcher
	retry  RetryPolicy
	logger *slog.Logger
	now    func() time.Time

	searchMu sync.Mutex
	limiter  *rate.Limiter

	memoMu sync.RWMutex
	memo   map[string]domain.PairRef
}

// NewResolver creates a Resolver. spacing <= 0 uses DefaultSearchSpacing.
func NewResolver(source PairSearcher, retry RetryPolicy, spacing time.Duration, logger *slog.Logger) *Resolver {
	if spacing <= 0 {
		spacing = DefaultSearchSpacing
	}
	return &Resolver{
		source:  source,
		retry:   retry,
		logger:  logger.With(slog.String("component", "pair_resolver")),
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
		memo:    make(map[string]domain.PairRef),
	}
}

// SanitizePairAddress extracts the first 0x-prefixed 40 hex character
// address found anywhere in raw, or "" when there is none.
func SanitizePairAddress(raw string) string {
	return pairAddressRe.FindString(strings.ToLower(raw))
}

// Resolve returns the pool for token. Explicit pair configuration wins and
// never triggers a search, then a configured source URL, then an upstream
// search. It returns nil, nil when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, token domain.TokenConfig) (*domain.PairRef, error) {
	if strings.TrimSpace(token.PairAddress) != "" {
		addr := SanitizePairAddress(token.PairAddress)
		if addr == "" || strings.TrimSpace(token.Network) == "" {
			r.logger.Warn("unusable pair configuration",
				slog.String("token", token.ID),
				slog.String("pair_address", token.PairAddress),
			)
			return nil, nil
		}
		ref := domain.NewPairRef(token.Network, addr)
		return &ref, nil
	}

	if token.SourceURL != "" {
		if ref, ok := ParseSourceURL(token.SourceURL); ok {
			return &ref, nil
		}
	}

	if ref, ok := r.memoized(token.ID); ok {
		return &ref, nil
	}

	ref, err := r.searchToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("quote: resolve %s: %w", token.ID, err)
	}
	if ref != nil && token.ID != "" {
		r.memoMu.Lock()
		r.memo[token.ID] = *ref
		r.memoMu.Unlock()
	}
	return ref, nil
}

func (r *Resolver) memoized(tokenID string) (domain.PairRef, bool) {
	if tokenID == "" {
		return domain.PairRef{}, false
	}
	r.memoMu.RLock()
	defer r.memoMu.RUnlock()
	ref, ok := r.memo[tokenID]
	return ref, ok
}

// ParseSourceURL extracts network and pair from a provider link. Known path
// layouts are tried positionally, then the chainId/pairAddress query
// parameters.
func ParseSourceURL(raw string) (domain.PairRef, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.PairRef{}, false
	}

	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}

	var network, pair string
	api := -1
	for i := 0; i+3 < len(segs); i++ {
		if segs[i] == "networks" && segs[i+2] == "pools" {
			api = i
			break
		}
	}
	switch {
	// .../networks/{network}/pools/{pair}
	case api >= 0:
		network, pair = segs[api+1], segs[api+3]
	// /{network}/pools/{pair}
	case len(segs) >= 3 && segs[1] == "pools":
		network, pair = segs[0], segs[2]
	// /{locale}/{network}/pools/{pair}
	case len(segs) >= 4 && segs[2] == "pools" && isLocale(segs[0]):
		network, pair = segs[1], segs[3]
	// /{locale}/{network}/{pair}
	case len(segs) >= 3 && isLocale(segs[0]):
		network, pair = segs[1], segs[2]
	// /{network}/{pair}
	case len(segs) >= 2:
		network, pair = segs[0], segs[1]
	}

	if addr := SanitizePairAddress(pair); addr != "" && network != "" {
		return domain.NewPairRef(network, addr), true
	}

	q := u.Query()
	if addr := SanitizePairAddress(q.Get("pairAddress")); addr != "" && q.Get("chainId") != "" {
		return domain.NewPairRef(q.Get("chainId"), addr), true
	}
	return domain.PairRef{}, false
}

func isLocale(seg string) bool {
	if len(seg) == 2 {
		return isLetters(seg)
	}
	if len(seg) == 5 && (seg[2] == '-' || seg[2] == '_') {
		return isLetters(seg[:2]) && isLetters(seg[3:])
	}
	return false
}

func isLetters(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// searchToken searches by symbol then by name. Each result set is scored
// strictly first and leniently when nothing scores positive.
func (r *Resolver) searchToken(ctx context.Context, token domain.TokenConfig) (*domain.PairRef, error) {
	for _, q := range []string{token.Symbol, token.Name} {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		pairs, err := r.search(ctx, q)
		if err != nil {
			return nil, err
		}
		if best, ok := r.bestCandidate(pairs, token, true); ok {
			return &best, nil
		}
		if best, ok := r.bestCandidate(pairs, token, false); ok {
			r.logger.Debug("lenient search match",
				slog.String("token", token.ID),
				slog.String("pair", best.String()),
			)
			return &best, nil
		}
	}
	return nil, nil
}

// search runs one upstream search while holding the global search lock.
func (r *Resolver) search(ctx context.Context, query string) ([]dexscreener.Pair, error) {
	r.searchMu.Lock()
	defer r.searchMu.Unlock()

	var pairs []dexscreener.Pair
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		pairs, err = r.source.Search(ctx, query)
		return err
	}, nil)
	upstreamFetches.WithLabelValues("search", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (r *Resolver) bestCandidate(pairs []dexscreener.Pair, token domain.TokenConfig, strict bool) (domain.PairRef, bool) {
	network := strings.ToLower(strings.TrimSpace(token.Network))
	var (
		best      domain.PairRef
		bestScore float64
		found     bool
	)
	for _, p := range pairs {
		if network != "" && p.ChainID != network {
			continue
		}
		score, ok := scoreCandidate(p, token, r.now(), strict)
		if !ok || score <= 0 {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = domain.NewPairRef(p.ChainID, p.PairAddress), score, true
		}
	}
	return best, found
}

// scoreCandidate weighs a search hit: log10 liquidity, +20 for the token's
// network, +50 for an exact base symbol (rejected when strict and it does
// not match, +5 for a substring when lenient) and up to +2 for pair age.
func scoreCandidate(p dexscreener.Pair, token domain.TokenConfig, now time.Time, strict bool) (float64, bool) {
	if p.PairAddress == "" || p.ChainID == "" {
		return 0, false
	}

	var score float64
	if p.LiquidityUSD != nil && *p.LiquidityUSD > 0 {
		score += math.Log10(*p.LiquidityUSD + 1)
	}
	if token.Network != "" && p.ChainID == strings.ToLower(token.Network) {
		score += 20
	}

	want := strings.ToUpper(strings.TrimSpace(token.Symbol))
	have := strings.ToUpper(strings.TrimSpace(p.BaseToken.Symbol))
	if want != "" {
		switch {
		case have == want:
			score += 50
		case strict:
			return 0, false
		case have != "" && strings.Contains(have, want):
			score += 5
		}
	}

	if p.PairCreatedAt > 0 {
		ageDays := now.Sub(time.UnixMilli(p.PairCreatedAt)).Hours() / 24
		ageDays = math.Max(0, math.Min(ageDays, 365))
		score += ageDays / 365 * 2
	}
	return score, true
}

// BestPairForToken finds the most liquid pool on network that trades
// tokenAddress. Candidates from the network and global token endpoints are
// combined with a search before one is picked.
func (r *Resolver) BestPairForToken(ctx context.Context, network, tokenAddress string) (*domain.PairRef, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	token := strings.ToLower(strings.TrimSpace(tokenAddress))
	if network == "" || token == "" {
		return nil, nil
	}

	memoKey := network + ":" + token
	if ref, ok := r.memoized(memoKey); ok {
		return &ref, nil
	}

	withRetry := func(fetch func(context.Context) ([]dexscreener.Pair, error)) func(context.Context) ([]dexscreener.Pair, error) {
		return func(ctx context.Context) ([]dexscreener.Pair, error) {
			var pairs []dexscreener.Pair
			err := r.retry.Do(ctx, func(ctx context.Context) error {
				var err error
				pairs, err = fetch(ctx)
				return err
			}, nil)
			return pairs, err
		}
	}

	stages := []func(context.Context) ([]dexscreener.Pair, error){
		withRetry(func(ctx context.Context) ([]dexscreener.Pair, error) {
			return r.source.TokenPairs(ctx, network, token)
		}),
		withRetry(func(ctx context.Context) ([]dexscreener.Pair, error) {
			return r.source.TokenPairsGlobal(ctx, token)
		}),
		// search retries on its own
		func(ctx context.Context) ([]dexscreener.Pair, error) {
			return r.search(ctx, token)
		},
	}

	var (
		combined []dexscreener.Pair
		seen     = make(map[string]bool)
		firstErr error
	)
	for i, stage := range stages {
		pairs, err := stage(ctx)
		if err != nil {
			r.logger.Warn("token pair lookup failed",
				slog.String("network", network),
				slog.String("token", token),
				slog.Int("stage", i+1),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, p := range pairs {
			key := p.ChainID + ":" + strings.ToLower(p.PairAddress)
			if seen[key] {
				continue
			}
			seen[key] = true
			combined = append(combined, p)
		}
	}

	if ref, ok := pickTokenPair(combined, network, token); ok {
		r.memoMu.Lock()
		r.memo[memoKey] = ref
		r.memoMu.Unlock()
		upstreamFetches.WithLabelValues("token_fallback", "ok").Inc()
		return &ref, nil
	}
	if firstErr != nil {
		upstreamFetches.WithLabelValues("token_fallback", "error").Inc()
		return nil, fmt.Errorf("quote: best pair for %s:%s: %w", network, token, firstErr)
	}
	return nil, nil
}

// pickTokenPair keeps well-formed pools on network with known liquidity,
// prefers pools where token is one of the legs and breaks ties by liquidity.
func pickTokenPair(pairs []dexscreener.Pair, network, token string) (domain.PairRef, bool) {
	type candidate struct {
		pair   dexscreener.Pair
		hasLeg bool
		liqUSD float64
	}
	var cands []candidate
	for _, p := range pairs {
		if p.ChainID != network || p.LiquidityUSD == nil || !ValidPoolAddress(network, p.PairAddress) {
			continue
		}
		hasLeg := strings.EqualFold(p.BaseToken.Address, token) || strings.EqualFold(p.QuoteToken.Address, token)
		cands = append(cands, candidate{pair: p, hasLeg: hasLeg, liqUSD: *p.LiquidityUSD})
	}
	if len(cands) == 0 {
		return domain.PairRef{}, false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].hasLeg != cands[j].hasLeg {
			return cands[i].hasLeg
		}
		return cands[i].liqUSD > cands[j].liqUSD
	})
	return domain.NewPairRef(network, cands[0].pair.PairAddress), true
}

// ValidPoolAddress reports whether addr has the pool id shape of network.
func ValidPoolAddress(network, addr string) bool {
	if addr == "" {
		return false
	}
	if nonEVMNetworks[strings.ToLower(network)] {
		return !strings.ContainsAny(addr, "/?#: ")
	}
	return IsHexAddress(addr)
}

// IsHexAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsHexAddress(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "0x") && common.IsHexAddress(s)
}
