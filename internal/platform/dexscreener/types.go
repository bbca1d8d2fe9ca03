package dexscreener

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// SourceName identifies quotes produced by this provider.
const SourceName = "dexscreener"

// flexFloat unmarshals from a JSON number, a numeric string, null, or an
// object carrying a "usd" field (the shape fdv sometimes arrives in).
// Anything else leaves it invalid instead of failing the whole payload.
type flexFloat struct {
	v     float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = flexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.set(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			f.set(n)
		}
		return nil
	}

	var obj struct {
		USD *flexFloat `json:"usd"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.USD != nil {
		*f = *obj.USD
	}
	return nil
}

func (f *flexFloat) set(n float64) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return
	}
	f.v = n
	f.valid = true
}

func (f flexFloat) ptr() *float64 {
	if !f.valid {
		return nil
	}
	return domain.Float64Ptr(f.v)
}

// --------------------------------------------------------------------------
// Wire DTOs
// --------------------------------------------------------------------------

type apiToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type apiPriceChange struct {
	M5  flexFloat `json:"m5"`
	H1  flexFloat `json:"h1"`
	H6  flexFloat `json:"h6"`
	H24 flexFloat `json:"h24"`
}

type apiLiquidity struct {
	USD flexFloat `json:"usd"`
}

type apiPair struct {
	ChainID       string          `json:"chainId"`
	DexID         string          `json:"dexId"`
	URL           string          `json:"url"`
	PairAddress   string          `json:"pairAddress"`
	BaseToken     apiToken        `json:"baseToken"`
	QuoteToken    apiToken        `json:"quoteToken"`
	PriceUSD      flexFloat       `json:"priceUsd"`
	PriceChange   *apiPriceChange `json:"priceChange"`
	Liquidity     *apiLiquidity   `json:"liquidity"`
	FDV           flexFloat       `json:"fdv"`
	PairCreatedAt int64           `json:"pairCreatedAt"`
}

type apiPairsResponse struct {
	Pair  *json.RawMessage  `json:"pair"`
	Pairs []json.RawMessage `json:"pairs"`
}

// --------------------------------------------------------------------------
// Parsed types
// --------------------------------------------------------------------------

// Token is one leg of a pair.
type Token struct {
	Address string
	Name    string
	Symbol  string
}

// Pair is a validated pair record from any DexScreener endpoint.
type Pair struct {
	ChainID       string
	DexID         string
	PairAddress   string
	BaseToken     Token
	QuoteToken    Token
	PriceUSD      float64
	Change24h     *float64
	LiquidityUSD  *float64
	FDV           *float64
	PairCreatedAt int64
	Raw           json.RawMessage
}

func (p apiPair) toPair(raw json.RawMessage) Pair {
	out := Pair{
		ChainID:       strings.ToLower(p.ChainID),
		DexID:         p.DexID,
		PairAddress:   strings.ToLower(strings.TrimSpace(p.PairAddress)),
		BaseToken:     Token(p.BaseToken),
		QuoteToken:    Token(p.QuoteToken),
		FDV:           p.FDV.ptr(),
		PairCreatedAt: p.PairCreatedAt,
		Raw:           raw,
	}
	if p.PriceUSD.valid && p.PriceUSD.v > 0 {
		out.PriceUSD = p.PriceUSD.v
	}
	if p.PriceChange != nil {
		out.Change24h = p.PriceChange.H24.ptr()
	}
	if p.Liquidity != nil {
		out.LiquidityUSD = p.Liquidity.USD.ptr()
	}
	return out
}

// HasPrice reports whether the pair carries a usable USD price.
func (p Pair) HasPrice() bool {
	return p.PriceUSD > 0
}

// ToQuote converts the pair into a domain quote. It returns nil when the
// pair has no usable price so a partial record never escapes.
func (p Pair) ToQuote(network string, fetchedAtMs int64) *domain.Quote {
	if !p.HasPrice() {
		return nil
	}
	if network == "" {
		network = p.ChainID
	}
	return &domain.Quote{
		Network:      strings.ToLower(network),
		PairAddress:  p.PairAddress,
		PriceUSD:     p.PriceUSD,
		ChangePct24h: p.Change24h,
		LiquidityUSD: p.LiquidityUSD,
		FDVUSD:       p.FDV,
		FetchedAtMs:  fetchedAtMs,
		Source:       SourceName,
		Raw:          p.Raw,
	}
}

// decodePairs accepts {pair:{}}, {pairs:[]} or a bare array of pairs.
// Individual entries that fail to decode are skipped.
func decodePairs(body []byte) ([]Pair, error) {
	body = bytes.TrimSpace(body)
	var raws []json.RawMessage

	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, err
		}
	} else {
		var resp apiPairsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		raws = resp.Pairs
		if resp.Pair != nil && !bytes.Equal(bytes.TrimSpace(*resp.Pair), []byte("null")) {
			raws = append(raws, *resp.Pair)
		}
	}

	pairs := make([]Pair, 0, len(raws))
	for _, raw := range raws {
		var ap apiPair
		if err := json.Unmarshal(raw, &ap); err != nil {
			continue
		}
		if ap.PairAddress == "" {
			continue
		}
		pairs = append(pairs, ap.toPair(raw))
	}
	return pairs, nil
}
