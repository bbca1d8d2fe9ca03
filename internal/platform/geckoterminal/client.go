// Package geckoterminal is the REST client for the GeckoTerminal pool API,
// the secondary quote provider consulted when DexScreener has no price.
package geckoterminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/platform"
)

const (
	// DefaultBaseURL is the public GeckoTerminal API root.
	DefaultBaseURL = "https://api.geckoterminal.com/api/v2"

	// SourceName identifies quotes produced by this provider.
	SourceName = "geckoterminal"
)

// networkAliases maps DexScreener chain ids to GeckoTerminal network ids
// where the two disagree.
var networkAliases = map[string]string{
	"ethereum":  "eth",
	"polygon":   "polygon_pos",
	"avalanche": "avax",
	"arbitrum":  "arbitrum",
	"optimism":  "optimism",
	"bsc":       "bsc",
	"base":      "base",
	"solana":    "solana",
}

// NetworkID returns the GeckoTerminal network id for a DexScreener chain id.
func NetworkID(network string) string {
	n := strings.ToLower(strings.TrimSpace(network))
	if alias, ok := networkAliases[n]; ok {
		return alias
	}
	return n
}

// Client is the REST client for GeckoTerminal.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new GeckoTerminal client.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

type poolResponse struct {
	Data struct {
		Attributes poolAttributes `json:"attributes"`
	} `json:"data"`
}

type tokenRef struct {
	Symbol string `json:"symbol"`
}

type poolAttributes struct {
	Name                  string            `json:"name"`
	BaseTokenPriceUSD     number            `json:"base_token_price_usd"`
	QuoteTokenPriceUSD    number            `json:"quote_token_price_usd"`
	BaseToken             *tokenRef         `json:"base_token"`
	QuoteToken            *tokenRef         `json:"quote_token"`
	ReserveInUSD          number            `json:"reserve_in_usd"`
	FDVUSD                number            `json:"fdv_usd"`
	PriceChangePercentage map[string]number `json:"price_change_percentage"`
}

// FetchPoolQuote fetches the pool and picks the USD price of the leg that
// matches symbolHint, falling back to the base leg and then the quote leg.
// It returns nil, nil when the pool is unknown or carries no usable price.
func (c *Client) FetchPoolQuote(ctx context.Context, network, poolAddress, symbolHint string) (*domain.Quote, error) {
	pool := strings.ToLower(strings.TrimSpace(poolAddress))
	path := fmt.Sprintf("/networks/%s/pools/%s", url.PathEscape(NetworkID(network)), url.PathEscape(pool))

	body, err := c.doGet(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("geckoterminal: fetch pool %s:%s: %w", network, pool, err)
	}

	var resp poolResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("geckoterminal: decode pool %s:%s: %w: %v", network, pool, domain.ErrUpstream, err)
	}

	attrs := resp.Data.Attributes
	price, isBase := pickLeg(attrs, symbolHint)
	if price <= 0 {
		return nil, nil
	}

	q := &domain.Quote{
		Network:      strings.ToLower(network),
		PairAddress:  pool,
		PriceUSD:     price,
		LiquidityUSD: attrs.ReserveInUSD.ptr(),
		FDVUSD:       attrs.FDVUSD.ptr(),
		FetchedAtMs:  c.now().UnixMilli(),
		Source:       SourceName,
		Raw:          body,
	}
	// The 24h change is reported for the base leg only.
	if isBase {
		q.ChangePct24h = attrs.PriceChangePercentage["h24"].ptr()
	}
	return q, nil
}

// pickLeg returns the chosen leg's USD price and whether it is the base leg.
func pickLeg(attrs poolAttributes, symbolHint string) (float64, bool) {
	base := attrs.BaseTokenPriceUSD.v
	quote := attrs.QuoteTokenPriceUSD.v
	baseSym, quoteSym := legSymbols(attrs)

	hint := strings.ToUpper(strings.TrimSpace(symbolHint))
	if hint != "" {
		if baseSym == hint && base > 0 {
			return base, true
		}
		if quoteSym == hint && quote > 0 {
			return quote, false
		}
	}
	if base > 0 {
		return base, true
	}
	if quote > 0 {
		return quote, false
	}
	return 0, false
}

// legSymbols reads the leg symbols from the explicit token objects, falling
// back to the "BASE / QUOTE" pool name.
func legSymbols(attrs poolAttributes) (string, string) {
	var baseSym, quoteSym string
	if attrs.BaseToken != nil {
		baseSym = strings.ToUpper(strings.TrimSpace(attrs.BaseToken.Symbol))
	}
	if attrs.QuoteToken != nil {
		quoteSym = strings.ToUpper(strings.TrimSpace(attrs.QuoteToken.Symbol))
	}
	if baseSym == "" || quoteSym == "" {
		parts := strings.SplitN(attrs.Name, "/", 2)
		if len(parts) == 2 {
			if baseSym == "" {
				baseSym = strings.ToUpper(strings.TrimSpace(parts[0]))
			}
			// Names may carry a fee tier suffix, e.g. "WETH / USDC 0.05%".
			if fields := strings.Fields(parts[1]); quoteSym == "" && len(fields) > 0 {
				quoteSym = strings.ToUpper(fields[0])
			}
		}
	}
	return baseSym, quoteSym
}

// number decodes GeckoTerminal's numeric strings. Unparseable or non-finite
// values stay unset rather than failing the payload.
type number struct {
	v  float64
	ok bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	*n = number{}
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n.v, n.ok = f, true
	return nil
}

func (n number) ptr() *float64 {
	if !n.ok {
		return nil
	}
	return domain.Float64Ptr(n.v)
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	platform.SetHeaders(req, c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUpstream, err)
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrNotFound, statusCode, bodyStr)
	}
}
