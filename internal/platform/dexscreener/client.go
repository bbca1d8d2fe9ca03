// Package dexscreener is the REST client for the DexScreener public API, the
// primary quote provider.
package dexscreener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/platform"
)

// DefaultBaseURL is the public DexScreener API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client is the REST client for DexScreener.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new DexScreener client.
//
// baseURL is the API root, e.g. "https://api.dexscreener.com".
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

// FetchQuotesBatch fetches quotes for several pairs on one network in a
// single request. Pairs the provider does not know are simply absent from
// the returned map, which is keyed by lowercased pair address.
func (c *Client) FetchQuotesBatch(ctx context.Context, network string, pairAddresses []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(pairAddresses))
	if len(pairAddresses) == 0 {
		return out, nil
	}

	escaped := make([]string, 0, len(pairAddresses))
	for _, a := range pairAddresses {
		escaped = append(escaped, url.PathEscape(strings.ToLower(a)))
	}
	path := fmt.Sprintf("/latest/dex/pairs/%s/%s", url.PathEscape(network), strings.Join(escaped, ","))

	pairs, err := c.getPairs(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: fetch pairs %s: %w", network, err)
	}

	fetchedAt := c.now().UnixMilli()
	for _, p := range pairs {
		q := p.ToQuote(network, fetchedAt)
		if q == nil {
			continue
		}
		out[p.PairAddress] = *q
	}
	return out, nil
}

// FetchQuote fetches a single pair. It returns nil, nil when the provider
// has no priced entry for the address.
func (c *Client) FetchQuote(ctx context.Context, network, pairAddress string) (*domain.Quote, error) {
	addr := strings.ToLower(strings.TrimSpace(pairAddress))
	path := fmt.Sprintf("/latest/dex/pairs/%s/%s", url.PathEscape(network), url.PathEscape(addr))

	pairs, err := c.getPairs(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: fetch pair %s:%s: %w", network, addr, err)
	}

	fetchedAt := c.now().UnixMilli()
	for _, p := range pairs {
		if p.PairAddress == addr {
			return p.ToQuote(network, fetchedAt), nil
		}
	}
	return nil, nil
}

// Search queries pairs by free text (symbol, name or address).
func (c *Client) Search(ctx context.Context, query string) ([]Pair, error) {
	params := url.Values{}
	params.Set("q", query)

	pairs, err := c.getPairs(ctx, "/latest/dex/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("dexscreener: search %q: %w", query, err)
	}
	return pairs, nil
}

// TokenPairs lists the pairs a token trades in on one network.
func (c *Client) TokenPairs(ctx context.Context, network, tokenAddress string) ([]Pair, error) {
	path := fmt.Sprintf("/latest/dex/tokens/%s/%s", url.PathEscape(network), url.PathEscape(strings.ToLower(tokenAddress)))
	pairs, err := c.getPairs(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: token pairs %s:%s: %w", network, tokenAddress, err)
	}
	return pairs, nil
}

// TokenPairsGlobal lists the pairs a token trades in across all networks.
func (c *Client) TokenPairsGlobal(ctx context.Context, tokenAddress string) ([]Pair, error) {
	path := fmt.Sprintf("/latest/dex/tokens/%s", url.PathEscape(strings.ToLower(tokenAddress)))
	pairs, err := c.getPairs(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: token pairs %s: %w", tokenAddress, err)
	}
	return pairs, nil
}

// getPairs performs the GET and decodes any of the pair payload shapes.
// A 404 or other non-retryable 4xx is an empty result, not an error.
func (c *Client) getPairs(ctx context.Context, path string) ([]Pair, error) {
	body, err := c.doGet(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	pairs, err := decodePairs(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode pairs: %v", domain.ErrUpstream, err)
	}
	return pairs, nil
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

	if err := CheckHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// CheckHTTPStatus maps a provider status code onto the domain error
// taxonomy: 429 is rate limiting, 5xx is transient, any other non-2xx is a
// confirmed absence.
func CheckHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := truncate(string(body), 256)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrNotFound, statusCode, bodyStr)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
