package geckoterminal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

const pool = "0x3333333333333333333333333333333333333333"

func poolServer(t *testing.T, status int, body string) (*Client, *string) {
	t.Helper()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "", time.Second), &path
}

const twoLegBody = `{"data":{"attributes":{
	"name":"VIRTUAL / WETH 0.3%",
	"base_token_price_usd":"1.5",
	"quote_token_price_usd":"3200.25",
	"base_token":{"symbol":"VIRTUAL"},
	"quote_token":{"symbol":"WETH"},
	"reserve_in_usd":"250000",
	"price_change_percentage":{"h24":"4.2"}}}}`

func TestFetchPoolQuoteSendsProviderHeaders(t *testing.T) {
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		w.Write([]byte(twoLegBody))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "tokenduel-test", time.Second)
	_, err := c.FetchPoolQuote(context.Background(), "base", pool, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", header.Get("Accept"))
	assert.Equal(t, "tokenduel-test", header.Get("User-Agent"))
	assert.NotEmpty(t, header.Get("X-Request-Id"))
}

func TestFetchPoolQuoteLegSelection(t *testing.T) {
	tests := []struct {
		name       string
		hint       string
		wantPrice  float64
		wantChange bool
	}{
		{"hint matches base", "virtual", 1.5, true},
		{"hint matches quote", "WETH", 3200.25, false},
		{"no hint falls back to base", "", 1.5, true},
		{"unknown hint falls back to base", "DOGE", 1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, path := poolServer(t, http.StatusOK, twoLegBody)

			q, err := c.FetchPoolQuote(context.Background(), "ethereum", pool, tt.hint)
			require.NoError(t, err)
			require.NotNil(t, q)
			assert.Equal(t, "/networks/eth/pools/"+pool, *path)
			assert.Equal(t, tt.wantPrice, q.PriceUSD)
			assert.Equal(t, SourceName, q.Source)
			require.NotNil(t, q.LiquidityUSD)
			assert.Equal(t, 250000.0, *q.LiquidityUSD)
			if tt.wantChange {
				require.NotNil(t, q.ChangePct24h)
				assert.Equal(t, 4.2, *q.ChangePct24h)
			} else {
				assert.Nil(t, q.ChangePct24h)
			}
		})
	}
}

func TestFetchPoolQuoteFallsBackToQuoteLeg(t *testing.T) {
	c, _ := poolServer(t, http.StatusOK, `{"data":{"attributes":{"name":"X / USDC","base_token_price_usd":null,"quote_token_price_usd":"1.0"}}}`)

	q, err := c.FetchPoolQuote(context.Background(), "base", pool, "X")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 1.0, q.PriceUSD)
}

func TestFetchPoolQuoteErrors(t *testing.T) {
	c, _ := poolServer(t, http.StatusNotFound, `{"errors":[{"status":"404"}]}`)
	q, err := c.FetchPoolQuote(context.Background(), "base", pool, "")
	require.NoError(t, err)
	assert.Nil(t, q)

	c, _ = poolServer(t, http.StatusTooManyRequests, "")
	_, err = c.FetchPoolQuote(context.Background(), "base", pool, "")
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	c, _ = poolServer(t, http.StatusOK, `{"data":{"attributes":{}}}`)
	q, err = c.FetchPoolQuote(context.Background(), "base", pool, "")
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestNetworkID(t *testing.T) {
	assert.Equal(t, "eth", NetworkID("Ethereum"))
	assert.Equal(t, "polygon_pos", NetworkID("polygon"))
	assert.Equal(t, "zksync", NetworkID("zksync"))
}
