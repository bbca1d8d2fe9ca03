package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// PairRef identifies a liquidity pool on a network. Both fields are stored
// lowercased so the struct can be used directly as a map or cache key.
type PairRef struct {
	Network     string `json:"network"`
	PairAddress string `json:"pair_address"`
}

// NewPairRef normalises network and pair address into a PairRef.
func NewPairRef(network, pairAddress string) PairRef {
	return PairRef{
		Network:     strings.ToLower(strings.TrimSpace(network)),
		PairAddress: strings.ToLower(strings.TrimSpace(pairAddress)),
	}
}

// String renders the ref as "network:pair". Only used for logs and external
// key names; in-process lookups key on the struct itself.
func (p PairRef) String() string {
	return p.Network + ":" + p.PairAddress
}

// IsZero reports whether either half of the ref is missing.
func (p PairRef) IsZero() bool {
	return p.Network == "" || p.PairAddress == ""
}

// Quote is a normalised price observation for one pair from one provider.
// PriceUSD is always > 0; optional fields are nil when the provider did not
// report them.
type Quote struct {
	Network      string          `json:"network"`
	PairAddress  string          `json:"pair_address"`
	PriceUSD     float64         `json:"price_usd"`
	ChangePct24h *float64        `json:"change_pct_24h,omitempty"`
	LiquidityUSD *float64        `json:"liquidity_usd,omitempty"`
	FDVUSD       *float64        `json:"fdv_usd,omitempty"`
	FetchedAtMs  int64           `json:"fetched_at_ms"`
	Source       string          `json:"source"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// Ref returns the PairRef the quote was observed for.
func (q Quote) Ref() PairRef {
	return NewPairRef(q.Network, q.PairAddress)
}

// FetchedAt converts FetchedAtMs into a time.Time.
func (q Quote) FetchedAt() time.Time {
	return time.UnixMilli(q.FetchedAtMs).UTC()
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// LivePrice is the orchestrator's view of a tracked token's current price.
type LivePrice struct {
	TokenID       string    `json:"token_id"`
	PriceUSD      float64   `json:"price_usd"`
	BaselinePrice float64   `json:"baseline_price"`
	ChangePct     *float64  `json:"change_pct,omitempty"`
	FDV           *float64  `json:"fdv,omitempty"`
	AsOf          time.Time `json:"as_of"`
	Source        string    `json:"source"`
}

// TokenConfig is the static configuration for a token the game offers.
type TokenConfig struct {
	ID          string `toml:"id" json:"id"`
	Symbol      string `toml:"symbol" json:"symbol"`
	Name        string `toml:"name" json:"name"`
	Network     string `toml:"network" json:"network"`
	PairAddress string `toml:"pair_address" json:"pair_address,omitempty"`
	SourceURL   string `toml:"source_url" json:"source_url,omitempty"`
	// Virtual marks the token whose USD price rescales every other cached
	// price on read.
	Virtual bool `toml:"virtual" json:"virtual,omitempty"`
}
