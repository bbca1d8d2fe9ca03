package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// TokenQuoter resolves a configured token to a pool and quotes it.
type TokenQuoter interface {
	QuoteForToken(ctx context.Context, token domain.TokenConfig) (*domain.Quote, error)
}

// SnapshotIndex lists archived price snapshots.
type SnapshotIndex interface {
	SnapshotKeys(ctx context.Context, day string) ([]string, error)
}

// TokenHandler serves the configured token list, on-demand token quotes and
// the snapshot archive index.
type TokenHandler struct {
	tokens    map[string]domain.TokenConfig
	order     []string
	quotes    TokenQuoter
	snapshots SnapshotIndex
	logger    *slog.Logger
}

// NewTokenHandler creates a TokenHandler. snapshots may be nil.
func NewTokenHandler(tokens []domain.TokenConfig, quotes TokenQuoter, snapshots SnapshotIndex, logger *slog.Logger) *TokenHandler {
	h := &TokenHandler{
		tokens:    make(map[string]domain.TokenConfig, len(tokens)),
		quotes:    quotes,
		snapshots: snapshots,
		logger:    logHandler(logger, "tokens"),
	}
	for _, t := range tokens {
		h.tokens[t.ID] = t
		h.order = append(h.order, t.ID)
	}
	return h
}

// ListTokens returns the configured tokens in config order.
// GET /api/tokens
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	out := make([]domain.TokenConfig, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.tokens[id])
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

// GetTokenQuote resolves the token's pool (explicit pair, source URL or
// search) and returns its quote.
// GET /api/tokens/{id}/quote
func (h *TokenHandler) GetTokenQuote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	token, ok := h.tokens[id]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown token "+id)
		return
	}
	q, err := h.quotes.QuoteForToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "no quote for token "+id)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListSnapshots returns the archived snapshot keys for a UTC day.
// GET /api/snapshots/{day}
func (h *TokenHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	day := r.PathValue("day")
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	if h.snapshots == nil {
		writeError(w, http.StatusNotFound, "snapshot archive disabled")
		return
	}
	keys, err := h.snapshots.SnapshotKeys(r.Context(), day)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "keys": keys})
}
