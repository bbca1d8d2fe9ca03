package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// PriceReader serves live token prices.
type PriceReader interface {
	LivePrice(ctx context.Context, tokenID string) (domain.LivePrice, error)
	LivePrices(ctx context.Context) ([]domain.LivePrice, error)
}

// PriceHandler serves the live price board.
type PriceHandler struct {
	prices PriceReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logHandler(logger, "prices")}
}

// ListPrices returns every tracked token's price.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.prices.LivePrices(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

// GetPrice returns one token's price.
// GET /api/prices/{token}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	p, err := h.prices.LivePrice(r.Context(), r.PathValue("token"))
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
