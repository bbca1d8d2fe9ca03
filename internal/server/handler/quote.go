package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// QuoteSource fetches pair quotes.
type QuoteSource interface {
	Quote(ctx context.Context, network, pairAddress string) (*domain.Quote, error)
	QuoteStrict(ctx context.Context, network, pairAddress string) (*domain.Quote, error)
}

// QuoteHandler serves on-demand pair quotes.
type QuoteHandler struct {
	quotes QuoteSource
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes QuoteSource, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, logger: logHandler(logger, "quotes")}
}

// GetQuote returns the quote for a pair. strict=1 bypasses the coalescer and
// never remaps the address.
// GET /api/quotes/{network}/{pair}
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	network, pair := r.PathValue("network"), r.PathValue("pair")

	var (
		q   *domain.Quote
		err error
	)
	switch r.URL.Query().Get("strict") {
	case "1", "true":
		q, err = h.quotes.QuoteStrict(r.Context(), network, pair)
	default:
		q, err = h.quotes.Quote(r.Context(), network, pair)
	}
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "no quote for "+network+":"+pair)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
