package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/settlement"
)

// ScoreHandler exposes the scoring formula.
type ScoreHandler struct {
	prices settlement.TokenPrices
	logger *slog.Logger
}

// NewScoreHandler creates a ScoreHandler. prices backs round scoring.
func NewScoreHandler(prices settlement.TokenPrices, logger *slog.Logger) *ScoreHandler {
	return &ScoreHandler{prices: prices, logger: logHandler(logger, "score")}
}

type scoreRequest struct {
	Baseline       float64          `json:"baseline"`
	Current        float64          `json:"current"`
	Direction      domain.Direction `json:"direction"`
	DuplicateIndex int              `json:"duplicate_index"`
	BoostLevel     int              `json:"boost_level"`
	BoostActive    bool             `json:"boost_active"`
}

// ScorePick scores one pick.
// POST /api/score
func (h *ScoreHandler) ScorePick(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Direction.Valid() {
		writeError(w, http.StatusBadRequest, "direction must be up or down")
		return
	}
	pts := settlement.Score(req.Baseline, req.Current, req.Direction, req.DuplicateIndex, req.BoostLevel, req.BoostActive)
	writeJSON(w, http.StatusOK, map[string]int{"points": pts})
}

type roundRequest struct {
	Picks       []domain.RoundPick `json:"picks"`
	BoostLevel  int                `json:"boost_level"`
	BoostActive bool               `json:"boost_active"`
}

// ScoreRound scores a single-player round against live prices. Duplicate
// indexes are assigned from pick order. Lock state sent by the client is
// dropped; every pick is scored live.
// POST /api/rounds/score
func (h *ScoreHandler) ScoreRound(w http.ResponseWriter, r *http.Request) {
	var req roundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for i, p := range req.Picks {
		if p.TokenID == "" || !p.Direction.Valid() {
			writeError(w, http.StatusBadRequest, "every pick needs a token_id and an up or down direction")
			return
		}
		req.Picks[i].Locked = false
		req.Picks[i].LockedPriceAtLock = nil
		req.Picks[i].LockedPoints = nil
	}
	settlement.AssignDuplicateIndexes(req.Picks)
	total, perPick := settlement.ScoreRound(r.Context(), req.Picks, h.prices,
		settlement.Boost{Level: req.BoostLevel, Active: req.BoostActive})
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"per_pick": perPick,
	})
}
