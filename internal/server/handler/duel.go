package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// DuelService is the duel room API the handler drives.
type DuelService interface {
	CreateRoom(ctx context.Context, hostID string) (domain.DuelRoom, error)
	Room(ctx context.Context, id string) (domain.DuelRoom, error)
	JoinRoom(ctx context.Context, roomID, guestID string) (domain.DuelRoom, error)
	CancelRoom(ctx context.Context, roomID, userID string) (domain.DuelRoom, error)
	SetPicks(ctx context.Context, roomID, userID string, picks []domain.DuelPick) (domain.DuelRoom, error)
	LockPick(ctx context.Context, roomID, userID string, index int) (domain.DuelRoom, error)
	Settle(ctx context.Context, roomID string) (domain.SettlementResult, error)
	Balance(ctx context.Context, userID string) (bank int64, competitive int64, err error)
}

// DuelHandler serves duel room endpoints.
type DuelHandler struct {
	duels  DuelService
	logger *slog.Logger
}

// NewDuelHandler creates a DuelHandler.
func NewDuelHandler(duels DuelService, logger *slog.Logger) *DuelHandler {
	return &DuelHandler{duels: duels, logger: logHandler(logger, "duels")}
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type picksRequest struct {
	UserID string            `json:"user_id"`
	Picks  []domain.DuelPick `json:"picks"`
}

type lockRequest struct {
	UserID string `json:"user_id"`
	Index  int    `json:"index"`
}

// CreateRoom opens a room.
// POST /api/duels
func (h *DuelHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.duels.CreateRoom(r.Context(), req.UserID)
	h.respond(w, r, http.StatusCreated, room, err)
}

// GetRoom returns a room.
// GET /api/duels/{id}
func (h *DuelHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.duels.Room(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, room, err)
}

// JoinRoom seats the guest.
// POST /api/duels/{id}/join
func (h *DuelHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.duels.JoinRoom(r.Context(), r.PathValue("id"), req.UserID)
	h.respond(w, r, http.StatusOK, room, err)
}

// CancelRoom cancels an unjoined room.
// POST /api/duels/{id}/cancel
func (h *DuelHandler) CancelRoom(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.duels.CancelRoom(r.Context(), r.PathValue("id"), req.UserID)
	h.respond(w, r, http.StatusOK, room, err)
}

// SetPicks replaces a side's picks.
// PUT /api/duels/{id}/picks
func (h *DuelHandler) SetPicks(w http.ResponseWriter, r *http.Request) {
	var req picksRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.duels.SetPicks(r.Context(), r.PathValue("id"), req.UserID, req.Picks)
	h.respond(w, r, http.StatusOK, room, err)
}

// LockPick locks one pick at its current move.
// POST /api/duels/{id}/picks/lock
func (h *DuelHandler) LockPick(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.duels.LockPick(r.Context(), r.PathValue("id"), req.UserID, req.Index)
	h.respond(w, r, http.StatusOK, room, err)
}

// Settle settles a due room.
// POST /api/duels/{id}/settle
func (h *DuelHandler) Settle(w http.ResponseWriter, r *http.Request) {
	res, err := h.duels.Settle(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, res, err)
}

// Balance returns a user's totals.
// GET /api/users/{id}/balance
func (h *DuelHandler) Balance(w http.ResponseWriter, r *http.Request) {
	bank, competitive, err := h.duels.Balance(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, map[string]int64{
		"bank":        bank,
		"competitive": competitive,
	}, err)
}

func (h *DuelHandler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, status, v)
}
