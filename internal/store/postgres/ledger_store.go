package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// LedgerStore implements domain.Ledger. A settlement row and its credits are
// written in one transaction; the settlement primary key and the
// (room, user, reason) uniqueness make replays credit nothing.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// RecordSettlement persists room.Result and its payouts. applied is false
// when the room had already been recorded.
func (s *LedgerStore) RecordSettlement(ctx context.Context, room domain.DuelRoom) (bool, error) {
	if room.Result == nil {
		return false, fmt.Errorf("postgres: room %s has no result: %w", room.ID, domain.ErrInvalidState)
	}
	res := room.Result

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var guestID *string
	if room.Guest != nil {
		guestID = &room.Guest.UserID
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO duel_settlements (room_id, base_day, winner, host_user_id, guest_user_id, host_score, guest_score, entry_cost, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (room_id) DO NOTHING`,
		room.ID, room.BaseDay, string(res.Winner), room.Host.UserID, guestID,
		res.HostScore, res.GuestScore, room.EntryCost, res.SettledAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert duel_settlement %s: %w", room.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, c := range res.Payouts {
		_, err := tx.Exec(ctx, `
			INSERT INTO ledger_credits (user_id, room_id, amount, competitive, reason)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (room_id, user_id, reason) DO NOTHING`,
			c.UserID, room.ID, c.Amount, c.Competitive, c.Reason,
		)
		if err != nil {
			return false, fmt.Errorf("postgres: insert ledger_credit %s/%s: %w", room.ID, c.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit settlement %s: %w", room.ID, err)
	}
	return true, nil
}

// Balance returns a user's total credits and the competitive share of them.
func (s *LedgerStore) Balance(ctx context.Context, userID string) (int64, int64, error) {
	var bank, competitive int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0),
		       COALESCE(SUM(amount) FILTER (WHERE competitive), 0)
		FROM ledger_credits
		WHERE user_id = $1`,
		userID,
	).Scan(&bank, &competitive)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: balance %s: %w", userID, err)
	}
	return bank, competitive, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*LedgerStore)(nil)
