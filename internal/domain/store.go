package domain

import (
	"context"
	"time"
)

// RoomStore is the key-value persistence for duel rooms. Read-modify-write
// races are the caller's concern; settlement serialises through LockManager.
type RoomStore interface {
	Get(ctx context.Context, id string) (DuelRoom, error)
	Save(ctx context.Context, room DuelRoom) error
	Delete(ctx context.Context, id string) error
	ListDue(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// Ledger records balance credits produced by settlement. RecordSettlement must
// be idempotent per room: a second call for a settled room credits nothing.
type Ledger interface {
	RecordSettlement(ctx context.Context, room DuelRoom) (applied bool, err error)
	Balance(ctx context.Context, userID string) (bank int64, competitive int64, err error)
}
