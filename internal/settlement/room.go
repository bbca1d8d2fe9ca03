package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// NewRoom opens a duel room for host. It evaluates at the first UTC
// midnight after now.
func NewRoom(id, hostID string, entryCost int64, now time.Time) domain.DuelRoom {
	now = now.UTC()
	return domain.DuelRoom{
		ID:        id,
		BaseDay:   now.Format(time.DateOnly),
		EvalAt:    domain.NextUTCMidnight(now),
		EntryCost: entryCost,
		Status:    domain.RoomOpen,
		Host:      domain.DuelSide{UserID: hostID, EntryPaid: true},
		CreatedAt: now,
	}
}

// Join seats the guest and moves the room to ready.
func Join(room *domain.DuelRoom, guestID string) error {
	if room.Status != domain.RoomOpen || room.Guest != nil {
		return fmt.Errorf("settlement: join room %s in status %s: %w", room.ID, room.Status, domain.ErrInvalidState)
	}
	if guestID == "" || guestID == room.Host.UserID {
		return fmt.Errorf("settlement: join room %s: host cannot join as guest: %w", room.ID, domain.ErrInvalidState)
	}
	room.Guest = &domain.DuelSide{UserID: guestID, EntryPaid: true}
	room.Status = domain.RoomReady
	return nil
}

// Cancel closes a room nobody has joined.
func Cancel(room *domain.DuelRoom, userID string) error {
	if room.Status != domain.RoomOpen || room.Guest != nil {
		return fmt.Errorf("settlement: cancel room %s in status %s: %w", room.ID, room.Status, domain.ErrInvalidState)
	}
	if userID != room.Host.UserID {
		return fmt.Errorf("settlement: cancel room %s: not the host: %w", room.ID, domain.ErrInvalidState)
	}
	room.Status = domain.RoomCancelled
	return nil
}

// SetPicks replaces a side's picks. Locked picks must be carried over
// unchanged.
func SetPicks(room *domain.DuelRoom, userID string, picks []domain.DuelPick) error {
	if room.Status != domain.RoomOpen && room.Status != domain.RoomReady {
		return fmt.Errorf("settlement: set picks in room %s status %s: %w", room.ID, room.Status, domain.ErrInvalidState)
	}
	side, err := sideOf(room, userID)
	if err != nil {
		return err
	}
	if len(picks) > domain.PicksPerSide {
		return fmt.Errorf("settlement: %d picks, at most %d: %w", len(picks), domain.PicksPerSide, domain.ErrInvalidPick)
	}
	for i, p := range picks {
		if p.TokenID == "" || !p.Direction.Valid() {
			return fmt.Errorf("settlement: pick %d: %w", i, domain.ErrInvalidPick)
		}
	}
	for i, old := range side.Picks {
		if !old.Locked {
			continue
		}
		if i >= len(picks) || !sameLockedPick(picks[i], old) {
			return fmt.Errorf("settlement: pick %d: %w", i, domain.ErrPickLocked)
		}
	}
	// Only LockPick may lock a pick.
	for i, p := range picks {
		if i < len(side.Picks) && side.Picks[i].Locked {
			continue
		}
		if p.Locked || p.LockedSignedPct != 0 || !p.LockedAt.IsZero() {
			return fmt.Errorf("settlement: pick %d carries lock state: %w", i, domain.ErrInvalidPick)
		}
	}
	side.Picks = append([]domain.DuelPick(nil), picks...)
	side.Locked = side.AllPicksLocked()
	return nil
}

// LockPick freezes one pick at signedPct. Once both sides have every pick
// locked the room moves to locked.
func LockPick(room *domain.DuelRoom, userID string, index int, signedPct float64, at time.Time) error {
	if room.Status != domain.RoomOpen && room.Status != domain.RoomReady {
		return fmt.Errorf("settlement: lock pick in room %s status %s: %w", room.ID, room.Status, domain.ErrInvalidState)
	}
	side, err := sideOf(room, userID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(side.Picks) {
		return fmt.Errorf("settlement: pick index %d: %w", index, domain.ErrInvalidPick)
	}
	pick := &side.Picks[index]
	if pick.Locked {
		return fmt.Errorf("settlement: pick %d: %w", index, domain.ErrPickLocked)
	}

	pick.Locked = true
	pick.LockedAt = at.UTC()
	pick.LockedSignedPct = signedPct
	side.Locked = side.AllPicksLocked()

	if room.Status == domain.RoomReady && room.Guest != nil && room.Host.Locked && room.Guest.Locked {
		room.Status = domain.RoomLocked
	}
	return nil
}

// Settle scores a due room, records the result on it and returns it.
// Settling an already settled room returns the stored result unchanged.
func Settle(ctx context.Context, room *domain.DuelRoom, prices PriceSource, now time.Time) (domain.SettlementResult, error) {
	switch room.Status {
	case domain.RoomSettled:
		if room.Result != nil {
			return *room.Result, nil
		}
		return domain.SettlementResult{}, fmt.Errorf("settlement: room %s settled without result: %w", room.ID, domain.ErrInvalidState)
	case domain.RoomCancelled:
		return domain.SettlementResult{}, fmt.Errorf("settlement: room %s is cancelled: %w", room.ID, domain.ErrInvalidState)
	}
	if now.Before(room.EvalAt) {
		return domain.SettlementResult{}, fmt.Errorf("settlement: room %s evaluates at %s: %w",
			room.ID, room.EvalAt.Format(time.RFC3339), domain.ErrNotDue)
	}

	res := domain.SettlementResult{SettledAt: now.UTC()}
	if room.Guest == nil {
		res.HostScore = SideScore(ctx, room.Host.Picks, prices)
		res.Winner = domain.WinnerNone
		res.Payouts = credits(room, credit(room.Host.UserID, room.EntryCost, false, domain.CreditReasonNoShow))
	} else {
		out := SettleRoomPicks(ctx, room.Host.Picks, room.Guest.Picks, prices)
		res.HostScore, res.GuestScore, res.Winner = out.HostScore, out.GuestScore, out.Winner
		res.Payouts = Payouts(room, out.Winner)
	}

	room.Status = domain.RoomSettled
	room.Result = &res
	return res, nil
}

// Payouts returns the credits owed for winner. The winner takes both
// entries as competitive earnings; a draw refunds each side bank-only.
func Payouts(room *domain.DuelRoom, winner domain.Winner) []domain.Credit {
	switch winner {
	case domain.WinnerHost:
		return credits(room, credit(room.Host.UserID, 2*room.EntryCost, true, domain.CreditReasonWin))
	case domain.WinnerGuest:
		if room.Guest == nil {
			return nil
		}
		return credits(room, credit(room.Guest.UserID, 2*room.EntryCost, true, domain.CreditReasonWin))
	case domain.WinnerDraw:
		if room.Guest == nil {
			return nil
		}
		return credits(room,
			credit(room.Host.UserID, room.EntryCost, false, domain.CreditReasonDraw),
			credit(room.Guest.UserID, room.EntryCost, false, domain.CreditReasonDraw),
		)
	}
	return nil
}

func credit(userID string, amount int64, competitive bool, reason string) domain.Credit {
	return domain.Credit{UserID: userID, Amount: amount, Competitive: competitive, Reason: reason}
}

// credits stamps the room id and drops zero-value credits.
func credits(room *domain.DuelRoom, cs ...domain.Credit) []domain.Credit {
	out := make([]domain.Credit, 0, len(cs))
	for _, c := range cs {
		if c.Amount <= 0 {
			continue
		}
		c.RoomID = room.ID
		out = append(out, c)
	}
	return out
}

func sameLockedPick(a, b domain.DuelPick) bool {
	return a.Locked && a.TokenID == b.TokenID && a.Direction == b.Direction &&
		a.LockedSignedPct == b.LockedSignedPct && a.LockedAt.Equal(b.LockedAt)
}

func sideOf(room *domain.DuelRoom, userID string) (*domain.DuelSide, error) {
	switch {
	case room.Host.UserID == userID:
		return &room.Host, nil
	case room.Guest != nil && room.Guest.UserID == userID:
		return room.Guest, nil
	}
	return nil, fmt.Errorf("settlement: user %s is not seated in room %s: %w", userID, room.ID, domain.ErrNotFound)
}
