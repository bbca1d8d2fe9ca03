package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

var created = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// staticPrices prices every pick from a map of token id to (baseline, current).
type staticPrices map[string][2]float64

func (s staticPrices) PickPrice(_ context.Context, p domain.DuelPick) (float64, float64, bool) {
	v, ok := s[p.TokenID]
	return v[0], v[1], ok
}

func (s staticPrices) TokenPrice(_ context.Context, tokenID string) (float64, float64, bool) {
	v, ok := s[tokenID]
	return v[0], v[1], ok
}

func picks(ids ...string) []domain.DuelPick {
	out := make([]domain.DuelPick, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.DuelPick{TokenID: id, Direction: domain.DirectionUp})
	}
	return out
}

func readyRoom(t *testing.T) domain.DuelRoom {
	t.Helper()
	room := NewRoom("r1", "alice", 100, created)
	require.NoError(t, Join(&room, "bob"))
	require.NoError(t, SetPicks(&room, "alice", picks("a", "b", "c", "d", "e")))
	require.NoError(t, SetPicks(&room, "bob", picks("a", "b", "c", "d", "e")))
	return room
}

func TestNewRoom(t *testing.T) {
	room := NewRoom("r1", "alice", 100, created)
	assert.Equal(t, "2026-03-14", room.BaseDay)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), room.EvalAt)
	assert.Equal(t, domain.RoomOpen, room.Status)
	assert.True(t, room.Host.EntryPaid)
}

func TestRoomLifecycle(t *testing.T) {
	room := readyRoom(t)
	assert.Equal(t, domain.RoomReady, room.Status)

	for _, user := range []string{"alice", "bob"} {
		for i := 0; i < domain.PicksPerSide; i++ {
			require.NoError(t, LockPick(&room, user, i, 1.5, created.Add(time.Hour)))
		}
	}
	assert.True(t, room.Host.Locked)
	assert.True(t, room.Guest.Locked)
	assert.Equal(t, domain.RoomLocked, room.Status)

	err := LockPick(&room, "alice", 0, 9, created)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestJoinAndCancelRules(t *testing.T) {
	room := NewRoom("r1", "alice", 100, created)
	assert.ErrorIs(t, Join(&room, "alice"), domain.ErrInvalidState)
	assert.ErrorIs(t, Cancel(&room, "mallory"), domain.ErrInvalidState)

	require.NoError(t, Join(&room, "bob"))
	assert.ErrorIs(t, Join(&room, "carol"), domain.ErrInvalidState)
	assert.ErrorIs(t, Cancel(&room, "alice"), domain.ErrInvalidState, "cannot cancel once a guest joined")

	open := NewRoom("r2", "alice", 100, created)
	require.NoError(t, Cancel(&open, "alice"))
	assert.Equal(t, domain.RoomCancelled, open.Status)
	_, err := Settle(context.Background(), &open, nil, open.EvalAt)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestLockedPicksCannotChange(t *testing.T) {
	room := readyRoom(t)
	require.NoError(t, LockPick(&room, "alice", 2, 4.2, created))

	assert.ErrorIs(t, LockPick(&room, "alice", 2, 1, created), domain.ErrPickLocked)
	assert.ErrorIs(t, SetPicks(&room, "alice", picks("a", "b", "x", "d", "e")), domain.ErrPickLocked)
	assert.ErrorIs(t, SetPicks(&room, "alice", picks("a")), domain.ErrPickLocked)

	kept := append([]domain.DuelPick(nil), room.Host.Picks...)
	kept[0].TokenID = "z"
	require.NoError(t, SetPicks(&room, "alice", kept))
	assert.Equal(t, 4.2, room.Host.Picks[2].LockedSignedPct)
}

func TestSetPicksCannotLock(t *testing.T) {
	tests := []struct {
		name string
		pick domain.DuelPick
	}{
		{"locked flag", domain.DuelPick{TokenID: "a", Direction: domain.DirectionUp, Locked: true, LockedSignedPct: 9999}},
		{"signed pct only", domain.DuelPick{TokenID: "a", Direction: domain.DirectionUp, LockedSignedPct: 50}},
		{"lock time only", domain.DuelPick{TokenID: "a", Direction: domain.DirectionUp, LockedAt: created}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := readyRoom(t)
			before := append([]domain.DuelPick(nil), room.Host.Picks...)

			err := SetPicks(&room, "alice", []domain.DuelPick{tt.pick})
			assert.ErrorIs(t, err, domain.ErrInvalidPick)
			assert.Equal(t, before, room.Host.Picks)
			assert.False(t, room.Host.Locked)
		})
	}
}

func TestForgedLockDoesNotDecideDuel(t *testing.T) {
	room := readyRoom(t)
	forged := picks("a", "b", "c", "d", "e")
	forged[0].Locked = true
	forged[0].LockedSignedPct = 9999
	require.ErrorIs(t, SetPicks(&room, "alice", forged), domain.ErrInvalidPick)

	res, err := Settle(context.Background(), &room, nil, room.EvalAt)
	require.NoError(t, err)
	assert.Zero(t, res.HostScore)
	assert.NotEqual(t, domain.WinnerHost, res.Winner)
}

func TestSetPicksValidation(t *testing.T) {
	room := readyRoom(t)
	assert.ErrorIs(t, SetPicks(&room, "alice", picks("a", "b", "c", "d", "e", "f")), domain.ErrInvalidPick)
	assert.ErrorIs(t, SetPicks(&room, "alice", []domain.DuelPick{{TokenID: "a", Direction: "left"}}), domain.ErrInvalidPick)
	assert.ErrorIs(t, SetPicks(&room, "mallory", picks("a")), domain.ErrNotFound)
	assert.ErrorIs(t, LockPick(&room, "alice", 7, 1, created), domain.ErrInvalidPick)
}

func TestSettleBeforeEvalAt(t *testing.T) {
	room := readyRoom(t)
	_, err := Settle(context.Background(), &room, nil, room.EvalAt.Add(-time.Second))
	assert.ErrorIs(t, err, domain.ErrNotDue)
	assert.Equal(t, domain.RoomReady, room.Status)
}

func TestSettleHostWins(t *testing.T) {
	room := readyRoom(t)
	room.Host.Picks = []domain.DuelPick{
		{TokenID: "a", Direction: domain.DirectionUp, Locked: true, LockedSignedPct: 100},
		{TokenID: "b", Direction: domain.DirectionUp, Locked: true, LockedSignedPct: 20.5},
	}
	room.Guest.Picks = []domain.DuelPick{
		{TokenID: "a", Direction: domain.DirectionDown, Locked: true, LockedSignedPct: 80},
	}

	res, err := Settle(context.Background(), &room, nil, room.EvalAt)
	require.NoError(t, err)
	assert.Equal(t, 120.5, res.HostScore)
	assert.Equal(t, 80.0, res.GuestScore)
	assert.Equal(t, domain.WinnerHost, res.Winner)
	assert.Equal(t, []domain.Credit{
		{UserID: "alice", RoomID: "r1", Amount: 200, Competitive: true, Reason: domain.CreditReasonWin},
	}, res.Payouts)
	assert.Equal(t, domain.RoomSettled, room.Status)
}

func TestSettleDrawRefundsBankOnly(t *testing.T) {
	room := readyRoom(t)
	prices := staticPrices{"a": {1, 1.1}, "b": {1, 1.1}, "c": {1, 1.1}, "d": {1, 1.1}, "e": {1, 1.1}}

	res, err := Settle(context.Background(), &room, prices, room.EvalAt)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerDraw, res.Winner)
	assert.InDelta(t, 50, res.HostScore, 1e-9)
	assert.Equal(t, []domain.Credit{
		{UserID: "alice", RoomID: "r1", Amount: 100, Competitive: false, Reason: domain.CreditReasonDraw},
		{UserID: "bob", RoomID: "r1", Amount: 100, Competitive: false, Reason: domain.CreditReasonDraw},
	}, res.Payouts)
}

func TestSettleIsIdempotent(t *testing.T) {
	room := readyRoom(t)
	calls := 0
	prices := PriceSourceFunc(func(_ context.Context, p domain.DuelPick) (float64, float64, bool) {
		calls++
		if p.TokenID == "a" {
			return 1, 1.2, true
		}
		return 0, 0, false
	})
	room.Guest.Picks[0].Direction = domain.DirectionDown

	first, err := Settle(context.Background(), &room, prices, room.EvalAt)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerHost, first.Winner)
	callsAfterFirst := calls

	second, err := Settle(context.Background(), &room, prices, room.EvalAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, calls, "settled rooms are not re-scored")
}

func TestSettleDirectlyFromOpenWithoutGuest(t *testing.T) {
	room := NewRoom("r3", "alice", 100, created)
	require.NoError(t, SetPicks(&room, "alice", picks("a")))

	res, err := Settle(context.Background(), &room, staticPrices{"a": {1, 2}}, room.EvalAt)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerNone, res.Winner)
	assert.Equal(t, []domain.Credit{
		{UserID: "alice", RoomID: "r3", Amount: 100, Competitive: false, Reason: domain.CreditReasonNoShow},
	}, res.Payouts)
}

func TestPayoutsSkipFreeRooms(t *testing.T) {
	room := NewRoom("free", "alice", 0, created)
	require.NoError(t, Join(&room, "bob"))
	assert.Empty(t, Payouts(&room, domain.WinnerHost))
	assert.Empty(t, Payouts(&room, domain.WinnerDraw))
}
