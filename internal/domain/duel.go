package domain

import "time"

// Direction is the side of a price prediction.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// RoomStatus enumerates the duel room lifecycle states.
type RoomStatus string

const (
	RoomOpen      RoomStatus = "open"
	RoomReady     RoomStatus = "ready"
	RoomLocked    RoomStatus = "locked"
	RoomSettled   RoomStatus = "settled"
	RoomCancelled RoomStatus = "cancelled"
)

// PicksPerSide is the number of picks each duel side makes.
const PicksPerSide = 5

// DuelPick is one token prediction inside a duel side. Once Locked is true
// LockedSignedPct never changes and is the only scoring input for the pick.
type DuelPick struct {
	TokenID         string    `json:"token_id"`
	Direction       Direction `json:"direction"`
	Network         string    `json:"network,omitempty"`
	PairAddress     string    `json:"pair_address,omitempty"`
	Locked          bool      `json:"locked"`
	LockedAt        time.Time `json:"locked_at,omitempty"`
	LockedSignedPct float64   `json:"locked_signed_pct"`
}

// DuelSide is one participant of a duel room.
type DuelSide struct {
	UserID    string     `json:"user_id"`
	EntryPaid bool       `json:"entry_paid"`
	Locked    bool       `json:"locked"`
	Picks     []DuelPick `json:"picks"`
}

// AllPicksLocked reports whether the side has a full set of locked picks.
func (s DuelSide) AllPicksLocked() bool {
	if len(s.Picks) < PicksPerSide {
		return false
	}
	for _, p := range s.Picks {
		if !p.Locked {
			return false
		}
	}
	return true
}

// Winner identifies the outcome of a settled duel.
type Winner string

const (
	WinnerHost  Winner = "host"
	WinnerGuest Winner = "guest"
	WinnerDraw  Winner = "draw"
	// WinnerNone is recorded when a room settles without a guest.
	WinnerNone Winner = "none"
)

// Credit is a balance change produced by settlement.
type Credit struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
	Amount int64  `json:"amount"`
	// Competitive credits count towards leaderboard earnings; bank-only
	// refunds do not.
	Competitive bool   `json:"competitive"`
	Reason      string `json:"reason"`
}

// Credit reasons.
const (
	CreditReasonWin    = "duel_win"
	CreditReasonDraw   = "duel_draw_refund"
	CreditReasonNoShow = "duel_no_guest_refund"
)

// SettlementResult is the outcome of settling a duel room.
type SettlementResult struct {
	HostScore  float64   `json:"host_score"`
	GuestScore float64   `json:"guest_score"`
	Winner     Winner    `json:"winner"`
	Payouts    []Credit  `json:"payouts"`
	SettledAt  time.Time `json:"settled_at"`
}

// DuelRoom is a 1v1 duel. It is owned by the room registry; settlement code
// works on copies and hands them back for persistence.
type DuelRoom struct {
	ID        string            `json:"id"`
	BaseDay   string            `json:"base_day"`
	EvalAt    time.Time         `json:"eval_at"`
	EntryCost int64             `json:"entry_cost"`
	Status    RoomStatus        `json:"status"`
	Host      DuelSide          `json:"host"`
	Guest     *DuelSide         `json:"guest,omitempty"`
	Result    *SettlementResult `json:"result,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NextUTCMidnight returns the first UTC midnight strictly after t.
func NextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// RoundPick is a single-player daily round pick.
type RoundPick struct {
	TokenID           string    `json:"token_id"`
	Direction         Direction `json:"direction"`
	DuplicateIndex    int       `json:"duplicate_index"`
	Locked            bool      `json:"locked"`
	LockedPriceAtLock *float64  `json:"locked_price_at_lock,omitempty"`
	LockedPoints      *int      `json:"locked_points,omitempty"`
}

// Boost levels available in single-player rounds.
const (
	BoostNone = 0
	BoostHalf = 50
	BoostFull = 100
)
