package settlement

import (
	"context"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// PriceSource supplies the baseline and current price for a pick that was
// not locked in time. ok is false when no price can be resolved.
type PriceSource interface {
	PickPrice(ctx context.Context, pick domain.DuelPick) (baseline, current float64, ok bool)
}

// PriceSourceFunc adapts a function to PriceSource.
type PriceSourceFunc func(ctx context.Context, pick domain.DuelPick) (float64, float64, bool)

func (f PriceSourceFunc) PickPrice(ctx context.Context, pick domain.DuelPick) (float64, float64, bool) {
	return f(ctx, pick)
}

// Outcome is the scored result of a pair of duel sides.
type Outcome struct {
	HostScore  float64       `json:"host_score"`
	GuestScore float64       `json:"guest_score"`
	Winner     domain.Winner `json:"winner"`
}

// SideScore sums raw signed percentages. Locked picks contribute their frozen
// value; unlocked picks are priced now and contribute nothing when no price
// is available.
func SideScore(ctx context.Context, picks []domain.DuelPick, prices PriceSource) float64 {
	var total float64
	for _, p := range picks {
		if p.Locked {
			total += p.LockedSignedPct
			continue
		}
		if prices == nil {
			continue
		}
		baseline, current, ok := prices.PickPrice(ctx, p)
		if !ok {
			continue
		}
		if pct, ok := SignedPct(baseline, current, p.Direction); ok {
			total += pct
		}
	}
	return total
}

// SettleRoomPicks scores both sides. The strictly higher score wins; equal
// scores are a draw.
func SettleRoomPicks(ctx context.Context, host, guest []domain.DuelPick, prices PriceSource) Outcome {
	out := Outcome{
		HostScore:  SideScore(ctx, host, prices),
		GuestScore: SideScore(ctx, guest, prices),
	}
	switch {
	case out.HostScore > out.GuestScore:
		out.Winner = domain.WinnerHost
	case out.GuestScore > out.HostScore:
		out.Winner = domain.WinnerGuest
	default:
		out.Winner = domain.WinnerDraw
	}
	return out
}
