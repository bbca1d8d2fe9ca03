package settlement

import (
	"context"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// TokenPrices supplies live prices for single-player rounds.
type TokenPrices interface {
	TokenPrice(ctx context.Context, tokenID string) (baseline, current float64, ok bool)
}

// Boost is the boost state of a round.
type Boost struct {
	Level  int
	Active bool
}

// AssignDuplicateIndexes numbers repeated tokens in pick order, starting at 1
// for each token's first occurrence.
func AssignDuplicateIndexes(picks []domain.RoundPick) {
	seen := make(map[string]int, len(picks))
	for i := range picks {
		seen[picks[i].TokenID]++
		picks[i].DuplicateIndex = seen[picks[i].TokenID]
	}
}

// LockRoundPick freezes a pick at the given price and stores its points.
func LockRoundPick(pick *domain.RoundPick, baseline, current float64, boost Boost) error {
	if pick.Locked {
		return domain.ErrPickLocked
	}
	pts := Score(baseline, current, pick.Direction, pick.DuplicateIndex, boost.Level, boost.Active)
	price := current
	pick.Locked = true
	pick.LockedPriceAtLock = &price
	pick.LockedPoints = &pts
	return nil
}

// ScoreRound scores every pick of a round. Locked picks keep the points
// stored at lock time; the rest are scored against live prices and count
// zero when none is available.
func ScoreRound(ctx context.Context, picks []domain.RoundPick, prices TokenPrices, boost Boost) (int, []int) {
	perPick := make([]int, len(picks))
	var total int
	for i, p := range picks {
		perPick[i] = scoreRoundPick(ctx, p, prices, boost)
		total += perPick[i]
	}
	return total, perPick
}

func scoreRoundPick(ctx context.Context, p domain.RoundPick, prices TokenPrices, boost Boost) int {
	if p.Locked && p.LockedPoints != nil {
		return *p.LockedPoints
	}
	if prices == nil {
		return 0
	}
	baseline, current, ok := prices.TokenPrice(ctx, p.TokenID)
	if !ok {
		return 0
	}
	if p.Locked && p.LockedPriceAtLock != nil {
		current = *p.LockedPriceAtLock
	}
	return Score(baseline, current, p.Direction, p.DuplicateIndex, boost.Level, boost.Active)
}
