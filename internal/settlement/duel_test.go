package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

func TestSideScoreMixesLockedAndLivePicks(t *testing.T) {
	side := []domain.DuelPick{
		{TokenID: "a", Direction: domain.DirectionUp, Locked: true, LockedSignedPct: 12.5},
		{TokenID: "b", Direction: domain.DirectionDown},
		{TokenID: "missing", Direction: domain.DirectionUp},
		{TokenID: "c", Direction: domain.DirectionUp},
	}
	prices := staticPrices{
		"a": {1, 100}, // ignored, the pick is locked
		"b": {2, 1},   // down pick on a 50% drop
		"c": {4, 5},   // up 25%
	}

	assert.InDelta(t, 12.5+50+25, SideScore(context.Background(), side, prices), 1e-9)
}

func TestSideScoreWithoutPrices(t *testing.T) {
	side := []domain.DuelPick{
		{TokenID: "a", Locked: true, LockedSignedPct: -3},
		{TokenID: "b", Direction: domain.DirectionUp},
	}
	assert.Equal(t, -3.0, SideScore(context.Background(), side, nil))
}

func TestSettleRoomPicksUsesRawPercentages(t *testing.T) {
	// A 300% move would clamp in single-player scoring; duels sum it raw.
	host := []domain.DuelPick{{TokenID: "moon", Direction: domain.DirectionUp}}
	guest := []domain.DuelPick{{TokenID: "a", Locked: true, LockedSignedPct: 299}}
	prices := staticPrices{"moon": {1, 4}}

	out := SettleRoomPicks(context.Background(), host, guest, prices)
	assert.InDelta(t, 300, out.HostScore, 1e-9)
	assert.Equal(t, domain.WinnerHost, out.Winner)

	out = SettleRoomPicks(context.Background(), guest, host, prices)
	assert.Equal(t, domain.WinnerGuest, out.Winner)

	out = SettleRoomPicks(context.Background(), nil, nil, prices)
	assert.Equal(t, domain.WinnerDraw, out.Winner)
}
