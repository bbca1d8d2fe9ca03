// Package settlement holds the scoring arithmetic for daily rounds and duel
// rooms. Everything here is pure apart from the price lookups callers
// inject; persistence is the caller's job.
package settlement

import (
	"math"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

const (
	// PointsPerPct is the number of points a 1% move is worth.
	PointsPerPct = 100
	// MaxPickPoints bounds a single pick's points before boosting.
	MaxPickPoints = 2500
)

// nerfTable is indexed by the 1-based duplicate occurrence minus one.
// Occurrences past the end score nothing on a win.
var nerfTable = [...]float64{1.0, 0.75, 0.5, 0.25, 0}

// Nerf returns the win multiplier for the dup-th occurrence of a token in
// one round. Values below 1 are treated as a first occurrence.
func Nerf(dup int) float64 {
	if dup < 1 {
		dup = 1
	}
	if dup > len(nerfTable) {
		return 0
	}
	return nerfTable[dup-1]
}

// LossMultiplier returns the amplification applied to losing picks.
func LossMultiplier(dup int) float64 {
	return 2 - Nerf(dup)
}

// SignedPct returns the percentage move from baseline to current, negated
// for down picks. ok is false for non-finite or non-positive prices and
// unknown directions.
func SignedPct(baseline, current float64, dir domain.Direction) (float64, bool) {
	if !validPrice(baseline) || !validPrice(current) {
		return 0, false
	}
	pct := (current - baseline) / baseline * 100
	switch dir {
	case domain.DirectionUp:
		return pct, true
	case domain.DirectionDown:
		return -pct, true
	default:
		return 0, false
	}
}

// Score returns the single-player points for one pick.
func Score(baseline, current float64, dir domain.Direction, dup, boostLevel int, boostActive bool) int {
	signed, ok := SignedPct(baseline, current, dir)
	if !ok {
		return 0
	}

	raw := signed * PointsPerPct
	var pts float64
	if raw >= 0 {
		pts = raw * Nerf(dup)
	} else {
		pts = raw * LossMultiplier(dup)
	}
	pts = math.Max(-MaxPickPoints, math.Min(MaxPickPoints, pts))

	if boostActive && pts > 0 {
		pts *= boostMultiplier(boostLevel)
	}
	return int(math.Round(pts))
}

func boostMultiplier(level int) float64 {
	switch level {
	case domain.BoostFull:
		return 2.0
	case domain.BoostHalf:
		return 1.5
	default:
		return 1
	}
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
