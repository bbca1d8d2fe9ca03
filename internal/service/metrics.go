package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pollResults counts per-token poll outcomes
	pollResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenduel_orchestrator_polls_total",
			Help: "Orchestrator per-token poll outcomes",
		}, []string{"result"}) // result: primary, secondary, stale

	trackedTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenduel_orchestrator_tracked_tokens",
			Help: "Tokens tracked by the price orchestrator",
		})

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenduel_duel_settlements_total",
			Help: "Duel settlements by winner",
		}, []string{"winner"})

	snapshotUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenduel_snapshot_uploads_total",
			Help: "Price snapshot archive uploads by outcome",
		}, []string{"outcome"})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
