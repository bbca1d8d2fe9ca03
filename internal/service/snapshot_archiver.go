package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// SnapshotRecorder indexes uploaded snapshot objects by day.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, day, objectKey string, tokenCount int) error
}

type snapshotDoc struct {
	Day     string             `json:"day"`
	TakenAt time.Time          `json:"taken_at"`
	Prices  []domain.LivePrice `json:"prices"`
}

// SnapshotArchiver uploads the current price board to object storage so
// closing prices can be audited after rooms settle.
type SnapshotArchiver struct {
	prices  PriceReader
	blob    domain.BlobWriter
	records SnapshotRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewSnapshotArchiver creates a SnapshotArchiver. records may be nil.
func NewSnapshotArchiver(prices PriceReader, blob domain.BlobWriter, records SnapshotRecorder, logger *slog.Logger) *SnapshotArchiver {
	return &SnapshotArchiver{
		prices:  prices,
		blob:    blob,
		records: records,
		logger:  logger.With(slog.String("component", "snapshot_archiver")),
		now:     time.Now,
	}
}

// Archive uploads one snapshot and returns its object key. An empty board
// uploads nothing and returns "".
func (a *SnapshotArchiver) Archive(ctx context.Context) (key string, err error) {
	defer func() { snapshotUploads.WithLabelValues(outcome(err)).Inc() }()

	prices, err := a.prices.LivePrices(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot_archiver: read prices: %w", err)
	}
	if len(prices) == 0 {
		a.logger.InfoContext(ctx, "no prices to archive")
		return "", nil
	}

	now := a.now().UTC()
	day := now.Format(time.DateOnly)
	key = fmt.Sprintf("prices/%s/%s.json", day, now.Format("150405"))

	body, err := json.Marshal(snapshotDoc{Day: day, TakenAt: now, Prices: prices})
	if err != nil {
		return "", fmt.Errorf("snapshot_archiver: encode: %w", err)
	}
	if err := a.blob.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("snapshot_archiver: upload %s: %w", key, err)
	}
	if a.records != nil {
		if err := a.records.RecordSnapshot(ctx, day, key, len(prices)); err != nil {
			return "", fmt.Errorf("snapshot_archiver: record %s: %w", key, err)
		}
	}

	a.logger.InfoContext(ctx, "price snapshot archived",
		slog.String("key", key),
		slog.Int("tokens", len(prices)),
	)
	return key, nil
}
