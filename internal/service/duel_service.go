package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tokenduel/internal/cache/redis"
	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/settlement"
)

const (
	defaultRoomLockTTL = 30 * time.Second
	defaultSweepLimit  = 100
)

// DuelConfig tunes a DuelService.
type DuelConfig struct {
	EntryCost  int64
	LockTTL    time.Duration
	SweepLimit int
}

// DuelService runs duel rooms: every mutation happens under a per-room
// lock, settlement credits go to the ledger and settled rooms are announced
// on the signal bus.
type DuelService struct {
	rooms  domain.RoomStore
	locks  domain.LockManager
	ledger domain.Ledger
	bus    domain.SignalBus
	prices settlement.PriceSource
	cfg    DuelConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewDuelService creates a DuelService. bus may be nil.
func NewDuelService(
	rooms domain.RoomStore,
	locks domain.LockManager,
	ledger domain.Ledger,
	bus domain.SignalBus,
	prices settlement.PriceSource,
	cfg DuelConfig,
	logger *slog.Logger,
) *DuelService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultRoomLockTTL
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = defaultSweepLimit
	}
	return &DuelService{
		rooms:  rooms,
		locks:  locks,
		ledger: ledger,
		bus:    bus,
		prices: prices,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "duel_service")),
		now:    time.Now,
	}
}

// CreateRoom opens a room for hostID at the configured entry cost.
func (s *DuelService) CreateRoom(ctx context.Context, hostID string) (domain.DuelRoom, error) {
	if hostID == "" {
		return domain.DuelRoom{}, fmt.Errorf("duel_service: create room: empty host: %w", domain.ErrInvalidState)
	}
	room := settlement.NewRoom(uuid.NewString(), hostID, s.cfg.EntryCost, s.now())
	if err := s.rooms.Save(ctx, room); err != nil {
		return domain.DuelRoom{}, fmt.Errorf("duel_service: create room: %w", err)
	}
	s.logger.InfoContext(ctx, "room created",
		slog.String("room_id", room.ID),
		slog.String("host", hostID),
		slog.Time("eval_at", room.EvalAt),
	)
	return room, nil
}

// Room returns a room by id.
func (s *DuelService) Room(ctx context.Context, id string) (domain.DuelRoom, error) {
	room, err := s.rooms.Get(ctx, id)
	if err != nil {
		return domain.DuelRoom{}, fmt.Errorf("duel_service: get room %s: %w", id, err)
	}
	return room, nil
}

// JoinRoom seats guestID.
func (s *DuelService) JoinRoom(ctx context.Context, roomID, guestID string) (domain.DuelRoom, error) {
	return s.mutate(ctx, roomID, func(room *domain.DuelRoom) error {
		return settlement.Join(room, guestID)
	})
}

// CancelRoom cancels a room nobody joined.
func (s *DuelService) CancelRoom(ctx context.Context, roomID, userID string) (domain.DuelRoom, error) {
	return s.mutate(ctx, roomID, func(room *domain.DuelRoom) error {
		return settlement.Cancel(room, userID)
	})
}

// SetPicks replaces userID's picks.
func (s *DuelService) SetPicks(ctx context.Context, roomID, userID string, picks []domain.DuelPick) (domain.DuelRoom, error) {
	return s.mutate(ctx, roomID, func(room *domain.DuelRoom) error {
		return settlement.SetPicks(room, userID, picks)
	})
}

// LockPick freezes the pick at index at its current signed move.
func (s *DuelService) LockPick(ctx context.Context, roomID, userID string, index int) (domain.DuelRoom, error) {
	return s.mutate(ctx, roomID, func(room *domain.DuelRoom) error {
		side := &room.Host
		if room.Guest != nil && room.Guest.UserID == userID {
			side = room.Guest
		}
		if side.UserID != userID || index < 0 || index >= len(side.Picks) || side.Picks[index].Locked ||
			(room.Status != domain.RoomOpen && room.Status != domain.RoomReady) {
			// settlement.LockPick reports the precise error.
			return settlement.LockPick(room, userID, index, 0, s.now())
		}

		pick := side.Picks[index]
		baseline, current, ok := s.prices.PickPrice(ctx, pick)
		if !ok {
			return fmt.Errorf("no price for %s: %w", pick.TokenID, domain.ErrFetchFailed)
		}
		pct, ok := settlement.SignedPct(baseline, current, pick.Direction)
		if !ok {
			return fmt.Errorf("unusable price for %s: %w", pick.TokenID, domain.ErrFetchFailed)
		}
		return settlement.LockPick(room, userID, index, pct, s.now())
	})
}

// Settle settles a due room. Settling a settled room returns its stored
// result; the ledger write is repeated so a crash between the room save and
// the ledger commit heals on the next call.
func (s *DuelService) Settle(ctx context.Context, roomID string) (domain.SettlementResult, error) {
	unlock, err := s.locks.Acquire(ctx, "duel:"+roomID, s.cfg.LockTTL)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("duel_service: settle %s: %w", roomID, err)
	}
	defer unlock()

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("duel_service: settle %s: %w", roomID, err)
	}

	alreadySettled := room.Status == domain.RoomSettled
	res, err := settlement.Settle(ctx, &room, s.prices, s.now())
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("duel_service: settle %s: %w", roomID, err)
	}

	if !alreadySettled {
		if err := s.rooms.Save(ctx, room); err != nil {
			return domain.SettlementResult{}, fmt.Errorf("duel_service: save settled room %s: %w", roomID, err)
		}
	}

	applied, err := s.ledger.RecordSettlement(ctx, room)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("duel_service: record settlement %s: %w", roomID, err)
	}

	if applied {
		settlements.WithLabelValues(string(res.Winner)).Inc()
		s.logger.InfoContext(ctx, "room settled",
			slog.String("room_id", roomID),
			slog.String("winner", string(res.Winner)),
			slog.Float64("host_score", res.HostScore),
			slog.Float64("guest_score", res.GuestScore),
			slog.Int("payouts", len(res.Payouts)),
		)
		s.publishSettled(ctx, room)
	}
	return res, nil
}

// SweepDue settles every room whose evaluation time has passed and returns
// how many settled. Rooms locked by another worker are skipped.
func (s *DuelService) SweepDue(ctx context.Context) (int, error) {
	ids, err := s.rooms.ListDue(ctx, s.now(), s.cfg.SweepLimit)
	if err != nil {
		return 0, fmt.Errorf("duel_service: list due rooms: %w", err)
	}

	var settled int
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Settle(ctx, id); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				continue
			}
			s.logger.WarnContext(ctx, "sweep settle failed",
				slog.String("room_id", id),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		settled++
	}
	return settled, errors.Join(errs...)
}

// Balance returns a user's bank and competitive totals.
func (s *DuelService) Balance(ctx context.Context, userID string) (int64, int64, error) {
	bank, competitive, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("duel_service: balance %s: %w", userID, err)
	}
	return bank, competitive, nil
}

// mutate applies fn to the room under its lock and saves the result.
func (s *DuelService) mutate(ctx context.Context, roomID string, fn func(room *domain.DuelRoom) error) (domain.DuelRoom, error) {
	unlock, err := s.locks.Acquire(ctx, "duel:"+roomID, s.cfg.LockTTL)
	if err != nil {
		return domain.DuelRoom{}, fmt.Errorf("duel_service: room %s: %w", roomID, err)
	}
	defer unlock()

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return domain.DuelRoom{}, fmt.Errorf("duel_service: room %s: %w", roomID, err)
	}
	if err := fn(&room); err != nil {
		return domain.DuelRoom{}, fmt.Errorf("duel_service: room %s: %w", roomID, err)
	}
	if err := s.rooms.Save(ctx, room); err != nil {
		return domain.DuelRoom{}, fmt.Errorf("duel_service: save room %s: %w", roomID, err)
	}
	return room, nil
}

func (s *DuelService) publishSettled(ctx context.Context, room domain.DuelRoom) {
	if s.bus == nil || room.Result == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":   "duel_settled",
		"room_id": room.ID,
		"result":  room.Result,
	})
	if err := s.bus.Publish(ctx, redis.ChannelDuelSettled, evt); err != nil {
		s.logger.WarnContext(ctx, "publish duel settled event failed",
			slog.String("room_id", room.ID),
			slog.String("error", err.Error()),
		)
	}
}
