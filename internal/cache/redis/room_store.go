package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// RoomStore implements domain.RoomStore. Rooms are JSON documents at
// "duel:room:{id}"; unsettled rooms are also indexed in the "duel:due"
// sorted set scored by their evaluation time.
type RoomStore struct {
	client *Client
}

// NewRoomStore creates a RoomStore backed by the given Client.
func NewRoomStore(c *Client) *RoomStore {
	return &RoomStore{client: c}
}

func (rs *RoomStore) roomKey(id string) string {
	return rs.client.Key("duel", "room", id)
}

func (rs *RoomStore) dueKey() string {
	return rs.client.Key("duel", "due")
}

// Get loads a room. It returns domain.ErrNotFound when the room does not exist.
func (rs *RoomStore) Get(ctx context.Context, id string) (domain.DuelRoom, error) {
	val, err := rs.client.Underlying().Get(ctx, rs.roomKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DuelRoom{}, fmt.Errorf("redis: room %s: %w", id, domain.ErrNotFound)
		}
		return domain.DuelRoom{}, fmt.Errorf("redis: get room %s: %w", id, err)
	}
	var room domain.DuelRoom
	if err := json.Unmarshal([]byte(val), &room); err != nil {
		return domain.DuelRoom{}, fmt.Errorf("redis: unmarshal room %s: %w", id, err)
	}
	return room, nil
}

// Save writes the room and keeps the due index in step with its status.
func (rs *RoomStore) Save(ctx context.Context, room domain.DuelRoom) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redis: marshal room %s: %w", room.ID, err)
	}

	pipe := rs.client.Underlying().TxPipeline()
	pipe.Set(ctx, rs.roomKey(room.ID), data, 0)
	switch room.Status {
	case domain.RoomSettled, domain.RoomCancelled:
		pipe.ZRem(ctx, rs.dueKey(), room.ID)
	default:
		pipe.ZAdd(ctx, rs.dueKey(), redis.Z{Score: float64(room.EvalAt.UnixMilli()), Member: room.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save room %s: %w", room.ID, err)
	}
	return nil
}

// Delete removes a room and its due index entry.
func (rs *RoomStore) Delete(ctx context.Context, id string) error {
	pipe := rs.client.Underlying().TxPipeline()
	pipe.Del(ctx, rs.roomKey(id))
	pipe.ZRem(ctx, rs.dueKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete room %s: %w", id, err)
	}
	return nil
}

// ListDue returns up to limit ids of unsettled rooms whose evaluation time is
// at or before before, earliest first.
func (rs *RoomStore) ListDue(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ids, err := rs.client.Underlying().ZRangeByScore(ctx, rs.dueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(before.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list due rooms: %w", err)
	}
	return ids, nil
}

// Compile-time interface check.
var _ domain.RoomStore = (*RoomStore)(nil)
