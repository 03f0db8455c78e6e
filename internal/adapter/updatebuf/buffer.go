// Package updatebuf is the durable update buffer: a per-room, append-only,
// FIFO queue of un-persisted deltas backed by Redis lists. It is the
// durability guarantee between a live edit and long-term storage.
package updatebuf

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

const (
	bufferPrefix = "updates:"
	// Sequence counters live in their own namespace so a SCAN over
	// buffer keys never touches them.
	seqPrefix = "updates-seq:"
)

// enqueueScript assigns the next per-room delta id and appends the entry in
// one atomic step, so ids are strictly increasing in list order even under
// concurrent writers.
var enqueueScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[2])
redis.call('RPUSH', KEYS[1], string.format('%016d', id) .. ARGV[1])
return id
`)

// BufferKey returns the Redis list key holding a room's pending deltas.
func BufferKey(roomID string) string {
	return bufferPrefix + roomID
}

func seqKey(roomID string) string {
	return seqPrefix + roomID
}

// RedisBuffer implements the durable update buffer on Redis lists:
// append at tail, read/trim from head.
type RedisBuffer struct {
	rdb redis.UniversalClient
}

func NewRedisBuffer(rdb redis.UniversalClient) *RedisBuffer {
	return &RedisBuffer{rdb: rdb}
}

// Enqueue appends a delta to the tail of the room's buffer and returns its
// assigned id. Failures propagate to the caller; a lost enqueue is a tracked
// durability failure, never swallowed.
func (b *RedisBuffer) Enqueue(ctx context.Context, roomID string, payload []byte) (int64, error) {
	id, err := enqueueScript.Run(ctx, b.rdb,
		[]string{BufferKey(roomID), seqKey(roomID)},
		payload,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("updatebuf: enqueue room %s: %w", roomID, err)
	}
	return id, nil
}

// Peek reads up to n deltas from the head of the buffer without removing
// them. The persistence worker trims only after long-term storage confirmed
// the insert.
func (b *RedisBuffer) Peek(ctx context.Context, roomID string, n int64) ([]model.Delta, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := b.rdb.LRange(ctx, BufferKey(roomID), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("updatebuf: peek room %s: %w", roomID, err)
	}

	deltas := make([]model.Delta, 0, len(raw))
	for _, entry := range raw {
		id, payload, err := decodeEntry([]byte(entry))
		if err != nil {
			return nil, fmt.Errorf("updatebuf: room %s: %w", roomID, err)
		}
		deltas = append(deltas, model.Delta{ID: id, RoomID: roomID, Payload: payload})
	}
	return deltas, nil
}

// Trim drops exactly n entries from the head of the buffer.
func (b *RedisBuffer) Trim(ctx context.Context, roomID string, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := b.rdb.LTrim(ctx, BufferKey(roomID), n, -1).Err(); err != nil {
		return fmt.Errorf("updatebuf: trim room %s: %w", roomID, err)
	}
	return nil
}

// ScanRooms invokes fn for every room with a non-empty buffer, using cursor
// SCAN so it never blocks the store with an O(rooms) listing call.
func (b *RedisBuffer) ScanRooms(ctx context.Context, fn func(roomID string) error) error {
	var cursor uint64
	for {
		keys, next, err := b.rdb.Scan(ctx, cursor, bufferPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("updatebuf: scan: %w", err)
		}
		for _, key := range keys {
			roomID := strings.TrimPrefix(key, bufferPrefix)
			if roomID == "" {
				continue
			}
			if err := fn(roomID); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
