// Package storage is the long-term home of deltas and snapshots, backed by
// Postgres via pgx.
//
// Schema:
//
//	CREATE TABLE deltas (
//	    room_id    text        NOT NULL,
//	    delta_id   bigint      NOT NULL,
//	    payload    bytea       NOT NULL,
//	    created_at timestamptz NOT NULL DEFAULT now(),
//	    PRIMARY KEY (room_id, delta_id)
//	);
//
//	CREATE TABLE snapshots (
//	    id             bigserial   PRIMARY KEY,
//	    room_id        text        NOT NULL,
//	    blob_key       text        NOT NULL,
//	    last_merged_id bigint      NOT NULL,
//	    created_at     timestamptz NOT NULL DEFAULT now()
//	);
//	CREATE INDEX snapshots_room_idx ON snapshots (room_id, id DESC);
//
// The (room_id, delta_id) primary key makes the persistence worker's
// crash-replay inserts idempotent: a batch re-inserted after a
// crash-after-insert-before-trim hits ON CONFLICT DO NOTHING.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InsertDeltas bulk-inserts a batch. Replayed rows are silently skipped via
// the primary key, keeping at-least-once delivery duplicate-free.
func (s *PostgresStore) InsertDeltas(ctx context.Context, deltas []model.Delta) error {
	if len(deltas) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range deltas {
		batch.Queue(
			`INSERT INTO deltas (room_id, delta_id, payload)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (room_id, delta_id) DO NOTHING`,
			d.RoomID, d.ID, d.Payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	for range deltas {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("storage: insert deltas: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("storage: insert deltas: %w", err)
	}
	return nil
}

// CountUnmergedDeltas returns how many deltas of a room are newer than the
// given id (the current snapshot's last merged id, or 0).
func (s *PostgresStore) CountUnmergedDeltas(ctx context.Context, roomID string, afterID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM deltas WHERE room_id = $1 AND delta_id > $2`,
		roomID, afterID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count unmerged room %s: %w", roomID, err)
	}
	return n, nil
}

// ListDeltasAfter returns up to limit deltas with id greater than afterID,
// ordered ascending — the compaction service's merge input.
func (s *PostgresStore) ListDeltasAfter(ctx context.Context, roomID string, afterID int64, limit int32) ([]model.Delta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT delta_id, payload FROM deltas
		 WHERE room_id = $1 AND delta_id > $2
		 ORDER BY delta_id ASC
		 LIMIT $3`,
		roomID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list deltas room %s: %w", roomID, err)
	}
	defer rows.Close()

	var deltas []model.Delta
	for rows.Next() {
		d := model.Delta{RoomID: roomID}
		if err := rows.Scan(&d.ID, &d.Payload); err != nil {
			return nil, fmt.Errorf("storage: scan delta room %s: %w", roomID, err)
		}
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list deltas room %s: %w", roomID, err)
	}
	return deltas, nil
}

// DeleteDeltasThrough removes exactly the merged range (afterID, throughID]
// — never more. Called only after the new snapshot row is durable.
func (s *PostgresStore) DeleteDeltasThrough(ctx context.Context, roomID string, afterID, throughID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM deltas WHERE room_id = $1 AND delta_id > $2 AND delta_id <= $3`,
		roomID, afterID, throughID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete deltas room %s: %w", roomID, err)
	}
	return nil
}

// CurrentSnapshot returns the latest snapshot of a room, or nil when the
// room has never been compacted.
func (s *PostgresStore) CurrentSnapshot(ctx context.Context, roomID string) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, room_id, blob_key, last_merged_id, created_at
		 FROM snapshots WHERE room_id = $1
		 ORDER BY id DESC LIMIT 1`,
		roomID,
	).Scan(&snap.ID, &snap.RoomID, &snap.BlobKey, &snap.LastMergedID, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: current snapshot room %s: %w", roomID, err)
	}
	return snap, nil
}

// InsertSnapshot records a new current snapshot; history rows are kept, the
// highest id wins.
func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *model.Snapshot) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO snapshots (room_id, blob_key, last_merged_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		snap.RoomID, snap.BlobKey, snap.LastMergedID,
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: insert snapshot room %s: %w", snap.RoomID, err)
	}
	return nil
}
