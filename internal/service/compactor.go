package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wangfenghuan/draw-backend/internal/adapter/blob"
	"github.com/wangfenghuan/draw-backend/internal/adapter/pubsub"
	"github.com/wangfenghuan/draw-backend/internal/domain/event"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// CompactionLease returns the per-room lease name guarding compaction.
func CompactionLease(roomID string) string {
	return "compaction:" + roomID
}

// CompactionService folds a room's accumulated deltas into a new snapshot
// via the external merge oracle.
//
// Upload, snapshot record and delta deletion happen strictly in that order:
// the new snapshot is durable with the correct last-merged id before any
// source delta disappears, so a crash between steps never loses data. Worst
// case, stale deltas are re-merged once more — the oracle tolerates
// overlapping ranges.
type CompactionService struct {
	store      DeltaStore
	blobs      blob.Store
	locks      Locker
	oracle     MergeOracle
	dispatcher pubsub.EventDispatcher
	logger     *slog.Logger

	maxBatch int32
	leaseTTL time.Duration
}

type CompactorConfig struct {
	MaxBatch int32
	LeaseTTL time.Duration
}

func NewCompactionService(
	store DeltaStore,
	blobs blob.Store,
	locks Locker,
	oracle MergeOracle,
	dispatcher pubsub.EventDispatcher,
	logger *slog.Logger,
	cfg CompactorConfig,
) *CompactionService {
	return &CompactionService{
		store:      store,
		blobs:      blobs,
		locks:      locks,
		oracle:     oracle,
		dispatcher: dispatcher,
		logger:     logger,
		maxBatch:   cfg.MaxBatch,
		leaseTTL:   cfg.LeaseTTL,
	}
}

// Compact runs one compaction pass for the room. Compaction is advisory and
// loss-free to skip: when another holder owns the room's lease, it returns
// immediately with no error.
func (c *CompactionService) Compact(ctx context.Context, roomID string) error {
	ok, err := c.locks.TryAcquire(ctx, CompactionLease(roomID), c.leaseTTL)
	if err != nil {
		return fmt.Errorf("compact: lease room %s: %w", roomID, err)
	}
	if !ok {
		c.logger.Debug("COMPACTION_LEASE_BUSY", "room_id", roomID)
		return nil
	}
	defer func() {
		if err := c.locks.Release(ctx, CompactionLease(roomID)); err != nil {
			c.logger.Warn("COMPACTION_LEASE_RELEASE_FAILED", "room_id", roomID, "err", err)
		}
	}()

	snap, err := c.store.CurrentSnapshot(ctx, roomID)
	if err != nil {
		return fmt.Errorf("compact: snapshot lookup room %s: %w", roomID, err)
	}
	var lastMerged int64
	if snap != nil {
		lastMerged = snap.LastMergedID
	}

	// Merge base and merge input are independent reads; fetch them
	// concurrently.
	var (
		base   []byte
		deltas []model.Delta
	)
	g, gctx := errgroup.WithContext(ctx)
	if snap != nil {
		g.Go(func() error {
			var err error
			base, err = c.blobs.Get(gctx, snap.BlobKey)
			return err
		})
	}
	g.Go(func() error {
		var err error
		deltas, err = c.store.ListDeltasAfter(gctx, roomID, lastMerged, c.maxBatch)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("compact: load inputs room %s: %w", roomID, err)
	}

	if len(deltas) == 0 {
		// Nothing unmerged: no upload, no snapshot write.
		return nil
	}

	payloads := make([][]byte, len(deltas))
	for i, d := range deltas {
		payloads[i] = d.Payload
	}

	merged, err := c.oracle.Merge(ctx, roomID, base, payloads)
	if err != nil {
		// Old snapshot and all deltas stay intact for the next attempt.
		return fmt.Errorf("compact: merge room %s: %w", roomID, err)
	}

	newLastMerged := deltas[len(deltas)-1].ID

	key := blob.SnapshotKey(roomID)
	if err := c.blobs.Put(ctx, key, merged); err != nil {
		return fmt.Errorf("compact: upload room %s: %w", roomID, err)
	}

	newSnap := &model.Snapshot{
		RoomID:       roomID,
		BlobKey:      key,
		LastMergedID: newLastMerged,
	}
	if err := c.store.InsertSnapshot(ctx, newSnap); err != nil {
		return fmt.Errorf("compact: record snapshot room %s: %w", roomID, err)
	}

	// Only now is it safe to drop the folded range — exactly that range.
	if err := c.store.DeleteDeltasThrough(ctx, roomID, lastMerged, newLastMerged); err != nil {
		// The snapshot is already durable; leftover deltas are re-merged
		// idempotently on the next pass.
		return fmt.Errorf("compact: delete merged deltas room %s: %w", roomID, err)
	}

	c.logger.Info("ROOM_COMPACTED",
		"room_id", roomID,
		"merged", len(deltas),
		"last_merged_id", newLastMerged,
		"blob_key", key,
	)

	if c.dispatcher != nil {
		if err := c.dispatcher.Publish(ctx, event.NewSnapshotCreatedV1Event(newSnap, lastMerged)); err != nil {
			c.logger.Warn("SNAPSHOT_EVENT_PUBLISH_FAILED", "room_id", roomID, "err", err)
		}
		if err := c.dispatcher.Publish(ctx, event.NewRoomCompactedV1Event(roomID, len(deltas), newLastMerged)); err != nil {
			c.logger.Warn("COMPACTED_EVENT_PUBLISH_FAILED", "room_id", roomID, "err", err)
		}
	}

	return nil
}
