package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PersistenceLease serializes buffer draining cluster-wide: only one node
// moves deltas into long-term storage at a time.
const PersistenceLease = "persistence:global"

// Persister drains the durable update buffer into long-term storage in safe
// batches on a fixed interval.
//
// The read-then-insert-then-trim order is the key invariant: a crash or
// insert failure leaves the buffer untouched and the batch is retried on the
// next cycle. At-least-once with no gap; duplicate inserts after a
// crash-after-insert are absorbed by the delta table's primary key.
type Persister struct {
	buffer    UpdateBuffer
	store     DeltaStore
	locks     Locker
	compactor Compactor
	logger    *slog.Logger

	interval  time.Duration
	batchSize int64
	leaseTTL  time.Duration
	threshold int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type PersisterConfig struct {
	Interval            time.Duration
	BatchSize           int64
	LeaseTTL            time.Duration
	CompactionThreshold int64
}

func NewPersister(
	buffer UpdateBuffer,
	store DeltaStore,
	locks Locker,
	compactor Compactor,
	logger *slog.Logger,
	cfg PersisterConfig,
) *Persister {
	return &Persister{
		buffer:    buffer,
		store:     store,
		locks:     locks,
		compactor: compactor,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		leaseTTL:  cfg.LeaseTTL,
		threshold: cfg.CompactionThreshold,
	}
}

// Start launches the drain loop; one instance runs per process, the lease
// makes its effects cluster-wide singular.
func (p *Persister) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.runCycle(ctx); err != nil {
					p.logger.Error("PERSIST_CYCLE_FAILED", "err", err)
				}
			}
		}
	}()
}

func (p *Persister) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Persister) runCycle(ctx context.Context) error {
	ok, err := p.locks.TryAcquire(ctx, PersistenceLease, p.leaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		// Another node holds the drain; not an error.
		p.logger.Debug("PERSIST_LEASE_BUSY")
		return nil
	}
	defer func() {
		if err := p.locks.Release(ctx, PersistenceLease); err != nil {
			p.logger.Warn("PERSIST_LEASE_RELEASE_FAILED", "err", err)
		}
	}()

	return p.buffer.ScanRooms(ctx, func(roomID string) error {
		// [ISOLATION] One room's failure never aborts the sweep.
		if err := p.drainRoom(ctx, roomID); err != nil {
			p.logger.Error("ROOM_DRAIN_FAILED", "room_id", roomID, "err", err)
			return nil
		}
		p.maybeTriggerCompaction(ctx, roomID)
		return nil
	})
}

// drainRoom moves the room's pending deltas to long-term storage batch by
// batch: peek without removing, bulk-insert, and only then trim exactly that
// prefix.
func (p *Persister) drainRoom(ctx context.Context, roomID string) error {
	for {
		batch, err := p.buffer.Peek(ctx, roomID, p.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := p.store.InsertDeltas(ctx, batch); err != nil {
			// Buffer untouched; the batch is retried next cycle.
			return err
		}
		if err := p.buffer.Trim(ctx, roomID, int64(len(batch))); err != nil {
			return err
		}

		p.logger.Debug("ROOM_BATCH_PERSISTED",
			"room_id", roomID,
			"count", len(batch),
			"through_id", batch[len(batch)-1].ID,
		)

		if int64(len(batch)) < p.batchSize {
			return nil
		}
	}
}

// maybeTriggerCompaction fires compaction for rooms whose unmerged backlog
// crossed the threshold. Fire-and-forget: compaction's own lease prevents
// overlapping runs.
func (p *Persister) maybeTriggerCompaction(ctx context.Context, roomID string) {
	snap, err := p.store.CurrentSnapshot(ctx, roomID)
	if err != nil {
		p.logger.Warn("COMPACTION_CHECK_FAILED", "room_id", roomID, "err", err)
		return
	}
	var after int64
	if snap != nil {
		after = snap.LastMergedID
	}

	n, err := p.store.CountUnmergedDeltas(ctx, roomID, after)
	if err != nil {
		p.logger.Warn("COMPACTION_CHECK_FAILED", "room_id", roomID, "err", err)
		return
	}
	if n < p.threshold {
		return
	}

	p.logger.Info("COMPACTION_TRIGGERED", "room_id", roomID, "unmerged", n)
	go func() {
		// Detached from the drain cycle's lifetime on purpose.
		cctx, cancel := context.WithTimeout(context.Background(), p.leaseTTL)
		defer cancel()
		if err := p.compactor.Compact(cctx, roomID); err != nil {
			p.logger.Error("COMPACTION_FAILED", "room_id", roomID, "err", err)
		}
	}()
}
