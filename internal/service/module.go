package service

import (
	"context"
	"log/slog"

	"github.com/wangfenghuan/draw-backend/config"
	"github.com/wangfenghuan/draw-backend/internal/adapter/blob"
	"github.com/wangfenghuan/draw-backend/internal/adapter/pubsub"
	"github.com/wangfenghuan/draw-backend/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			func(hub registry.Hubber, buffer UpdateBuffer, bus FanoutBus, store DeltaStore, blobs blob.Store, logger *slog.Logger, cfg *config.Config) *SyncService {
				return NewSyncService(hub, buffer, bus, store, blobs, logger, cfg.Sync.SendBufferSize)
			},
			fx.As(new(Syncer)),
		),
		fx.Annotate(
			func(store DeltaStore, blobs blob.Store, locks Locker, oracle MergeOracle, dispatcher pubsub.EventDispatcher, logger *slog.Logger, cfg *config.Config) *CompactionService {
				return NewCompactionService(store, blobs, locks, oracle, dispatcher, logger, CompactorConfig{
					MaxBatch: cfg.Compact.MaxBatch,
					LeaseTTL: cfg.Compact.LeaseTTL,
				})
			},
			fx.As(new(Compactor)),
		),
		fx.Annotate(
			func(cfg *config.Config) *AdmissionClient {
				return NewAdmissionClient(cfg.Admission.URL)
			},
			fx.As(new(Admitter)),
		),
		func(buffer UpdateBuffer, store DeltaStore, locks Locker, compactor Compactor, logger *slog.Logger, cfg *config.Config) *Persister {
			return NewPersister(buffer, store, locks, compactor, logger, PersisterConfig{
				Interval:            cfg.Persist.Interval,
				BatchSize:           cfg.Persist.BatchSize,
				LeaseTTL:            cfg.Persist.LeaseTTL,
				CompactionThreshold: cfg.Persist.CompactionThreshold,
			})
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, p *Persister) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				p.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				p.Stop()
				return nil
			},
		})
	}),
)
