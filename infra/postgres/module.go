// Package postgres wires the pgx connection pool backing long-term delta and
// snapshot storage.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wangfenghuan/draw-backend/config"
	"go.uber.org/fx"
)

func NewPool(cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	return pgxpool.NewWithConfig(context.Background(), poolCfg)
}

var Module = fx.Module(
	"postgres",

	fx.Provide(NewPool),

	fx.Invoke(func(lc fx.Lifecycle, pool *pgxpool.Pool) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := pool.Ping(ctx); err != nil {
					return fmt.Errorf("postgres: ping: %w", err)
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})
	}),
)
