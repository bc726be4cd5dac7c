package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/joseph-ayodele/regbench/internal/common"
)

// OpenPostgres creates a pgx pool, wraps it as *sql.DB, and migrates the schema.
func OpenPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := HealthCheck(ctx, pool, cfg.DialTimeout, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", common.ErrDatabase, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	repo, err := newSQL(ctx, db, dialectPostgres, logger)
	if err != nil {
		_ = db.Close()
		pool.Close()
		return nil, err
	}
	repo.onClose = pool.Close
	logger.Info("successfully connected to database")
	return repo, nil
}

func openPool(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database url", "error", err)
		return nil, common.NewAppError(common.CodeConfig, "invalid DB_URL", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "regbench"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("%w: connect: %w", common.ErrDatabase, err)
	}
	return pool, nil
}

// HealthCheck pings the pool to catch DSN issues early.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
