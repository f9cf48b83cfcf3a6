package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
)

const pingTimeout = 5 * time.Second

// Open connects to MySQL with the pool limits from cfg. The first ping is
// retried with a growing pause so the server can start alongside a database
// container that is still booting.
func Open(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	pause := time.Second
	for i := 1; ; i++ {
		if err = ping(ctx, db); err == nil {
			return db, nil
		}
		if i == attempts {
			break
		}
		logger.Warn("mysql not reachable, retrying",
			zap.Int("attempt", i), zap.Duration("backoff", pause), zap.Error(err))
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(pause):
		}
		pause *= 2
	}
	_ = db.Close()
	return nil, fmt.Errorf("mysql ping after %d attempts: %w", attempts, err)
}

func ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
