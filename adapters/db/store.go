// Package db stores experiment records and limitation results in PostgreSQL
// or SQLite through sqlx.
package db

import (
	"context"

	"bnla/adapters/db/migrations"
	"bnla/internal/config"
	"bnla/internal/errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Open connects to the configured database. SQLite connections get foreign
// keys enabled and a single connection so that ":memory:" databases are shared.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.DatabaseError("failed to enable foreign keys", err)
		}
	}
	return db, nil
}

// OpenMigrated opens the database and applies pending migrations.
func OpenMigrated(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := migrations.NewMigrator(db, logger).Up(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
