/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package database opens read-only connections to the target database.
// Generated SQL runs against these connections, so read-only enforcement
// happens at the connection level in addition to statement validation:
// sqlite databases are opened with mode=ro, postgres sessions run with
// default_transaction_read_only=on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"nlsql-agent/internal/config"
	"nlsql-agent/internal/logging"
)

// Connect opens a connection pool for the configured database and verifies
// it with a ping. The returned driver name is normalized to "sqlite" or
// "postgres" for dialect-dependent callers.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, string, error) {
	startTime := time.Now()

	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		logConnection(cfg, time.Since(startTime), err)
		return nil, "", err
	}

	if cfg.PoolMaxConns > 0 {
		db.SetMaxOpenConns(cfg.PoolMaxConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		logConnection(cfg, time.Since(startTime), err)
		return nil, "", fmt.Errorf("unable to ping database: %w", err)
	}

	logConnection(cfg, time.Since(startTime), nil)
	return db, cfg.Driver, nil
}

// openSQLite opens a sqlite database read-only. The file must already
// exist: mode=ro refuses to create one, and a missing file is almost
// always a misconfigured path rather than a fresh database.
func openSQLite(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("sqlite database not found at %s: %w", cfg.Path, err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	return db, nil
}

// openPostgres opens a postgres pool through the pgx stdlib driver with
// read-only transactions forced at the session level.
func openPostgres(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := postgresDSN(cfg)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open postgres connection: %w", err)
	}
	return db, nil
}

// postgresDSN builds a keyword/value connection string from the config
func postgresDSN(cfg *config.DatabaseConfig) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=%s application_name='NLSQL Agent' options='-c default_transaction_read_only=on'",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.SSLMode,
	)
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

// logConnection logs a connection attempt without leaking credentials
func logConnection(cfg *config.DatabaseConfig, duration time.Duration, err error) {
	target := Describe(cfg)
	if err != nil {
		logging.Error("database connection failed",
			"target", target,
			"duration", duration.String(),
			"error", err.Error())
		return
	}
	logging.Info("database connected",
		"target", target,
		"duration", duration.String())
}

// Describe returns a loggable description of the connection target.
// Passwords never appear in it.
func Describe(cfg *config.DatabaseConfig) string {
	switch cfg.Driver {
	case "sqlite":
		return fmt.Sprintf("sqlite:%s", cfg.Path)
	case "postgres":
		return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
	default:
		return cfg.Driver
	}
}
