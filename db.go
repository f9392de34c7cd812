// db.go
//
// Database helpers for the game store server.
// Responsibilities:
//   - Opening SQLite database with safe defaults (WAL, busy timeout, foreign keys).
//   - Applying the embedded migrations.
//   - Choosing the GameStore implementation from config.

package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snakesladders/internal/config"
	"github.com/robalobadob/snakesladders/internal/store"
)

/**
 * openDB opens (and creates if missing) a SQLite database file.
 *
 * - Ensures parent directory exists for relative DSNs (e.g. ./data/snakes.db).
 * - Configures busy timeout and WAL journaling mode.
 * - Enforces foreign keys.
 */
func openDB(dsn string) (*sql.DB, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

// openStore builds the configured GameStore. The returned closer releases
// the store and, for sqlite, the database handle.
func openStore(cfg config.Server) (store.GameStore, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := store.NewMemoryStore()
		return mem, mem, nil
	case config.DriverSQLite:
		db, err := openDB(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		st := store.NewSQLStore(db, cfg.PollInterval, log.Logger)
		return st, closerFunc(func() error {
			_ = st.Close()
			return db.Close()
		}), nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
