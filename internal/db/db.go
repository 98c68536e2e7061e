// Package db is the local SQLite cache: a warm-start issue snapshot, cached
// comment threads, the reconciliation journal and the pending-report queue.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the cache database name inside the data directory.
const FileName = "citywatch.db"

// Open opens or creates the SQLite database at the given path.
// It sets pragmas for WAL mode, foreign key enforcement, and busy timeout.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer at a time; this also keeps a ":memory:" database on a single
	// connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	return db, nil
}

// OpenDir opens the cache in dir, creating the directory and schema as needed
// and applying pending migrations.
func OpenDir(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	conn, err := Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	if err := Initialize(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
