package db

import (
	"database/sql"
	"testing"
)

func mustOpen(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustInit(t *testing.T) *sql.DB {
	t.Helper()
	db := mustOpen(t)
	if err := Initialize(db); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return db
}

func TestOpenSetsPragmas(t *testing.T) {
	db := mustOpen(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	// In-memory databases report "memory" since WAL requires a file.
	if mode != "wal" && mode != "memory" {
		t.Errorf("journal_mode = %q, want wal or memory", mode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("querying foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("querying busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestOpenDirCreatesFileDatabase(t *testing.T) {
	dir := t.TempDir() + "/nested"
	db, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestInitializeCreatesAllTables(t *testing.T) {
	db := mustInit(t)

	for _, table := range []string{"meta", "issues", "comments", "activity_log", "pending_reports"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	db := mustInit(t)
	if err := Initialize(db); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}

	v, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != currentSchemaVersion {
		t.Errorf("schema_version = %d after double init, want %d", v, currentSchemaVersion)
	}
}

func TestMigrateNoOpAtLatestVersion(t *testing.T) {
	db := mustInit(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	v, _ := SchemaVersion(db)
	if v != currentSchemaVersion {
		t.Errorf("schema_version = %d after Migrate, want %d", v, currentSchemaVersion)
	}
}

func TestMigrateFromV1(t *testing.T) {
	db := mustOpen(t)

	// A v1 cache: everything except the pending queue.
	v1DDL := `
CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT);
CREATE TABLE issues (
	id TEXT PRIMARY KEY, payload TEXT NOT NULL, status TEXT NOT NULL, category TEXT,
	reporter_id TEXT, generation INTEGER NOT NULL, created_at TEXT NOT NULL, updated_at TEXT NOT NULL
);
INSERT INTO meta (key, value) VALUES ('schema_version', '1');
`
	if _, err := db.Exec(v1DDL); err != nil {
		t.Fatalf("creating v1 schema: %v", err)
	}

	var name string
	if err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='pending_reports'",
	).Scan(&name); err == nil {
		t.Fatal("pending_reports should not exist before migration")
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	v, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("schema_version = %d after migration, want 2", v)
	}
	if err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='pending_reports'",
	).Scan(&name); err != nil {
		t.Errorf("pending_reports should exist after migration: %v", err)
	}
}

func TestCommentsRequireCachedIssue(t *testing.T) {
	db := mustInit(t)

	_, err := db.Exec(
		"INSERT INTO comments (id, issue_id, body, created_at) VALUES ('c', 'missing', 'x', '2026-01-01T00:00:00Z')",
	)
	if err == nil {
		t.Error("expected foreign key violation, got nil")
	}
}
