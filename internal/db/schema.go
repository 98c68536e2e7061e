package db

import (
	"database/sql"
	"fmt"
	"strconv"
)

const currentSchemaVersion = 2

// schemaDDL contains the CREATE TABLE statements for the current schema.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS issues (
	id          TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL,
	category    TEXT,
	reporter_id TEXT,
	generation  INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT NOT NULL,
	issue_id   TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	body       TEXT NOT NULL,
	author     TEXT,
	created_at TEXT NOT NULL,
	PRIMARY KEY (issue_id, id)
);

CREATE TABLE IF NOT EXISTS activity_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id   TEXT,
	action     TEXT NOT NULL,
	old_value  TEXT,
	new_value  TEXT,
	source     TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_generation ON issues(generation);
CREATE INDEX IF NOT EXISTS idx_activity_issue_id ON activity_log(issue_id);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);

CREATE TABLE IF NOT EXISTS pending_reports (
	client_id    TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT,
	submitted_at TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
`

// Initialize creates all tables if they don't exist and sets the schema version.
func Initialize(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaDDL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	// Set schema version only if not already set.
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(currentSchemaVersion),
	)
	if err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}

	return tx.Commit()
}

// SchemaVersion returns the current schema version from the meta table.
func SchemaVersion(db *sql.DB) (int, error) {
	var val string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&val)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", val, err)
	}

	return v, nil
}

// migrations is keyed by the version each function migrates TO.
// Version 1 caches predate durable pending submissions.
var migrations = map[int]func(tx *sql.Tx) error{
	2: func(tx *sql.Tx) error {
		_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS pending_reports (
	client_id    TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT,
	submitted_at TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
`)
		return err
	},
}

// Migrate applies pending migrations in order. It is a no-op at the latest
// version.
func Migrate(db *sql.DB) error {
	version, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for v := version + 1; v <= currentSchemaVersion; v++ {
		migrateFn, ok := migrations[v]
		if !ok {
			return fmt.Errorf("missing migration for version %d", v)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d transaction: %w", v, err)
		}

		if err := migrateFn(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", v, err)
		}

		if _, err := tx.Exec(
			`UPDATE meta SET value = ? WHERE key = 'schema_version'`,
			strconv.Itoa(v),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("updating schema version to %d: %w", v, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", v, err)
		}
	}

	return nil
}

func getMeta(db *sql.DB, key string) (string, error) {
	var val sql.NullString
	err := db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return val.String, nil
}

func setMeta(ex execer, key, value string) error {
	_, err := ex.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
