package store

import "fmt"

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "snapshots: catalog of saved store snapshots",
		SQL: `
CREATE TABLE snapshots (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL,
    records    INTEGER NOT NULL DEFAULT 0,
    bytes      INTEGER NOT NULL DEFAULT 0,
    checksum   TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT 'manual' CHECK (reason IN ('manual', 'autosave', 'shutdown', 'reset'))
);

CREATE INDEX idx_snapshots_created ON snapshots(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "decay_passes: history of decay sweeps",
		SQL: `
CREATE TABLE decay_passes (
    id       INTEGER PRIMARY KEY,
    ran_at   INTEGER NOT NULL,
    mode     TEXT NOT NULL DEFAULT 'decay' CHECK (mode IN ('decay', 'soft', 'hard')),
    scanned  INTEGER NOT NULL,
    updated  INTEGER NOT NULL,
    skipped  INTEGER NOT NULL,
    evicted  INTEGER NOT NULL
);

CREATE INDEX idx_passes_ran_at ON decay_passes(ran_at DESC);
`,
	},
	{
		Version:     3,
		Description: "evictions: records dropped by decay or reset",
		SQL: `
CREATE TABLE evictions (
    id          INTEGER PRIMARY KEY,
    pass_id     INTEGER NOT NULL,
    record_id   TEXT NOT NULL,
    category    TEXT,
    content     TEXT,
    importance  REAL NOT NULL,
    evicted_at  INTEGER NOT NULL,
    FOREIGN KEY (pass_id) REFERENCES decay_passes(id) ON DELETE CASCADE
);

CREATE INDEX idx_evictions_pass    ON evictions(pass_id);
CREATE INDEX idx_evictions_evicted ON evictions(evicted_at DESC);
`,
	},
}

// migrate applies every migration newer than the highest recorded version.
func (db *DB) migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one migration and records it in the same transaction.
func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_versions (version, description) VALUES (?, ?)`, m.Version, m.Description); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh journal.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_versions`).Scan(&version)
	return version, err
}
