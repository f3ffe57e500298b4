package store

import (
	"fmt"
	"time"
)

// Snapshot reasons recorded in the catalog.
const (
	ReasonManual   = "manual"
	ReasonAutosave = "autosave"
	ReasonShutdown = "shutdown"
	ReasonReset    = "reset"
)

// SnapshotEntry is a catalog row for a saved snapshot.
type SnapshotEntry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	Records   int    `json:"records"`
	Bytes     int64  `json:"bytes"`
	Checksum  string `json:"checksum"`
	Reason    string `json:"reason"`
}

// RecordSnapshot adds a saved snapshot to the catalog. Recording the same name
// twice updates the existing row.
func (db *DB) RecordSnapshot(e *SnapshotEntry) error {
	if e.Reason == "" {
		e.Reason = ReasonManual
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	result, err := db.Exec(`
		INSERT INTO snapshots (name, created_at, records, bytes, checksum, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			records = excluded.records, bytes = excluded.bytes,
			checksum = excluded.checksum, reason = excluded.reason
	`, e.Name, e.CreatedAt, e.Records, e.Bytes, e.Checksum, e.Reason)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil && id != 0 {
		e.ID = id
	}
	return nil
}

// ForgetSnapshot removes a pruned snapshot from the catalog. Forgetting an
// unknown name is not an error.
func (db *DB) ForgetSnapshot(name string) error {
	if _, err := db.Exec(`DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("forget snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns catalog rows newest first.
func (db *DB) ListSnapshots(limit int) ([]SnapshotEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, name, created_at, records, bytes, checksum, reason
		FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotEntry
	for rows.Next() {
		var e SnapshotEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt, &e.Records, &e.Bytes, &e.Checksum, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
