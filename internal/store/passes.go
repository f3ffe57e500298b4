package store

import (
	"database/sql"
	"fmt"
)

// DecayPass is a journal row for one decay sweep or reset.
type DecayPass struct {
	ID      int64  `json:"id"`
	RanAt   int64  `json:"ran_at"`
	Mode    string `json:"mode"` // decay, soft, hard
	Scanned int    `json:"scanned"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Evicted int    `json:"evicted"`
}

// Eviction is a journal row for a record dropped by a pass.
type Eviction struct {
	ID         int64   `json:"id"`
	PassID     int64   `json:"pass_id"`
	RecordID   string  `json:"record_id"`
	Category   string  `json:"category,omitempty"`
	Content    string  `json:"content,omitempty"`
	Importance float64 `json:"importance"`
	EvictedAt  int64   `json:"evicted_at"`
}

// RecordDecayPass stores a pass and its evictions in one transaction.
func (db *DB) RecordDecayPass(p *DecayPass, evicted []Eviction) error {
	if p.Mode == "" {
		p.Mode = "decay"
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin decay pass: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO decay_passes (ran_at, mode, scanned, updated, skipped, evicted)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.RanAt, p.Mode, p.Scanned, p.Updated, p.Skipped, len(evicted))
	if err != nil {
		return fmt.Errorf("insert decay pass: %w", err)
	}
	p.ID, _ = result.LastInsertId()
	p.Evicted = len(evicted)

	for i := range evicted {
		ev := &evicted[i]
		ev.PassID = p.ID
		if ev.EvictedAt == 0 {
			ev.EvictedAt = p.RanAt
		}
		res, err := tx.Exec(`
			INSERT INTO evictions (pass_id, record_id, category, content, importance, evicted_at)
			VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
		`, ev.PassID, ev.RecordID, ev.Category, ev.Content, ev.Importance, ev.EvictedAt)
		if err != nil {
			return fmt.Errorf("insert eviction %s: %w", ev.RecordID, err)
		}
		ev.ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decay pass: %w", err)
	}
	return nil
}

// RecentDecayPasses returns the most recent passes, newest first.
func (db *DB) RecentDecayPasses(limit int) ([]DecayPass, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, ran_at, mode, scanned, updated, skipped, evicted
		FROM decay_passes ORDER BY ran_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent decay passes: %w", err)
	}
	defer rows.Close()

	var out []DecayPass
	for rows.Next() {
		var p DecayPass
		if err := rows.Scan(&p.ID, &p.RanAt, &p.Mode, &p.Scanned, &p.Updated, &p.Skipped, &p.Evicted); err != nil {
			return nil, fmt.Errorf("scan decay pass: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentEvictions returns the most recently evicted records, newest first.
func (db *DB) RecentEvictions(limit int) ([]Eviction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, pass_id, record_id, category, content, importance, evicted_at
		FROM evictions ORDER BY evicted_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent evictions: %w", err)
	}
	defer rows.Close()

	var out []Eviction
	for rows.Next() {
		var e Eviction
		var category, content sql.NullString
		if err := rows.Scan(&e.ID, &e.PassID, &e.RecordID, &category, &content, &e.Importance, &e.EvictedAt); err != nil {
			return nil, fmt.Errorf("scan eviction: %w", err)
		}
		e.Category = category.String
		e.Content = content.String
		out = append(out, e)
	}
	return out, rows.Err()
}
