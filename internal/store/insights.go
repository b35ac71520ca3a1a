package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jasper-companion/jasper/internal/domain"
)

// StoreInsight persists a generated insight and returns its id.
// Insights are never mutated after insert.
func (d *DB) StoreInsight(emoji, text, contextHash string) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO insights (created_at, emoji, insight, context_hash) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), emoji, text, contextHash,
	)
	if err != nil {
		return 0, fmt.Errorf("insert insight: %w", err)
	}
	return res.LastInsertId()
}

// LatestInsight returns the most recently created insight, or nil.
func (d *DB) LatestInsight() (*domain.Insight, error) {
	row := d.db.QueryRow(
		`SELECT id, created_at, emoji, insight, context_hash
		 FROM insights ORDER BY created_at DESC, id DESC LIMIT 1`,
	)
	return scanInsight(row)
}

// InsightByID returns the insight with the given id, or nil.
func (d *DB) InsightByID(id int64) (*domain.Insight, error) {
	row := d.db.QueryRow(
		`SELECT id, created_at, emoji, insight, context_hash FROM insights WHERE id = ?`, id,
	)
	return scanInsight(row)
}

// InsightCount returns the total number of stored insights.
func (d *DB) InsightCount() (int64, error) {
	var n int64
	err := d.db.QueryRow(`SELECT COUNT(*) FROM insights`).Scan(&n)
	return n, err
}

// StoreContextSnapshot records the context JSON that produced an insight.
func (d *DB) StoreContextSnapshot(insightID int64, kind, payloadJSON, metadata string) (int64, error) {
	var meta any
	if metadata != "" {
		meta = metadata
	}
	res, err := d.db.Exec(
		`INSERT INTO context_snapshots (insight_id, kind, payload, metadata) VALUES (?, ?, ?, ?)`,
		insightID, kind, payloadJSON, meta,
	)
	if err != nil {
		return 0, fmt.Errorf("insert context snapshot: %w", err)
	}
	return res.LastInsertId()
}

// ContextSnapshotsForInsight returns the stored snapshots for one insight.
func (d *DB) ContextSnapshotsForInsight(insightID int64) ([]domain.ContextSnapshotRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, insight_id, kind, payload, metadata FROM context_snapshots WHERE insight_id = ?`,
		insightID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ContextSnapshotRecord
	for rows.Next() {
		var rec domain.ContextSnapshotRecord
		var meta sql.NullString
		if err := rows.Scan(&rec.ID, &rec.InsightID, &rec.Kind, &rec.Payload, &meta); err != nil {
			return nil, err
		}
		rec.Metadata = meta.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanInsight(s scanner) (*domain.Insight, error) {
	var in domain.Insight
	var createdAt int64
	var hash sql.NullString
	err := s.Scan(&in.ID, &createdAt, &in.Emoji, &in.Text, &hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	in.CreatedAt = time.Unix(createdAt, 0).UTC()
	in.ContextHash = hash.String
	return &in, nil
}
