package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jasper-companion/jasper/internal/domain"
)

const eventColumns = `id, source_id, calendar_id, title, description, start_time, end_time,
	location, event_type, participants, raw_data_json, is_all_day`

// EventsInRange returns events with start in [start, end), ordered by start.
func (d *DB) EventsInRange(start, end time.Time) ([]domain.Event, error) {
	rows, err := d.db.Query(
		`SELECT `+eventColumns+` FROM events
		 WHERE start_time >= ? AND start_time < ?
		 ORDER BY start_time`,
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events in range: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// EventBySourceID returns the event with the given provider id, or nil.
func (d *DB) EventBySourceID(sourceID string) (*domain.Event, error) {
	row := d.db.QueryRow(
		`SELECT `+eventColumns+` FROM events WHERE source_id = ?`, sourceID,
	)
	return scanEvent(row)
}

// ExistingSourceIDs reports which of the given source ids are already
// stored. Used to pre-filter before a bulk insert.
func (d *DB) ExistingSourceIDs(sourceIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(sourceIDs) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?,", len(sourceIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(sourceIDs))
	for i, id := range sourceIDs {
		args[i] = id
	}

	rows, err := d.db.Query(
		`SELECT source_id FROM events WHERE source_id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query existing source ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// CreateEvent inserts a single event and returns its id.
func (d *DB) CreateEvent(ev domain.Event) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO events (source_id, calendar_id, title, description, start_time, end_time,
			location, event_type, participants, raw_data_json, is_all_day)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SourceID, ev.CalendarID, ev.Title, ev.Description, ev.StartTime, ev.EndTime,
		ev.Location, ev.EventType, ev.Participants, ev.RawDataJSON, boolToInt(ev.IsAllDay),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", ev.SourceID, err)
	}
	return res.LastInsertId()
}

// CreateEventsBulk inserts events in a single transaction, skipping any
// whose source_id is already present. Returns the ids of newly inserted
// rows in input order; the result is shorter than the input when rows are
// skipped. On error, the whole transaction is rolled back.
func (d *DB) CreateEventsBulk(events []domain.Event) ([]int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback()

	check, err := tx.Prepare(`SELECT 1 FROM events WHERE source_id = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare check: %w", err)
	}
	defer check.Close()

	insert, err := tx.Prepare(
		`INSERT INTO events (source_id, calendar_id, title, description, start_time, end_time,
			location, event_type, participants, raw_data_json, is_all_day)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	var ids []int64
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if seen[ev.SourceID] {
			continue
		}
		seen[ev.SourceID] = true

		var one int
		err := check.QueryRow(ev.SourceID).Scan(&one)
		switch {
		case err == nil:
			continue // already stored
		case err != sql.ErrNoRows:
			return nil, fmt.Errorf("check event %s: %w", ev.SourceID, err)
		}

		res, err := insert.Exec(
			ev.SourceID, ev.CalendarID, ev.Title, ev.Description, ev.StartTime, ev.EndTime,
			ev.Location, ev.EventType, ev.Participants, ev.RawDataJSON, boolToInt(ev.IsAllDay),
		)
		if err != nil {
			return nil, fmt.Errorf("bulk insert event %s: %w", ev.SourceID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk insert: %w", err)
	}
	return ids, nil
}

func scanEvent(s scanner) (*domain.Event, error) {
	var ev domain.Event
	var allDay sql.NullInt64
	err := s.Scan(&ev.ID, &ev.SourceID, &ev.CalendarID, &ev.Title, &ev.Description,
		&ev.StartTime, &ev.EndTime, &ev.Location, &ev.EventType,
		&ev.Participants, &ev.RawDataJSON, &allDay)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}
	ev.IsAllDay = allDay.Valid && allDay.Int64 != 0
	return &ev, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
