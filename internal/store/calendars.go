package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jasper-companion/jasper/internal/domain"
)

// googleService is the single account row every calendar hangs off.
const googleService = "google"

// CreateOrUpdateCalendar upserts a calendar by (account, external id) and
// returns its internal id. The primary account row is created lazily on
// first use. The color is inferred from the external id for new rows.
func (d *DB) CreateOrUpdateCalendar(externalID, name string, calType domain.CalendarType) (int64, error) {
	accountID, err := d.ensureAccount()
	if err != nil {
		return 0, err
	}

	var existing int64
	err = d.db.QueryRow(
		`SELECT id FROM calendars WHERE external_id = ? AND account_id = ?`,
		externalID, accountID,
	).Scan(&existing)
	switch {
	case err == nil:
		_, err = d.db.Exec(
			`UPDATE calendars SET calendar_name = ?, calendar_type = ? WHERE id = ?`,
			name, string(calType), existing,
		)
		if err != nil {
			return 0, fmt.Errorf("update calendar %s: %w", externalID, err)
		}
		return existing, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("lookup calendar %s: %w", externalID, err)
	}

	res, err := d.db.Exec(
		`INSERT INTO calendars (account_id, external_id, calendar_name, calendar_type, color)
		 VALUES (?, ?, ?, ?, ?)`,
		accountID, externalID, name, string(calType), domain.InferCalendarColor(externalID),
	)
	if err != nil {
		return 0, fmt.Errorf("insert calendar %s: %w", externalID, err)
	}
	return res.LastInsertId()
}

// CalendarInfo returns a calendar by internal id, or nil when missing.
func (d *DB) CalendarInfo(id int64) (*domain.Calendar, error) {
	row := d.db.QueryRow(
		`SELECT id, account_id, external_id, calendar_name, calendar_type, color
		 FROM calendars WHERE id = ?`, id,
	)

	var cal domain.Calendar
	var calType sql.NullString
	err := row.Scan(&cal.ID, &cal.AccountID, &cal.ExternalID, &cal.Name, &calType, &cal.Color)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cal.Type = domain.CalendarUnknown
	if calType.Valid {
		cal.Type = domain.CalendarType(calType.String)
	}
	return &cal, nil
}

// ensureAccount returns the id of the primary service account, creating it
// if it does not exist yet.
func (d *DB) ensureAccount() (int64, error) {
	var id int64
	err := d.db.QueryRow(`SELECT id FROM accounts WHERE service_name = ?`, googleService).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("lookup account: %w", err)
	}

	res, err := d.db.Exec(
		`INSERT INTO accounts (service_name, user_identifier, refresh_token_ref, last_sync_timestamp)
		 VALUES (?, 'authenticated_user', 'stored_in_token_file', ?)`,
		googleService, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return res.LastInsertId()
}
