package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jasper-companion/jasper/internal/domain"
)

// RegisterFrontend upserts a frontend liveness record. Calling it twice is
// equivalent to calling it once, except that the heartbeat advances.
func (d *DB) RegisterFrontend(frontendID string, pid *int) error {
	now := time.Now().Unix()
	_, err := d.db.Exec(
		`INSERT INTO frontends (frontend_id, pid, first_seen, last_heartbeat)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(frontend_id) DO UPDATE SET
			pid=excluded.pid,
			last_heartbeat=excluded.last_heartbeat`,
		frontendID, pid, now, now,
	)
	if err != nil {
		return fmt.Errorf("register frontend %s: %w", frontendID, err)
	}
	return nil
}

// UnregisterFrontend removes a frontend record.
func (d *DB) UnregisterFrontend(frontendID string) error {
	_, err := d.db.Exec(`DELETE FROM frontends WHERE frontend_id = ?`, frontendID)
	if err != nil {
		return fmt.Errorf("unregister frontend %s: %w", frontendID, err)
	}
	return nil
}

// UpdateHeartbeat refreshes a frontend's liveness timestamp.
func (d *DB) UpdateHeartbeat(frontendID string) error {
	_, err := d.db.Exec(
		`UPDATE frontends SET last_heartbeat = ? WHERE frontend_id = ?`,
		time.Now().Unix(), frontendID,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat %s: %w", frontendID, err)
	}
	return nil
}

// HasActiveFrontends reports whether any frontend heartbeat falls within
// the liveness window.
func (d *DB) HasActiveFrontends() (bool, error) {
	cutoff := time.Now().Add(-domain.FrontendTTL).Unix()
	var one int
	err := d.db.QueryRow(
		`SELECT 1 FROM frontends WHERE last_heartbeat >= ? LIMIT 1`, cutoff,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ActiveFrontends returns all frontends with a heartbeat inside the
// liveness window.
func (d *DB) ActiveFrontends() ([]domain.FrontendRegistration, error) {
	cutoff := time.Now().Add(-domain.FrontendTTL).Unix()
	rows, err := d.db.Query(
		`SELECT frontend_id, pid, first_seen, last_heartbeat
		 FROM frontends WHERE last_heartbeat >= ? ORDER BY frontend_id`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []domain.FrontendRegistration
	for rows.Next() {
		var reg domain.FrontendRegistration
		var pid sql.NullInt64
		var firstSeen, lastHeartbeat int64
		if err := rows.Scan(&reg.FrontendID, &pid, &firstSeen, &lastHeartbeat); err != nil {
			return nil, err
		}
		if pid.Valid {
			p := int(pid.Int64)
			reg.PID = &p
		}
		reg.FirstSeen = time.Unix(firstSeen, 0).UTC()
		reg.LastHeartbeat = time.Unix(lastHeartbeat, 0).UTC()
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// PruneExpiredFrontends deletes records whose heartbeat is older than the
// liveness window. Returns the number of rows removed.
func (d *DB) PruneExpiredFrontends() (int64, error) {
	cutoff := time.Now().Add(-domain.FrontendTTL).Unix()
	res, err := d.db.Exec(`DELETE FROM frontends WHERE last_heartbeat < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune frontends: %w", err)
	}
	return res.RowsAffected()
}
