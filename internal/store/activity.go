package store

import (
	"context"
	"database/sql"
	"time"

	"hexorsite/internal/models"
)

// InsertActivity appends one audit row. Entries are never updated.
func (s *Store) InsertActivity(ctx context.Context, e models.ActivityLogEntry) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err = conn.ExecContext(ctx,
		`INSERT INTO activity_logs(user_id,user_name,action,details,ip_address,user_agent,created_at) VALUES(?,?,?,?,?,?,?)`,
		e.UserID, e.UserName, e.Action, e.Details, e.IPAddress, e.UserAgent, e.CreatedAt.UTC(),
	)
	return err
}

// ListActivity returns the newest entries first. A non-nil userID restricts
// the result to that user's own entries.
func (s *Store) ListActivity(ctx context.Context, userID *int64, limit int) ([]models.ActivityLogEntry, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT a.id,a.user_id,a.user_name,u.email,a.action,a.details,a.ip_address,a.user_agent,a.created_at
		FROM activity_logs a LEFT JOIN users u ON u.id = a.user_id`
	args := []any{}
	if userID != nil {
		query += ` WHERE a.user_id=?`
		args = append(args, *userID)
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ActivityLogEntry{}
	for rows.Next() {
		var e models.ActivityLogEntry
		var uid sql.NullInt64
		var email, details, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &uid, &e.UserName, &email, &e.Action, &details, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			v := uid.Int64
			e.UserID = &v
		}
		e.UserEmail = nullString(email)
		e.Details = nullString(details)
		e.IPAddress = nullString(ip)
		e.UserAgent = nullString(ua)
		out = append(out, e)
	}
	return out, rows.Err()
}
