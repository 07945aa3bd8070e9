package store

import (
	"context"
	"database/sql"
	"time"

	"hexorsite/internal/models"
)

func (s *Store) CreateSession(ctx context.Context, sess models.Session) (int64, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	res, err := conn.ExecContext(ctx,
		`INSERT INTO sessions(user_id,token_hash,ip_address,user_agent,created_at,expires_at,is_active) VALUES(?,?,?,?,?,?,1)`,
		sess.UserID, sess.TokenHash, sess.IPAddress, sess.UserAgent, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueErr(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return res.LastInsertId()
}

// LookupSession resolves a token hash to the owning identity. Inactive or
// expired sessions and inactive owners all come back as ErrNotFound.
func (s *Store) LookupSession(ctx context.Context, tokenHash string, now time.Time) (models.Identity, models.Session, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.Identity{}, models.Session{}, err
	}
	defer release()

	var id models.Identity
	var sess models.Session
	var phone, position, pic sql.NullString
	err = conn.QueryRowContext(ctx,
		`SELECT s.id,s.user_id,s.token_hash,s.ip_address,s.user_agent,s.created_at,s.expires_at,
		        u.id,u.name,u.email,u.role,u.phone,u.position,u.profile_pic
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash=? AND s.is_active=1 AND s.expires_at > ? AND u.is_active=1`,
		tokenHash, now.UTC(),
	).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IPAddress, &sess.UserAgent, &sess.CreatedAt, &sess.ExpiresAt,
		&id.ID, &id.Name, &id.Email, &id.Role, &phone, &position, &pic)
	if err == sql.ErrNoRows {
		return models.Identity{}, models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Identity{}, models.Session{}, err
	}
	sess.IsActive = true
	id.IsActive = true
	id.Phone = nullString(phone)
	id.Position = nullString(position)
	id.ProfilePic = nullString(pic)
	return id, sess, nil
}

func (s *Store) RevokeSession(ctx context.Context, tokenHash string) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	_, err = conn.ExecContext(ctx, `UPDATE sessions SET is_active=0 WHERE token_hash=? AND is_active=1`, tokenHash)
	return err
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID int64) (int64, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	res, err := conn.ExecContext(ctx, `UPDATE sessions SET is_active=0 WHERE user_id=? AND is_active=1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredSessions removes rows whose expiry is strictly before now,
// active or not.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	res, err := conn.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountSessions(ctx context.Context) (int, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	var n int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&n)
	return n, err
}
