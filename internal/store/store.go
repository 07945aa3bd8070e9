package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"hexorsite/internal/db"
	"hexorsite/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

// Store runs every statement against whatever connection its source hands out
// at call time, so a reopened connection is picked up by the next call.
type Store struct {
	src db.Source
}

func New(src db.Source) *Store { return &Store{src: src} }

func (s *Store) Ping(ctx context.Context) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	return conn.PingContext(ctx)
}

type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Phone        *string
	Position     *string
}

const userColumns = `id,name,email,password_hash,role,phone,position,profile_pic,is_active,created_at,last_login,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var phone, position, pic sql.NullString
	var active int
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &phone, &position, &pic, &active, &u.CreatedAt, &lastLogin, &u.UpdatedAt); err != nil {
		return models.User{}, err
	}
	u.Phone = nullString(phone)
	u.Position = nullString(position)
	u.ProfilePic = nullString(pic)
	u.IsActive = active == 1
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, nu NewUser) (models.User, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.User{}, err
	}
	defer release()

	now := time.Now().UTC()
	u := models.User{
		Name:         strings.TrimSpace(nu.Name),
		Email:        normalizeEmail(nu.Email),
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		Phone:        nu.Phone,
		Position:     nu.Position,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	res, err := conn.ExecContext(ctx,
		`INSERT INTO users(name,email,password_hash,role,phone,position,is_active,created_at,updated_at) VALUES(?,?,?,?,?,?,1,?,?)`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.Phone, u.Position, now, now,
	)
	if err != nil {
		if isUniqueErr(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, err
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// EnsureAdmin creates the bootstrap admin, or promotes and reactivates the
// account if the email is already taken.
func (s *Store) EnsureAdmin(ctx context.Context, name, email, passwordHash string) error {
	email = normalizeEmail(email)
	if email == "" || passwordHash == "" {
		return nil
	}
	u, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_, err = s.CreateUser(ctx, NewUser{Name: name, Email: email, PasswordHash: passwordHash, Role: models.RoleAdmin})
		return err
	}
	if err != nil {
		return err
	}

	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	_, err = conn.ExecContext(ctx,
		`UPDATE users SET role='admin', is_active=1, password_hash=?, updated_at=? WHERE id=?`,
		passwordHash, time.Now().UTC(), u.ID,
	)
	return err
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	var count int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role='admin' AND is_active=1`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.User{}, err
	}
	defer release()
	u, err := scanUser(conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=? COLLATE NOCASE`, normalizeEmail(email)))
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.User{}, err
	}
	defer release()
	u, err := scanUser(conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type UserUpdate struct {
	Name     string
	Email    string
	Role     string
	Phone    *string
	Position *string
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd UserUpdate) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx,
		`UPDATE users SET name=?, email=?, role=?, phone=?, position=?, updated_at=? WHERE id=?`,
		strings.TrimSpace(upd.Name), normalizeEmail(upd.Email), upd.Role, upd.Phone, upd.Position, time.Now().UTC(), id,
	)
	if err != nil {
		if isUniqueErr(err) {
			return ErrConflict
		}
		return err
	}
	return affectedOne(res)
}

type ProfileUpdate struct {
	Name       string
	Phone      *string
	Position   *string
	ProfilePic *string
}

// UpdateProfile changes the self-service fields. A nil ProfilePic keeps the
// current picture.
func (s *Store) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx,
		`UPDATE users SET name=?, phone=?, position=?, profile_pic=COALESCE(?, profile_pic), updated_at=? WHERE id=?`,
		strings.TrimSpace(upd.Name), upd.Phone, upd.Position, upd.ProfilePic, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (s *Store) UpdateUserPasswordHash(ctx context.Context, id int64, passwordHash string) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx, `UPDATE users SET is_active=?, updated_at=? WHERE id=?`, boolToInt(active), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if err := affectedOne(res); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, id)
	return err
}

func (s *Store) TouchUserLastLogin(ctx context.Context, id int64, at time.Time) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	_, err = conn.ExecContext(ctx, `UPDATE users SET last_login=? WHERE id=?`, at.UTC(), id)
	return err
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isUniqueErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
