package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hexorsite/internal/models"
)

const serviceColumns = `id,name,description,category,icon,is_active,created_at,updated_at`

func scanService(row rowScanner) (models.Service, error) {
	var sv models.Service
	var active int
	if err := row.Scan(&sv.ID, &sv.Name, &sv.Description, &sv.Category, &sv.Icon, &active, &sv.CreatedAt, &sv.UpdatedAt); err != nil {
		return models.Service{}, err
	}
	sv.IsActive = active == 1
	return sv, nil
}

func (s *Store) ListServices(ctx context.Context, activeOnly bool) ([]models.Service, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	query := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		query += ` WHERE is_active=1`
	}
	rows, err := conn.QueryContext(ctx, query+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Service{}
	for rows.Next() {
		sv, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *Store) GetService(ctx context.Context, id int64) (models.Service, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.Service{}, err
	}
	defer release()
	sv, err := scanService(conn.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return models.Service{}, ErrNotFound
	}
	return sv, err
}

func (s *Store) CreateService(ctx context.Context, sv models.Service) (models.Service, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.Service{}, err
	}
	defer release()
	now := time.Now().UTC()
	sv.CreatedAt, sv.UpdatedAt = now, now
	res, err := conn.ExecContext(ctx,
		`INSERT INTO services(name,description,category,icon,is_active,created_at,updated_at) VALUES(?,?,?,?,?,?,?)`,
		sv.Name, sv.Description, sv.Category, sv.Icon, boolToInt(sv.IsActive), now, now,
	)
	if err != nil {
		return models.Service{}, err
	}
	if sv.ID, err = res.LastInsertId(); err != nil {
		return models.Service{}, err
	}
	return sv, nil
}

func (s *Store) UpdateService(ctx context.Context, sv models.Service) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx,
		`UPDATE services SET name=?, description=?, category=?, icon=?, is_active=?, updated_at=? WHERE id=?`,
		sv.Name, sv.Description, sv.Category, sv.Icon, boolToInt(sv.IsActive), time.Now().UTC(), sv.ID,
	)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (s *Store) DeleteService(ctx context.Context, id int64) error {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx, `DELETE FROM services WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func submissionTable(kind models.SubmissionKind) (string, error) {
	switch kind {
	case models.SubmissionContact:
		return "contact_submissions", nil
	case models.SubmissionGetInTouch:
		return "get_in_touch_submissions", nil
	default:
		return "", fmt.Errorf("unknown submission kind %q", kind)
	}
}

func (s *Store) CreateSubmission(ctx context.Context, sub models.Submission) (models.Submission, error) {
	table, err := submissionTable(sub.Kind)
	if err != nil {
		return models.Submission{}, err
	}
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.Submission{}, err
	}
	defer release()
	sub.Status = "new"
	sub.SubmittedAt = time.Now().UTC()
	res, err := conn.ExecContext(ctx,
		`INSERT INTO `+table+`(name,email,company,service,message,status,submitted_at) VALUES(?,?,?,?,?,?,?)`,
		sub.Name, normalizeEmail(sub.Email), sub.Company, sub.Service, sub.Message, sub.Status, sub.SubmittedAt,
	)
	if err != nil {
		return models.Submission{}, err
	}
	if sub.ID, err = res.LastInsertId(); err != nil {
		return models.Submission{}, err
	}
	sub.Email = normalizeEmail(sub.Email)
	return sub, nil
}

func submissionSelect(table string) string {
	return `SELECT t.id,t.name,t.email,t.company,t.service,t.message,t.status,t.submitted_at,t.updated_by,u.name,t.updated_at
		 FROM ` + table + ` t LEFT JOIN users u ON u.id = t.updated_by`
}

func scanSubmission(row rowScanner, kind models.SubmissionKind) (models.Submission, error) {
	sub := models.Submission{Kind: kind}
	var company, service, updatedByName sql.NullString
	var updatedBy sql.NullInt64
	var updatedAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.Name, &sub.Email, &company, &service, &sub.Message, &sub.Status, &sub.SubmittedAt, &updatedBy, &updatedByName, &updatedAt); err != nil {
		return models.Submission{}, err
	}
	sub.Company = nullString(company)
	sub.Service = nullString(service)
	sub.UpdatedByName = nullString(updatedByName)
	if updatedBy.Valid {
		v := updatedBy.Int64
		sub.UpdatedBy = &v
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		sub.UpdatedAt = &t
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, kind models.SubmissionKind) ([]models.Submission, error) {
	table, err := submissionTable(kind)
	if err != nil {
		return nil, err
	}
	conn, release, err := s.src.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := conn.QueryContext(ctx, submissionSelect(table)+` ORDER BY t.submitted_at DESC, t.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) GetSubmission(ctx context.Context, kind models.SubmissionKind, id int64) (models.Submission, error) {
	table, err := submissionTable(kind)
	if err != nil {
		return models.Submission{}, err
	}
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.Submission{}, err
	}
	defer release()
	sub, err := scanSubmission(conn.QueryRowContext(ctx, submissionSelect(table)+` WHERE t.id=?`, id), kind)
	if err == sql.ErrNoRows {
		return models.Submission{}, ErrNotFound
	}
	return sub, err
}

func (s *Store) UpdateSubmissionStatus(ctx context.Context, kind models.SubmissionKind, id int64, status string, updatedBy int64) error {
	table, err := submissionTable(kind)
	if err != nil {
		return err
	}
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx,
		`UPDATE `+table+` SET status=?, updated_by=?, updated_at=? WHERE id=?`,
		strings.ToLower(status), updatedBy, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (s *Store) DeleteSubmission(ctx context.Context, kind models.SubmissionKind, id int64) error {
	table, err := submissionTable(kind)
	if err != nil {
		return err
	}
	conn, release, err := s.src.Acquire()
	if err != nil {
		return err
	}
	defer release()
	res, err := conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (s *Store) InsertChatMessage(ctx context.Context, m models.ChatMessage) (models.ChatMessage, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.ChatMessage{}, err
	}
	defer release()
	m.CreatedAt = time.Now().UTC()
	res, err := conn.ExecContext(ctx,
		`INSERT INTO team_chat(user_id,user_name,user_role,message,created_at) VALUES(?,?,?,?,?)`,
		m.UserID, m.UserName, m.UserRole, m.Message, m.CreatedAt,
	)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return models.ChatMessage{}, err
	}
	return m, nil
}

// ListChatMessages returns the latest limit messages, oldest first.
func (s *Store) ListChatMessages(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if limit <= 0 {
		limit = 50
	}
	rows, err := conn.QueryContext(ctx,
		`SELECT id,user_id,user_name,user_role,message,created_at FROM team_chat ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		var uid sql.NullInt64
		if err := rows.Scan(&m.ID, &uid, &m.UserName, &m.UserRole, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			v := uid.Int64
			m.UserID = &v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DashboardStats counts headline figures. A non-nil userID scopes the user and
// activity figures to that user, for non-admin callers.
func (s *Store) DashboardStats(ctx context.Context, userID *int64) (models.DashboardStats, error) {
	conn, release, err := s.src.Acquire()
	if err != nil {
		return models.DashboardStats{}, err
	}
	defer release()
	var st models.DashboardStats
	err = conn.QueryRowContext(ctx, `SELECT
		CASE WHEN ? IS NULL THEN (SELECT COUNT(1) FROM users) ELSE 0 END,
		(SELECT COUNT(1) FROM services WHERE is_active=1),
		(SELECT COUNT(1) FROM contact_submissions WHERE status='new'),
		(SELECT COUNT(1) FROM get_in_touch_submissions WHERE status='new'),
		(SELECT COUNT(1) FROM activity_logs WHERE ? IS NULL OR user_id = ?)`,
		userID, userID, userID,
	).Scan(&st.TotalUsers, &st.TotalServices, &st.NewContactMessages, &st.NewGetInTouchMessages, &st.TotalActivityLogs)
	return st, err
}
