package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Step is one idempotent unit of schema setup. Steps run in order and may be
// re-run against an already initialized file.
type Step struct {
	Name string
	Run  func(ctx context.Context, db *sql.DB) error
}

func execStep(name, stmt string) Step {
	return Step{Name: name, Run: func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	}}
}

func addColumnStep(name, stmt string) Step {
	return Step{Name: name, Run: func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isDuplicateColumnErr(err) {
			return err
		}
		return nil
	}}
}

// DefaultService is seeded into an empty catalog on first run.
type DefaultService struct {
	Name        string
	Description string
	Category    string
	Icon        string
}

var DefaultServices = []DefaultService{
	{
		Name:        "SOC Analysis",
		Description: "24/7 Security Operations Center monitoring and analysis to detect and respond to threats in real-time.",
		Category:    "cybersecurity",
		Icon:        "fas fa-shield-alt",
	},
	{
		Name:        "Penetration Testing",
		Description: "Comprehensive security testing to identify vulnerabilities in your systems, applications and networks.",
		Category:    "cybersecurity",
		Icon:        "fas fa-bug",
	},
	{
		Name:        "Security Audit",
		Description: "Thorough security assessment and compliance auditing for your organization's infrastructure and processes.",
		Category:    "cybersecurity",
		Icon:        "fas fa-clipboard-check",
	},
}

// Steps is the full first-run setup: SchemaSteps followed by seeding.
func Steps() []Step {
	return append(SchemaSteps(), Step{Name: "seed_default_services", Run: seedDefaultServices})
}

// SchemaSteps creates tables, columns and indexes only. It never adds rows.
func SchemaSteps() []Step {
	return []Step{
		execStep("create_users", `CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE COLLATE NOCASE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin','user')),
  phone TEXT,
  position TEXT,
  profile_pic TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL,
  last_login DATETIME,
  updated_at DATETIME NOT NULL
)`),
		execStep("create_services", `CREATE TABLE IF NOT EXISTS services (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  description TEXT NOT NULL,
  category TEXT NOT NULL,
  icon TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
)`),
		execStep("create_contact_submissions", submissionTableDDL("contact_submissions")),
		execStep("create_get_in_touch_submissions", submissionTableDDL("get_in_touch_submissions")),
		execStep("create_activity_logs", `CREATE TABLE IF NOT EXISTS activity_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER,
  user_name TEXT NOT NULL DEFAULT '',
  action TEXT NOT NULL,
  details TEXT,
  ip_address TEXT,
  user_agent TEXT,
  created_at DATETIME NOT NULL
)`),
		execStep("create_team_chat", `CREATE TABLE IF NOT EXISTS team_chat (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER,
  user_name TEXT NOT NULL DEFAULT '',
  user_role TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL,
  created_at DATETIME NOT NULL
)`),
		execStep("create_sessions", `CREATE TABLE IF NOT EXISTS sessions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  token_hash TEXT NOT NULL UNIQUE,
  ip_address TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL,
  expires_at DATETIME NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1
)`),
		addColumnStep("users_add_profile_pic", `ALTER TABLE users ADD COLUMN profile_pic TEXT`),
		execStep("index_sessions_expires_at", `CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`),
		execStep("index_sessions_user_id", `CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`),
		execStep("index_activity_logs_created_at", `CREATE INDEX IF NOT EXISTS idx_activity_logs_created_at ON activity_logs(created_at)`),
		execStep("index_activity_logs_user_id", `CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id)`),
	}
}

func submissionTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  company TEXT,
  service TEXT,
  message TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'new',
  submitted_at DATETIME NOT NULL,
  updated_by INTEGER,
  updated_at DATETIME
)`, table)
}

func seedDefaultServices(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC()
	for _, s := range DefaultServices {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO services(name,description,category,icon,is_active,created_at,updated_at)
			 SELECT ?,?,?,?,1,?,? WHERE NOT EXISTS (SELECT 1 FROM services WHERE name=?)`,
			s.Name, s.Description, s.Category, s.Icon, now, now, s.Name,
		); err != nil {
			return fmt.Errorf("seed service %q: %w", s.Name, err)
		}
	}
	return nil
}

// Setup runs steps in order and stops at the first failure.
func Setup(ctx context.Context, db *sql.DB, steps []Step, log zerolog.Logger) error {
	for i, step := range steps {
		if err := step.Run(ctx, db); err != nil {
			log.Error().Err(err).Str("step", step.Name).Int("index", i+1).Msg("schema setup step failed")
			return fmt.Errorf("setup step %s: %w", step.Name, err)
		}
		log.Debug().Str("step", step.Name).Int("index", i+1).Msg("schema setup step applied")
	}
	return nil
}

func isDuplicateColumnErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
