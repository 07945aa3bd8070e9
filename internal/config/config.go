package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hexorsite/internal/auth"
)

type Config struct {
	ListenAddr string
	AppEnv     string
	AppName    string
	LogLevel   string
	PublicDir  string
	AdminPath  string

	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	BackupDir            string
	BackupRetentionSec   int
	SafetyBackupGraceSec int
	MaxRestoreUploadMB   int

	SessionHeader    string
	SessionTTLHours  int
	SessionSweepSpec string

	TrustProxy         bool
	CORSAllowedOrigins []string
	ContactRatePerMin  int

	PasswordMinLength int
	ArgonMemoryKiB    int
	ArgonIterations   int
	ArgonParallelism  int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	BootstrapAdminName     string

	LeadNotifySender string
	LeadNotifyTo     string
	LeadNotifyFrom   string
	SMTPHost         string
	SMTPPort         int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":3000"),
		AppEnv:                   strings.ToLower(env("APP_ENV", "development")),
		AppName:                  env("APP_NAME", "cyber_Hexor"),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		PublicDir:                env("PUBLIC_DIR", "public"),
		AdminPath:                env("ADMIN_PANEL_PATH", "/admin"),
		DBPath:                   env("APP_DB_PATH", "./data/cyber_Hexor.db"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		BackupDir:                env("BACKUP_DIR", "./backups"),
		BackupRetentionSec:       envInt("BACKUP_RETENTION_SEC", 30),
		SafetyBackupGraceSec:     envInt("SAFETY_BACKUP_GRACE_SEC", 10),
		MaxRestoreUploadMB:       envInt("MAX_RESTORE_UPLOAD_MB", 50),
		SessionHeader:            strings.ToLower(env("SESSION_HEADER", "session-token")),
		SessionTTLHours:          envInt("SESSION_TTL_HOURS", 24),
		SessionSweepSpec:         env("SESSION_SWEEP_SPEC", "@hourly"),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		ContactRatePerMin:        envInt("CONTACT_RATE_PER_MIN", 10),
		PasswordMinLength:        envInt("PASSWORD_MIN_LENGTH", 6),
		ArgonMemoryKiB:           envInt("ARGON2_MEMORY_KIB", 32*1024),
		ArgonIterations:          envInt("ARGON2_ITERATIONS", 2),
		ArgonParallelism:         envInt("ARGON2_PARALLELISM", 1),
		BootstrapAdminEmail:      env("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword:   env("BOOTSTRAP_ADMIN_PASSWORD", ""),
		BootstrapAdminName:       env("BOOTSTRAP_ADMIN_NAME", "Admin User"),
		LeadNotifySender:         strings.ToLower(env("LEAD_NOTIFY_SENDER", "log")),
		LeadNotifyTo:             env("LEAD_NOTIFY_TO", ""),
		LeadNotifyFrom:           env("LEAD_NOTIFY_FROM", "noreply@example.com"),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 25),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 30),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 120),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
	}

	if !strings.HasPrefix(cfg.AdminPath, "/") || strings.HasPrefix(cfg.AdminPath, "/api/") {
		return Config{}, fmt.Errorf("ADMIN_PANEL_PATH must start with / and not live under /api/")
	}
	if cfg.SessionTTLHours <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if strings.TrimSpace(cfg.SessionHeader) == "" {
		return Config{}, fmt.Errorf("SESSION_HEADER must not be empty")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.BackupRetentionSec < 0 || cfg.SafetyBackupGraceSec < 0 {
		return Config{}, fmt.Errorf("backup retention and safety grace must not be negative")
	}
	if cfg.MaxRestoreUploadMB <= 0 {
		return Config{}, fmt.Errorf("MAX_RESTORE_UPLOAD_MB must be positive")
	}
	if cfg.PasswordMinLength < 6 {
		return Config{}, fmt.Errorf("password min length must be >= 6")
	}
	if cfg.ArgonIterations < 1 || cfg.ArgonParallelism < 1 || cfg.ArgonParallelism > 255 {
		return Config{}, fmt.Errorf("ARGON2_ITERATIONS must be >= 1 and ARGON2_PARALLELISM between 1 and 255")
	}
	if cfg.ArgonMemoryKiB < 8*cfg.ArgonParallelism {
		return Config{}, fmt.Errorf("ARGON2_MEMORY_KIB must be at least 8 per lane")
	}
	if cfg.ContactRatePerMin <= 0 {
		return Config{}, fmt.Errorf("CONTACT_RATE_PER_MIN must be positive")
	}
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		return Config{}, fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	switch cfg.LeadNotifySender {
	case "", "log":
		cfg.LeadNotifySender = "log"
	case "smtp":
		if strings.TrimSpace(cfg.LeadNotifyTo) == "" {
			return Config{}, fmt.Errorf("LEAD_NOTIFY_TO is required when LEAD_NOTIFY_SENDER=smtp")
		}
		if cfg.SMTPPort <= 0 {
			return Config{}, fmt.Errorf("invalid SMTP_PORT")
		}
	default:
		return Config{}, fmt.Errorf("LEAD_NOTIFY_SENDER must be one of: log, smtp")
	}
	return cfg, nil
}

// PasswordParams are the Argon2id settings for new password hashes.
func (c Config) PasswordParams() auth.Params {
	return auth.Params{
		MemoryKiB:   uint32(c.ArgonMemoryKiB),
		Iterations:  uint32(c.ArgonIterations),
		Parallelism: uint8(c.ArgonParallelism),
	}
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c Config) BackupRetention() time.Duration {
	return time.Duration(c.BackupRetentionSec) * time.Second
}

func (c Config) SafetyBackupGrace() time.Duration {
	return time.Duration(c.SafetyBackupGraceSec) * time.Second
}

func (c Config) MaxRestoreUploadBytes() int64 {
	return int64(c.MaxRestoreUploadMB) << 20
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
