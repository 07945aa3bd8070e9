package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionHeader != "session-token" {
		t.Fatalf("expected default session header, got %q", cfg.SessionHeader)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Fatalf("expected 24h session ttl, got %s", cfg.SessionTTL())
	}
	if cfg.BackupRetention() != 30*time.Second || cfg.SafetyBackupGrace() != 10*time.Second {
		t.Fatalf("unexpected retention defaults: %s / %s", cfg.BackupRetention(), cfg.SafetyBackupGrace())
	}
	if cfg.MaxRestoreUploadBytes() != 50<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxRestoreUploadBytes())
	}
}

func TestLoadRejectsNonPositiveSessionTTL(t *testing.T) {
	t.Setenv("SESSION_TTL_HOURS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail for zero session ttl")
	}
}

func TestLoadRejectsHalfConfiguredBootstrapAdmin(t *testing.T) {
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "admin@example.com")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail when bootstrap password is missing")
	}
}

func TestLoadSMTPLeadSenderRequiresRecipient(t *testing.T) {
	t.Setenv("LEAD_NOTIFY_SENDER", "smtp")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail without LEAD_NOTIFY_TO")
	}
	t.Setenv("LEAD_NOTIFY_TO", "sales@example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LeadNotifySender != "smtp" {
		t.Fatalf("expected smtp sender, got %q", cfg.LeadNotifySender)
	}
}

func TestLoadRejectsUnknownLeadSender(t *testing.T) {
	t.Setenv("LEAD_NOTIFY_SENDER", "pigeon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail for unknown sender")
	}
}

func TestLoadParsesCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsAdminPathUnderAPI(t *testing.T) {
	t.Setenv("ADMIN_PANEL_PATH", "/api/admin")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail for an admin path under /api/")
	}
	t.Setenv("ADMIN_PANEL_PATH", "/backoffice")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AdminPath != "/backoffice" {
		t.Fatalf("unexpected admin path: %q", cfg.AdminPath)
	}
}

func TestLoadPasswordParams(t *testing.T) {
	t.Setenv("ARGON2_MEMORY_KIB", "16384")
	t.Setenv("ARGON2_ITERATIONS", "3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := cfg.PasswordParams()
	if p.MemoryKiB != 16384 || p.Iterations != 3 || p.Parallelism != 1 {
		t.Fatalf("unexpected password params: %+v", p)
	}

	t.Setenv("ARGON2_PARALLELISM", "4")
	t.Setenv("ARGON2_MEMORY_KIB", "16")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail when memory is below 8 KiB per lane")
	}
}
