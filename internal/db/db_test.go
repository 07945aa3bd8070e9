package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTestHandle(t *testing.T) *Handle {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "app.db"), Options{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatalf("open handle: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	conn, release, err := h.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	if err := Setup(context.Background(), conn, Steps(), zerolog.Nop()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return h
}

func TestSetupIsIdempotentAndCreatesSchema(t *testing.T) {
	h := openTestHandle(t)
	conn, release, err := h.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if err := Setup(context.Background(), conn, Steps(), zerolog.Nop()); err != nil {
		t.Fatalf("second setup run should succeed: %v", err)
	}
	tables, err := ListTables(context.Background(), conn)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	want := []string{"activity_logs", "contact_submissions", "get_in_touch_submissions", "services", "sessions", "team_chat", "users"}
	if len(tables) != len(want) {
		t.Fatalf("expected tables %v, got %v", want, tables)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Fatalf("expected tables %v, got %v", want, tables)
		}
	}

	var services int
	if err := conn.QueryRow(`SELECT COUNT(1) FROM services`).Scan(&services); err != nil {
		t.Fatalf("count services: %v", err)
	}
	if services != len(DefaultServices) {
		t.Fatalf("expected %d seeded services after two runs, got %d", len(DefaultServices), services)
	}
}

func TestSetupReportsFailingStep(t *testing.T) {
	h := openTestHandle(t)
	conn, release, _ := h.Acquire()
	defer release()

	steps := []Step{
		execStep("ok", `CREATE TABLE IF NOT EXISTS extra (id INTEGER)`),
		execStep("broken", `CREATE TABLE nonsense (`),
		execStep("never", `CREATE TABLE never_created (id INTEGER)`),
	}
	err := Setup(context.Background(), conn, steps, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected setup to fail")
	}
	tables, _ := ListTables(context.Background(), conn)
	for _, name := range tables {
		if name == "never_created" {
			t.Fatalf("steps after a failure must not run")
		}
	}
}

func TestHandleAcquireAfterCloseFailsSafely(t *testing.T) {
	h := openTestHandle(t)
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, release, err := h.Acquire()
	release()
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := h.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ping to report ErrClosed, got %v", err)
	}
}

func TestTryAcquireDuringExclusiveReportsBusy(t *testing.T) {
	h := openTestHandle(t)
	err := h.Exclusive(func(l *Lease) error {
		_, release, err := h.TryAcquire()
		release()
		if !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("exclusive: %v", err)
	}
	_, release, err := h.TryAcquire()
	if err != nil {
		t.Fatalf("expected TryAcquire to succeed after exclusive, got %v", err)
	}
	release()
}

func TestLeaseReopenIsObservedBySubsequentAcquire(t *testing.T) {
	h := openTestHandle(t)
	before, release, _ := h.Acquire()
	release()

	err := h.Exclusive(func(l *Lease) error {
		if err := l.Close(); err != nil {
			return err
		}
		if _, _, err := l.Acquire(); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected closed lease, got %v", err)
		}
		return l.Reopen()
	})
	if err != nil {
		t.Fatalf("exclusive: %v", err)
	}
	after, release, err := h.Acquire()
	if err != nil {
		t.Fatalf("acquire after reopen: %v", err)
	}
	defer release()
	if after == before {
		t.Fatalf("expected a fresh connection after reopen")
	}
	if _, err := ListTables(context.Background(), after); err != nil {
		t.Fatalf("reopened connection unusable: %v", err)
	}
}

func TestVacuumIntoProducesInspectableCopy(t *testing.T) {
	h := openTestHandle(t)
	conn, release, _ := h.Acquire()
	defer release()

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := VacuumInto(context.Background(), conn, dest); err != nil {
		t.Fatalf("vacuum into: %v", err)
	}
	tables, err := InspectFile(context.Background(), dest)
	if err != nil {
		t.Fatalf("inspect copy: %v", err)
	}
	if len(tables) == 0 {
		t.Fatalf("expected copied tables")
	}
}

func TestInspectFileRejectsNonDatabase(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, []byte("definitely not sqlite, just some bytes padding the header out"), 0o600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if _, err := InspectFile(context.Background(), garbage); err == nil {
		t.Fatalf("expected garbage file to fail inspection")
	}

	empty := filepath.Join(dir, "empty.db")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	tables, err := InspectFile(context.Background(), empty)
	if err == nil && len(tables) != 0 {
		t.Fatalf("expected empty file to have no tables, got %v", tables)
	}

	if _, err := InspectFile(context.Background(), filepath.Join(dir, "missing.db")); err == nil {
		t.Fatalf("expected missing file to fail inspection")
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.db")); !os.IsNotExist(err) {
		t.Fatalf("inspection must not create the file")
	}
}

func TestSchemaStepsDoNotSeed(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "bare.db"), Options{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open handle: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	conn, release, err := h.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	if err := Setup(context.Background(), conn, SchemaSteps(), zerolog.Nop()); err != nil {
		t.Fatalf("schema setup: %v", err)
	}
	var services int
	if err := conn.QueryRow(`SELECT COUNT(1) FROM services`).Scan(&services); err != nil {
		t.Fatalf("count services: %v", err)
	}
	if services != 0 {
		t.Fatalf("schema steps must not add rows, found %d services", services)
	}
}
