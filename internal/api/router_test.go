package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"hexorsite/internal/auth"
	"hexorsite/internal/backup"
	"hexorsite/internal/config"
	"hexorsite/internal/db"
	"hexorsite/internal/jobs"
	"hexorsite/internal/models"
	"hexorsite/internal/service"
	"hexorsite/internal/session"
	"hexorsite/internal/store"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin123"
)

type testEnv struct {
	srv    *httptest.Server
	handle *db.Handle
	store  *store.Store
	cfg    config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		AppName:              "testsite",
		PublicDir:            filepath.Join(dir, "public"),
		AdminPath:            "/admin",
		BackupDir:            filepath.Join(dir, "backups"),
		BackupRetentionSec:   3600,
		SafetyBackupGraceSec: 3600,
		MaxRestoreUploadMB:   5,
		SessionHeader:        "session-token",
		SessionTTLHours:      24,
		ContactRatePerMin:    100,
		PasswordMinLength:    6,
	}
	log := zerolog.Nop()

	h, err := db.Open(filepath.Join(dir, "data", "site.db"), db.Options{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	conn, release, err := h.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err = db.Setup(context.Background(), conn, db.Steps(), log)
	release()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	st := store.New(h)
	hash, err := auth.DefaultParams.Hash(adminPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := st.EnsureAdmin(context.Background(), "Admin User", adminEmail, hash); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	sched := jobs.NewScheduler(log)
	t.Cleanup(func() { sched.Stop(context.Background()) })
	sessions := session.NewManager(st, store.New(h.NonBlocking()), cfg.SessionTTL(), log)
	svc := service.New(cfg, st, sessions, nil, log)
	exporter := backup.NewExporter(h, backup.ExporterConfig{Dir: cfg.BackupDir, AppName: cfg.AppName, Retention: cfg.BackupRetention()}, sched, log)
	restorer := backup.NewOrchestrator(h, backup.RestoreConfig{Dir: cfg.BackupDir, SafetyGrace: cfg.SafetyBackupGrace()}, sched, log)

	srv := httptest.NewServer(NewRouter(cfg, svc, exporter, restorer, log))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, handle: h, store: st, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("session-token", token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	out["_raw"] = raw
	return resp, out
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", email, resp.StatusCode, body)
	}
	token, _ := body["sessionToken"].(string)
	if token == "" || body["sessionExpires"] == "" {
		t.Fatalf("login response without session: %v", body)
	}
	return token
}

func (e *testEnv) upload(t *testing.T, token, filename string, data []byte) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("backup_file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/restore", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("session-token", token)
	return e.send(t, req)
}

func TestLoginValidateLogoutLifecycle(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, adminEmail, adminPassword)

	resp, body := e.do(t, http.MethodGet, "/api/validate-session", token, nil)
	if resp.StatusCode != http.StatusOK || body["valid"] != true {
		t.Fatalf("expected valid session, got %d %v", resp.StatusCode, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != adminEmail || user["role"] != models.RoleAdmin {
		t.Fatalf("unexpected identity: %v", user)
	}

	resp, body = e.do(t, http.MethodPost, "/api/logout", token, nil)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("logout: %d %v", resp.StatusCode, body)
	}
	resp, body = e.do(t, http.MethodGet, "/api/validate-session", token, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["sessionExpired"] != true {
		t.Fatalf("expected 401 after logout, got %d %v", resp.StatusCode, body)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second logout must still succeed, got %d", resp.StatusCode)
	}
}

func TestLoginFailures(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": adminEmail, "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized || body["success"] != false {
		t.Fatalf("expected 401, got %d %v", resp.StatusCode, body)
	}
	resp, _ = e.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": adminEmail})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/dashboard-stats", "/api/users", "/api/backup", "/api/team-chat"} {
		resp, body := e.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized || body["sessionExpired"] != true {
			t.Fatalf("%s: expected session expired 401, got %d %v", path, resp.StatusCode, body)
		}
	}
}

func TestNonAdminIsForbiddenFromAdminRoutes(t *testing.T) {
	e := newTestEnv(t)
	hash, err := auth.DefaultParams.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := e.store.CreateUser(context.Background(), store.NewUser{Name: "Staff", Email: "staff@example.com", PasswordHash: hash, Role: models.RoleUser}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token := e.login(t, "staff@example.com", "secret1")

	for _, path := range []string{"/api/backup", "/api/users"} {
		resp, body := e.do(t, http.MethodGet, path, token, nil)
		if resp.StatusCode != http.StatusForbidden || body["message"] != "Admin access required" {
			t.Fatalf("%s: expected 403, got %d %v", path, resp.StatusCode, body)
		}
	}
	resp, _ := e.upload(t, token, "snap.db", []byte("irrelevant"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("restore: expected 403, got %d", resp.StatusCode)
	}
	resp, body := e.do(t, http.MethodGet, "/api/dashboard-stats", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard stats: %d %v", resp.StatusCode, body)
	}
	stats, _ := body["stats"].(map[string]any)
	if stats["totalUsers"] != float64(0) {
		t.Fatalf("non-admins must not see the user count: %v", stats)
	}
}

func TestRestoreRejectsUploadWithoutTables(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, adminEmail, adminPassword)
	before, err := os.ReadFile(e.handle.Path())
	if err != nil {
		t.Fatalf("read live: %v", err)
	}

	resp, body := e.upload(t, token, "empty.db", nil)
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "invalid_backup" {
		t.Fatalf("expected 400 invalid_backup, got %d %v", resp.StatusCode, body)
	}
	after, err := os.ReadFile(e.handle.Path())
	if err != nil {
		t.Fatalf("read live: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("live store changed after a rejected restore")
	}
	resp, _ = e.do(t, http.MethodGet, "/api/validate-session", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session must survive a rejected restore, got %d", resp.StatusCode)
	}
	matches, _ := filepath.Glob(filepath.Join(e.cfg.BackupDir, "upload_*"))
	if len(matches) != 0 {
		t.Fatalf("rejected upload left behind: %v", matches)
	}
}

func TestRestoreRejectsWrongExtension(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, adminEmail, adminPassword)
	resp, body := e.upload(t, token, "snapshot.sql", []byte("SELECT 1;"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, body)
	}
}

func TestBackupThenRestoreKeepsAdminSignedIn(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, adminEmail, adminPassword)

	resp, body := e.do(t, http.MethodPost, "/api/contact", "", map[string]string{"name": "Lead", "email": "lead@corp.io", "message": "Need a pentest"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("contact: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodGet, "/api/backup", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("backup: %d %v", resp.StatusCode, body)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.Contains(cd, `filename="testsite_backup_`) || !strings.HasSuffix(cd, `.db"`) {
		t.Fatalf("unexpected content disposition: %q", cd)
	}
	snapshot, _ := body["_raw"].([]byte)
	if len(snapshot) == 0 {
		t.Fatalf("empty backup body")
	}

	// Changes made after the snapshot must disappear with the restore.
	resp, _ = e.do(t, http.MethodPost, "/api/get-in-touch", "", map[string]string{"name": "Later", "email": "later@corp.io", "message": "After backup"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get in touch: %d", resp.StatusCode)
	}

	resp, body = e.upload(t, token, "snapshot.db", snapshot)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("restore: %d %v", resp.StatusCode, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != adminEmail {
		t.Fatalf("expected reconciled admin, got %v", user)
	}
	tables, _ := body["tables"].([]any)
	if len(tables) == 0 {
		t.Fatalf("expected restored table list, got %v", body["tables"])
	}
	fresh, _ := body["sessionToken"].(string)
	if fresh == "" {
		t.Fatalf("restore response carries no session token")
	}

	resp, body = e.do(t, http.MethodGet, "/api/validate-session", fresh, nil)
	if resp.StatusCode != http.StatusOK || body["valid"] != true {
		t.Fatalf("fresh session after restore does not validate: %d %v", resp.StatusCode, body)
	}
	// The snapshot was taken while this session was live, so it is restored too.
	resp, body = e.do(t, http.MethodGet, "/api/validate-session", token, nil)
	if resp.StatusCode != http.StatusOK || body["valid"] != true {
		t.Fatalf("original session missing from restored data: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodGet, "/api/get-in-touch-submissions", fresh, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list get in touch: %d %v", resp.StatusCode, body)
	}
	if subs, _ := body["submissions"].([]any); len(subs) != 0 {
		t.Fatalf("post-backup submission survived the restore: %v", subs)
	}
	resp, body = e.do(t, http.MethodGet, "/api/contact-submissions", fresh, nil)
	if subs, _ := body["submissions"].([]any); resp.StatusCode != http.StatusOK || len(subs) != 1 {
		t.Fatalf("expected the pre-backup contact submission, got %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodGet, "/api/activity-logs", fresh, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activity: %d %v", resp.StatusCode, body)
	}
	logs, _ := body["logs"].([]any)
	if len(logs) == 0 || logs[0].(map[string]any)["action"] != "database_restore" {
		t.Fatalf("expected newest activity to be the restore, got %v", logs)
	}
}

func TestTeamChatUsesSessionIdentity(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, adminEmail, adminPassword)
	resp, body := e.do(t, http.MethodPost, "/api/team-chat", token, map[string]any{"message": "hello", "user_id": 999, "user_name": "Mallory"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post chat: %d %v", resp.StatusCode, body)
	}
	resp, body = e.do(t, http.MethodGet, "/api/team-chat", token, nil)
	msgs, _ := body["messages"].([]any)
	if resp.StatusCode != http.StatusOK || len(msgs) != 1 {
		t.Fatalf("list chat: %d %v", resp.StatusCode, body)
	}
	if msgs[0].(map[string]any)["user_name"] != "Admin User" {
		t.Fatalf("chat author taken from body: %v", msgs[0])
	}
}

func TestPublicServicesHideInactive(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, adminEmail, adminPassword)
	resp, body := e.do(t, http.MethodPost, "/api/services", token, map[string]any{"name": "Hidden", "description": "d", "category": "c", "is_active": false})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create service: %d %v", resp.StatusCode, body)
	}

	count := func(token, query string) int {
		resp, body := e.do(t, http.MethodGet, "/api/services"+query, token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list services%s: %d %v", query, resp.StatusCode, body)
		}
		items, _ := body["services"].([]any)
		return len(items)
	}
	public := count("", "")
	all := count(token, "?include_inactive=true")
	if all != public+1 {
		t.Fatalf("expected one hidden service, public=%d all=%d", public, all)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/services?include_inactive=true", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous include_inactive must be refused, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, http.MethodGet, "/health/live", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("live: %d %v", resp.StatusCode, body)
	}
	resp, body = e.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("ready: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUserAdministrationOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, adminEmail, adminPassword)
	resp, body := e.do(t, http.MethodPost, "/api/users", token, map[string]any{"name": "Staff", "email": "staff@example.com", "password": "secret1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: %d %v", resp.StatusCode, body)
	}
	resp, _ = e.do(t, http.MethodPost, "/api/users", token, map[string]any{"name": "Staff", "email": "staff@example.com", "password": "secret1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate user: expected 409, got %d", resp.StatusCode)
	}
	staffToken := e.login(t, "staff@example.com", "secret1")

	id := int64(body["userId"].(float64))
	path := "/api/users/" + strconv.FormatInt(id, 10)
	resp, body = e.do(t, http.MethodPut, path+"/status", token, map[string]any{"is_active": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: %d %v", resp.StatusCode, body)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/validate-session", staffToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deactivated user still signed in: %d", resp.StatusCode)
	}

	admin, err := e.store.GetUserByEmail(context.Background(), adminEmail)
	if err != nil {
		t.Fatalf("lookup admin: %v", err)
	}
	resp, _ = e.do(t, http.MethodDelete, "/api/users/"+strconv.FormatInt(admin.ID, 10), token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self delete: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodDelete, path, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodGet, path, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted user: expected 404, got %d", resp.StatusCode)
	}
}
