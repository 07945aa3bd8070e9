package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"hexorsite/internal/backup"
	"hexorsite/internal/config"
	"hexorsite/internal/db"
	"hexorsite/internal/middleware"
	"hexorsite/internal/models"
	"hexorsite/internal/service"
	"hexorsite/internal/store"
	"hexorsite/internal/util"
	"hexorsite/internal/version"
)

type Handlers struct {
	cfg      config.Config
	svc      *service.Service
	exporter *backup.Exporter
	restorer *backup.Orchestrator
	log      zerolog.Logger
}

func NewRouter(cfg config.Config, svc *service.Service, exporter *backup.Exporter, restorer *backup.Orchestrator, log zerolog.Logger) http.Handler {
	h := &Handlers{
		cfg:      cfg,
		svc:      svc,
		exporter: exporter,
		restorer: restorer,
		log:      log,
	}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(log, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", cfg.SessionHeader},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]any{"status": "ok", "build": version.Current(cfg.AppName)})
	})
	r.Get("/health/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	authn := middleware.Authn(svc.Sessions(), cfg.SessionHeader, log)
	formLimit := httprate.LimitByIP(cfg.ContactRatePerMin, time.Minute)
	if cfg.TrustProxy {
		formLimit = httprate.LimitByRealIP(cfg.ContactRatePerMin, time.Minute)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Get("/services", h.ListServices)
		r.Get("/services/{id}", h.GetService)
		r.With(formLimit).Post("/contact", h.SubmitContact)
		r.With(formLimit).Post("/get-in-touch", h.SubmitGetInTouch)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Get("/validate-session", h.ValidateSession)

			r.Get("/users/{id}", h.GetUser)
			r.Put("/users/{id}", h.UpdateUser)
			r.Put("/users/{id}/profile", h.UpdateProfile)
			r.Post("/upload-profile-pic", h.UploadProfilePic)

			r.Get("/contact-submissions", h.listSubmissions(models.SubmissionContact))
			r.Get("/contact-submissions/{id}", h.getSubmission(models.SubmissionContact))
			r.Put("/contact-submissions/{id}/status", h.updateSubmissionStatus(models.SubmissionContact))
			r.Get("/get-in-touch-submissions", h.listSubmissions(models.SubmissionGetInTouch))
			r.Get("/get-in-touch-submissions/{id}", h.getSubmission(models.SubmissionGetInTouch))
			r.Put("/get-in-touch-submissions/{id}/status", h.updateSubmissionStatus(models.SubmissionGetInTouch))

			r.Get("/activity-logs", h.ListActivity)
			r.Get("/team-chat", h.ListChat)
			r.Post("/team-chat", h.PostChat)
			r.Get("/dashboard-stats", h.DashboardStats)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminOnly)
				r.Get("/users", h.ListUsers)
				r.Post("/users", h.CreateUser)
				r.Put("/users/{id}/password", h.ChangePassword)
				r.Put("/users/{id}/status", h.SetUserStatus)
				r.Delete("/users/{id}", h.DeleteUser)

				r.Post("/services", h.CreateService)
				r.Put("/services/{id}", h.UpdateService)
				r.Delete("/services/{id}", h.DeleteService)

				r.Get("/backup", h.Backup)
				r.Post("/restore", h.Restore)
			})
		})
	})

	public := cfg.PublicDir
	fs := http.FileServer(http.Dir(public))
	r.Get(cfg.AdminPath, func(w http.ResponseWriter, r *http.Request) {
		servePage(w, r, filepath.Join(public, "admin.html"))
	})
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/health/") {
			util.WriteError(w, http.StatusNotFound, "not_found", "Not found", middleware.RequestID(r.Context()))
			return
		}
		if p == "/" {
			servePage(w, r, filepath.Join(public, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})

	return r
}

func servePage(w http.ResponseWriter, r *http.Request, path string) {
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"build":      version.Current(h.cfg.AppName),
	}
	if err := h.svc.Store().Ping(r.Context()); err != nil {
		out["status"] = "degraded"
		out["sqlite"] = map[string]any{"ok": false, "error": err.Error()}
		util.WriteJSON(w, http.StatusServiceUnavailable, out)
		return
	}
	out["status"] = "ready"
	out["sqlite"] = map[string]any{"ok": true}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) meta(r *http.Request) models.RequestMeta {
	return middleware.Meta(r, h.cfg.TrustProxy)
}

func actor(r *http.Request) models.Identity {
	id, _ := middleware.Identity(r.Context())
	return id
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	util.WriteError(w, http.StatusBadRequest, "bad_request", msg, middleware.RequestID(r.Context()))
}

// decode reads a JSON body, answering 400 itself when the body is unusable.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := util.DecodeJSON(r, dst); err != nil {
		h.badRequest(w, r, "invalid json")
		return false
	}
	return true
}

// fail maps a service or store error to the JSON error envelope. Anything
// unrecognised is a store failure: logged in full, reported generically.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	rid := middleware.RequestID(r.Context())
	switch {
	case service.IsInputError(err):
		util.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), rid)
	case errors.Is(err, service.ErrSelfDeactivate), errors.Is(err, service.ErrSelfDelete):
		util.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), rid)
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials", rid)
	case errors.Is(err, service.ErrAccountInactive):
		util.WriteError(w, http.StatusUnauthorized, "account_inactive", "Account deactivated. Please contact administrator.", rid)
	case errors.Is(err, service.ErrTooManyAttempts):
		util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many failed login attempts, try again later", rid)
	case errors.Is(err, service.ErrForbidden):
		util.WriteError(w, http.StatusForbidden, "forbidden", "Access denied", rid)
	case errors.Is(err, service.ErrUserExists):
		util.WriteError(w, http.StatusConflict, "conflict", "User already exists", rid)
	case errors.Is(err, store.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", notFound, rid)
	case errors.Is(err, db.ErrBusy), errors.Is(err, db.ErrClosed):
		util.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Database maintenance in progress, try again shortly", rid)
	default:
		h.log.Error().Err(err).Str("request_id", rid).Str("path", r.URL.Path).Msg("request failed")
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "Database error", rid)
	}
}
