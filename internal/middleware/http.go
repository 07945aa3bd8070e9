package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hexorsite/internal/db"
	"hexorsite/internal/models"
	"hexorsite/internal/util"
)

// SessionValidator resolves a raw session token. A nil identity with a nil
// error means the token is unknown, expired or revoked.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*models.Identity, error)
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" || len(rid) > 64 {
			rid = uuid.NewString()
		}
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// Authn requires a live session token in header. Requests without one get
// the session-expired response so the admin UI can send the user to login.
func Authn(sessions SessionValidator, header string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := RequestID(r.Context())
			token := strings.TrimSpace(r.Header.Get(header))
			if token == "" {
				util.WriteSessionExpired(w, rid)
				return
			}
			id, err := sessions.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, db.ErrBusy) || errors.Is(err, db.ErrClosed) {
					util.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Database maintenance in progress, try again shortly", rid)
					return
				}
				log.Error().Err(err).Str("request_id", rid).Msg("session validation failed")
				util.WriteError(w, http.StatusInternalServerError, "internal_error", "Authentication failed", rid)
				return
			}
			if id == nil {
				util.WriteSessionExpired(w, rid)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := Identity(r.Context())
		if !ok || !id.IsAdmin() {
			util.WriteError(w, http.StatusForbidden, "forbidden", "Admin access required", RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Meta captures the caller details recorded with sessions and activity
// entries.
func Meta(r *http.Request, trustProxy bool) models.RequestMeta {
	ua := r.UserAgent()
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return models.RequestMeta{IP: ClientIP(r, trustProxy), UserAgent: ua}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func RequestLogger(log zerolog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			ev := log.Info()
			if sr.status >= 500 {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sr.status).
				Int("bytes", sr.bytes).
				Dur("duration", time.Since(start)).
				Str("request_id", RequestID(r.Context())).
				Str("remote_ip", ClientIP(r, trustProxy)).
				Msg("request")
		})
	}
}
