package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hexorsite/internal/auth"
	"hexorsite/internal/db"
	"hexorsite/internal/metrics"
	"hexorsite/internal/models"
	"hexorsite/internal/store"
)

const DefaultTTL = 24 * time.Hour

// Issued is handed to the client once. Only the hash of Token is persisted.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

type Manager struct {
	store *store.Store
	sweep *store.Store
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time
}

// NewManager builds a manager over st. sweepStore is used only by
// SweepExpired and should be backed by a non-blocking source so a sweep
// skips its cycle instead of queueing behind a restore.
func NewManager(st, sweepStore *store.Store, ttl time.Duration, log zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepStore == nil {
		sweepStore = st
	}
	return &Manager{store: st, sweep: sweepStore, ttl: ttl, log: log, now: time.Now}
}

func (m *Manager) Create(ctx context.Context, userID int64, meta models.RequestMeta) (Issued, error) {
	now := m.now().UTC()
	for attempt := 0; attempt < 3; attempt++ {
		raw, hash, err := auth.NewSessionToken()
		if err != nil {
			return Issued{}, fmt.Errorf("generate session token: %w", err)
		}
		sess := models.Session{
			UserID:    userID,
			TokenHash: hash,
			IPAddress: meta.IP,
			UserAgent: meta.UserAgent,
			CreatedAt: now,
			ExpiresAt: now.Add(m.ttl),
		}
		_, err = m.store.CreateSession(ctx, sess)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return Issued{}, fmt.Errorf("persist session: %w", err)
		}
		metrics.SessionsCreated.Inc()
		return Issued{Token: raw, ExpiresAt: sess.ExpiresAt}, nil
	}
	return Issued{}, errors.New("persist session: token collision")
}

// Validate resolves a raw token. Unknown, expired, revoked and
// owner-inactive sessions all yield a nil identity and a nil error.
func (m *Manager) Validate(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		metrics.RecordValidation("invalid")
		return nil, nil
	}
	id, _, err := m.store.LookupSession(ctx, auth.HashToken(token), m.now())
	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordValidation("invalid")
		return nil, nil
	}
	if err != nil {
		metrics.RecordValidation("error")
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	metrics.RecordValidation("valid")
	return &id, nil
}

// Revoke deactivates the session for token. Unknown or already revoked tokens
// are not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.RevokeSession(ctx, auth.HashToken(token)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (m *Manager) RevokeUser(ctx context.Context, userID int64) (int64, error) {
	n, err := m.store.RevokeUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return n, nil
}

// SweepExpired deletes sessions whose expiry has passed. While a restore holds
// the store the cycle is skipped and (0, nil) is returned.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.sweep.DeleteExpiredSessions(ctx, m.now())
	if errors.Is(err, db.ErrBusy) || errors.Is(err, db.ErrClosed) {
		metrics.RecordSweep("skipped", 0)
		m.log.Info().Msg("session sweep skipped, store is busy")
		return 0, nil
	}
	if err != nil {
		metrics.RecordSweep("error", 0)
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	metrics.RecordSweep("ok", n)
	if n > 0 {
		m.log.Info().Int64("removed", n).Msg("expired sessions swept")
	}
	return n, nil
}
