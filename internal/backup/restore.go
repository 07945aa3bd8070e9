package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hexorsite/internal/db"
	"hexorsite/internal/metrics"
	"hexorsite/internal/models"
	"hexorsite/internal/store"
)

type RestoreConfig struct {
	// Dir holds safety copies of the live store.
	Dir         string
	SafetyGrace time.Duration
	// Steps are re-applied to the restored file so older snapshots gain any
	// tables or columns they lack. They must not add rows.
	Steps []db.Step
}

type RestoreRequest struct {
	// UploadPath is a temporary file owned by the orchestrator from here on.
	// It is removed whatever the outcome.
	UploadPath string
	Actor      models.Identity
	Meta       models.RequestMeta
}

type RestoreResult struct {
	State      State
	User       models.User
	Tables     []string
	SafetyPath string
}

// fileHooks lets tests inject failures into individual steps.
type fileHooks struct {
	copy       func(src, dst string) error
	snapshot   func(ctx context.Context, conn *sql.DB, dest string) error
	remove     func(path string) error
	reopen     func(l *db.Lease) error
	listTables func(ctx context.Context, conn *sql.DB) ([]string, error)
}

func defaultHooks() fileHooks {
	return fileHooks{
		copy:       copyFile,
		snapshot:   db.VacuumInto,
		remove:     removeIfExists,
		reopen:     func(l *db.Lease) error { return l.Reopen() },
		listTables: db.ListTables,
	}
}

type Orchestrator struct {
	handle *db.Handle
	cfg    RestoreConfig
	sched  Deferrer
	log    zerolog.Logger
	hooks  fileHooks
	now    func() time.Time
}

func NewOrchestrator(h *db.Handle, cfg RestoreConfig, sched Deferrer, log zerolog.Logger) *Orchestrator {
	if cfg.Steps == nil {
		cfg.Steps = db.SchemaSteps()
	}
	return &Orchestrator{handle: h, cfg: cfg, sched: sched, log: log, hooks: defaultHooks(), now: time.Now}
}

// Restore replaces the live store with the uploaded snapshot. Every step after
// validation is undone from a safety copy if a later step fails, so the
// process always ends with a usable store. Other store users are blocked for
// the duration of the swap.
func (o *Orchestrator) Restore(ctx context.Context, req RestoreRequest) (RestoreResult, error) {
	start := o.now()
	log := o.log.With().Int64("actor_id", req.Actor.ID).Str("upload", filepath.Base(req.UploadPath)).Logger()
	log.Info().Str("state", string(StateValidating)).Msg("restore started")

	tables, err := db.InspectFile(ctx, req.UploadPath)
	if err == nil && len(tables) == 0 {
		err = errors.New("file contains no tables")
	}
	if err != nil {
		o.discardUpload(log, req.UploadPath)
		metrics.RecordRestore("invalid", o.now().Sub(start))
		log.Warn().Err(err).Msg("restore rejected, upload is not a usable database")
		return RestoreResult{State: StateIdle}, stageErr(ErrInvalidBackup, err)
	}

	var res RestoreResult
	err = o.handle.Exclusive(func(l *db.Lease) error {
		var rerr error
		res, rerr = o.restoreLocked(ctx, l, req, log)
		return rerr
	})
	metrics.RecordRestore(string(res.State), o.now().Sub(start))
	if err != nil {
		return res, err
	}

	o.audit(ctx, res, req, log)
	safety := res.SafetyPath
	o.sched.After(o.cfg.SafetyGrace, "remove_safety_backup", func() error {
		return o.hooks.remove(safety)
	})
	log.Info().Str("state", string(res.State)).Strs("tables", res.Tables).Int64("user_id", res.User.ID).Msg("restore committed")
	return res, nil
}

func (o *Orchestrator) restoreLocked(ctx context.Context, l *db.Lease, req RestoreRequest, log zerolog.Logger) (RestoreResult, error) {
	live := l.Path()
	safety := filepath.Join(o.cfg.Dir, fmt.Sprintf("safety_backup_%d.db", o.now().UnixMilli()))

	// The safety copy is taken through the open connection so frames still
	// sitting in a WAL file are included.
	log.Info().Str("state", string(StateSafetyBackup)).Str("safety", safety).Msg("restore step")
	if err := o.hooks.snapshot(ctx, l.Conn(), safety); err != nil {
		_ = o.hooks.remove(safety)
		o.discardUpload(log, req.UploadPath)
		log.Error().Err(err).Msg("safety backup failed, live database untouched")
		return RestoreResult{State: StateIdle}, &RestoreError{Stage: StateSafetyBackup, Err: stageErr(ErrSafetyBackupFailed, err)}
	}

	abort := func(stage State, sentinel, cause error) (RestoreResult, error) {
		log.Error().Err(cause).Str("stage", string(stage)).Str("state", string(StateAborting)).Msg("restore step failed, rolling back")
		rbErr := o.rollback(l, live, safety, req.UploadPath, log)
		rerr := &RestoreError{Stage: stage, Err: stageErr(sentinel, cause), RolledBack: rbErr == nil, RollbackErr: rbErr}
		if rbErr != nil {
			log.Error().Err(rbErr).Str("safety", safety).Msg("rollback failed, safety copy kept for manual recovery")
			return RestoreResult{State: StateAborting, SafetyPath: safety}, rerr
		}
		return RestoreResult{State: StateRolledBack, SafetyPath: safety}, rerr
	}

	log.Info().Str("state", string(StateSwapping)).Msg("restore step")
	if err := l.Close(); err != nil {
		return abort(StateSwapping, ErrSwapFailed, fmt.Errorf("close live connection: %w", err))
	}
	if err := removeStoreFiles(o.hooks.remove, live); err != nil {
		return abort(StateSwapping, ErrSwapFailed, fmt.Errorf("remove live file: %w", err))
	}
	if err := o.hooks.copy(req.UploadPath, live); err != nil {
		return abort(StateSwapping, ErrSwapFailed, fmt.Errorf("install upload: %w", err))
	}
	o.discardUpload(log, req.UploadPath)

	log.Info().Str("state", string(StateReconnecting)).Msg("restore step")
	if err := o.hooks.reopen(l); err != nil {
		return abort(StateReconnecting, ErrReconnectFailed, err)
	}
	if err := db.Setup(ctx, l.Conn(), o.cfg.Steps, log); err != nil {
		return abort(StateReconnecting, ErrReconnectFailed, err)
	}
	tables, err := o.hooks.listTables(ctx, l.Conn())
	if err == nil && len(tables) == 0 {
		err = errors.New("restored database lists no tables")
	}
	if err != nil {
		return abort(StateReconnecting, ErrReconnectFailed, err)
	}

	log.Info().Str("state", string(StateReconciling)).Msg("restore step")
	user, err := reconcile(ctx, store.New(l), req.Actor)
	if err != nil {
		return abort(StateReconciling, ErrIdentityLost, err)
	}

	return RestoreResult{State: StateCommitted, User: user, Tables: tables, SafetyPath: safety}, nil
}

// reconcile finds the acting user in the restored store: by id when the email
// still matches, otherwise by email. The account must be active.
func reconcile(ctx context.Context, st *store.Store, actor models.Identity) (models.User, error) {
	u, err := st.GetUserByID(ctx, actor.ID)
	if err == nil && strings.EqualFold(u.Email, actor.Email) {
		return requireActive(u)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.User{}, err
	}
	u, err = st.GetUserByEmail(ctx, actor.Email)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, fmt.Errorf("no user with id %d or email %s", actor.ID, actor.Email)
	}
	if err != nil {
		return models.User{}, err
	}
	return requireActive(u)
}

func requireActive(u models.User) (models.User, error) {
	if !u.IsActive {
		return models.User{}, fmt.Errorf("user %s is deactivated in the restored data", u.Email)
	}
	return u, nil
}

// rollback puts the safety copy back in place and reconnects to it.
func (o *Orchestrator) rollback(l *db.Lease, live, safety, upload string, log zerolog.Logger) error {
	defer o.discardUpload(log, upload)
	_ = l.Close()
	if err := removeStoreFiles(o.hooks.remove, live); err != nil {
		return fmt.Errorf("clear live path: %w", err)
	}
	if err := o.hooks.copy(safety, live); err != nil {
		return fmt.Errorf("reinstate safety copy: %w", err)
	}
	if err := o.hooks.reopen(l); err != nil {
		return fmt.Errorf("reopen reinstated database: %w", err)
	}
	o.sched.After(o.cfg.SafetyGrace, "remove_safety_backup", func() error {
		return o.hooks.remove(safety)
	})
	log.Warn().Str("state", string(StateRolledBack)).Msg("previous database reinstated")
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, res RestoreResult, req RestoreRequest, log zerolog.Logger) {
	details := fmt.Sprintf("Database restored from backup (%d tables)", len(res.Tables))
	entry := models.ActivityLogEntry{UserID: &res.User.ID, UserName: res.User.Name, Action: "database_restore", Details: &details}
	if req.Meta.IP != "" {
		entry.IPAddress = &req.Meta.IP
	}
	if req.Meta.UserAgent != "" {
		entry.UserAgent = &req.Meta.UserAgent
	}
	if err := store.New(o.handle).InsertActivity(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("restore audit entry not written")
	}
}

func (o *Orchestrator) discardUpload(log zerolog.Logger, path string) {
	if path == "" {
		return
	}
	if err := o.hooks.remove(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("temporary upload not removed")
	}
}
