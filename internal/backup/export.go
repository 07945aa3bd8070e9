package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"hexorsite/internal/db"
	"hexorsite/internal/metrics"
	"hexorsite/internal/models"
	"hexorsite/internal/store"
)

// Artifact is a finished snapshot ready to be streamed to a client.
type Artifact struct {
	Path      string
	Name      string
	Size      int64
	Tables    []string
	CreatedAt time.Time
}

type ExporterConfig struct {
	Dir       string
	AppName   string
	Retention time.Duration
}

type Exporter struct {
	src   db.Source
	cfg   ExporterConfig
	sched Deferrer
	log   zerolog.Logger
	now   func() time.Time
}

func NewExporter(src db.Source, cfg ExporterConfig, sched Deferrer, log zerolog.Logger) *Exporter {
	if cfg.AppName == "" {
		cfg.AppName = "site"
	}
	return &Exporter{src: src, cfg: cfg, sched: sched, log: log, now: time.Now}
}

// Export writes a consistent copy of the live store and checks that the copy
// is a usable database carrying the users table before handing it out.
func (e *Exporter) Export(ctx context.Context, actor models.Identity, meta models.RequestMeta) (Artifact, error) {
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		metrics.RecordBackup("error")
		return Artifact{}, fmt.Errorf("create backup dir: %w", err)
	}
	created := e.now().UTC()
	name, path, err := e.freshName(created)
	if err != nil {
		metrics.RecordBackup("error")
		return Artifact{}, err
	}

	conn, release, err := e.src.Acquire()
	if err != nil {
		metrics.RecordBackup("error")
		return Artifact{}, fmt.Errorf("acquire store: %w", err)
	}
	err = db.VacuumInto(ctx, conn, path)
	release()
	if err != nil {
		_ = removeIfExists(path)
		metrics.RecordBackup("error")
		return Artifact{}, fmt.Errorf("snapshot store: %w", err)
	}

	art, err := e.verify(ctx, path)
	if err != nil {
		_ = removeIfExists(path)
		metrics.RecordBackup("integrity_error")
		e.log.Error().Err(err).Str("path", path).Msg("backup failed verification")
		return Artifact{}, err
	}
	art.Name = name
	art.CreatedAt = created

	details := fmt.Sprintf("Database backup %s created (%d bytes)", name, art.Size)
	entry := models.ActivityLogEntry{UserID: &actor.ID, UserName: actor.Name, Action: "database_backup", Details: &details}
	if meta.IP != "" {
		entry.IPAddress = &meta.IP
	}
	if meta.UserAgent != "" {
		entry.UserAgent = &meta.UserAgent
	}
	if err := store.New(e.src).InsertActivity(ctx, entry); err != nil {
		e.log.Warn().Err(err).Msg("backup audit entry not written")
	}

	metrics.RecordBackup("ok")
	e.log.Info().Str("file", name).Int64("size", art.Size).Int64("actor_id", actor.ID).Msg("database backup created")
	return art, nil
}

// Release schedules removal of an artifact once the retention window has
// passed, leaving time for slow downloads to finish.
func (e *Exporter) Release(art Artifact) {
	path := art.Path
	e.sched.After(e.cfg.Retention, "remove_backup_artifact", func() error {
		return removeIfExists(path)
	})
}

func (e *Exporter) freshName(at time.Time) (string, string, error) {
	ms := at.UnixMilli()
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("%s_backup_%d.db", e.cfg.AppName, ms+int64(i))
		path := filepath.Join(e.cfg.Dir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return name, path, nil
		}
	}
	return "", "", fmt.Errorf("no free backup file name near %d", ms)
}

func (e *Exporter) verify(ctx context.Context, path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, stageErr(ErrBackupIntegrity, err)
	}
	if info.Size() == 0 {
		return Artifact{}, stageErr(ErrBackupIntegrity, errors.New("backup file is empty"))
	}
	tables, err := db.InspectFile(ctx, path)
	if err != nil {
		return Artifact{}, stageErr(ErrBackupIntegrity, err)
	}
	if !slices.Contains(tables, "users") {
		return Artifact{}, stageErr(ErrBackupIntegrity, errors.New("backup has no users table"))
	}
	return Artifact{Path: path, Size: info.Size(), Tables: tables}, nil
}
