package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"hexorsite/internal/backup"
	"hexorsite/internal/middleware"
	"hexorsite/internal/util"
)

// Backup streams a fresh snapshot of the live store. The artifact stays on
// disk for the retention window so an interrupted download can be retried.
func (h *Handlers) Backup(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	art, err := h.exporter.Export(r.Context(), actor(r), h.meta(r))
	if err != nil {
		h.log.Error().Err(err).Str("request_id", rid).Msg("backup failed")
		msg := "Backup failed"
		if errors.Is(err, backup.ErrBackupIntegrity) {
			msg = "Backup failed: the snapshot did not pass verification"
		}
		util.WriteError(w, http.StatusInternalServerError, "backup_failed", msg, rid)
		return
	}
	defer h.exporter.Release(art)

	f, err := os.Open(art.Path)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", rid).Msg("backup artifact vanished before streaming")
		util.WriteError(w, http.StatusInternalServerError, "backup_failed", "Backup failed", rid)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+art.Name+`"`)
	http.ServeContent(w, r, art.Name, art.CreatedAt, f)
}

// Restore replaces the live store with the uploaded snapshot and hands the
// caller a fresh session for its reconciled account.
func (h *Handlers) Restore(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRestoreUploadBytes()+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		h.uploadError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("backup_file")
	if err != nil {
		h.badRequest(w, r, "No backup file provided")
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(hdr.Filename), ".db") {
		h.badRequest(w, r, "Only .db files are allowed")
		return
	}
	if hdr.Size > h.cfg.MaxRestoreUploadBytes() {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Backup file is too large", rid)
		return
	}

	if err := os.MkdirAll(h.cfg.BackupDir, 0o755); err != nil {
		h.fail(w, r, err, "")
		return
	}
	upload := filepath.Join(h.cfg.BackupDir, "upload_"+uuid.NewString()+".db")
	if err := saveUpload(upload, file); err != nil {
		_ = os.Remove(upload)
		h.fail(w, r, err, "")
		return
	}

	id := actor(r)
	meta := h.meta(r)
	res, err := h.restorer.Restore(r.Context(), backup.RestoreRequest{UploadPath: upload, Actor: id, Meta: meta})
	if err != nil {
		h.restoreError(w, r, err)
		return
	}

	issued, err := h.svc.IssueSession(r.Context(), res.User, meta)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", rid).Msg("restore committed but no session could be issued")
		util.WriteError(w, http.StatusInternalServerError, "session_failed", "Database restored, but signing you back in failed. Please login again.", rid)
		return
	}
	out := newSessionResponse(res.User, issued)
	out.Message = "Database restored successfully! You will remain logged in."
	out.Tables = res.Tables
	util.WriteJSON(w, http.StatusOK, out)
}

func saveUpload(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (h *Handlers) restoreError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	if errors.Is(err, backup.ErrInvalidBackup) {
		util.WriteError(w, http.StatusBadRequest, "invalid_backup", "Invalid database file: No tables found or corrupted database", rid)
		return
	}
	var rerr *backup.RestoreError
	if !errors.As(err, &rerr) {
		h.fail(w, r, err, "")
		return
	}
	h.log.Error().Err(err).Str("request_id", rid).Str("stage", string(rerr.Stage)).Bool("rolled_back", rerr.RolledBack).Msg("restore failed")
	msg := "Database restore failed. The original database has been restored."
	switch {
	case rerr.Stage == backup.StateSafetyBackup:
		msg = "Failed to create safety backup before restore. Nothing was changed."
	case rerr.RollbackErr != nil:
		msg = "Database restore failed and the original database could not be reinstated automatically. A safety copy was kept for manual recovery."
	case errors.Is(err, backup.ErrIdentityLost):
		msg = "Your user account was not found in the restored database. Original database has been restored."
	}
	util.WriteError(w, http.StatusInternalServerError, "restore_failed", msg, rid)
}
