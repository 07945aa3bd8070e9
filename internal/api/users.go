package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"hexorsite/internal/middleware"
	"hexorsite/internal/service"
	"hexorsite/internal/util"
)

const maxProfilePicBytes = 10 << 20

var allowedPictureTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid user id")
		return
	}
	u, err := h.svc.GetUser(r.Context(), actor(r), id)
	if err != nil {
		h.fail(w, r, err, "User not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserInput
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.CreateUser(r.Context(), actor(r), h.meta(r), req)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "User created successfully", "userId": u.ID, "user": u})
}

func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid user id")
		return
	}
	var req service.UpdateUserInput
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateUser(r.Context(), actor(r), h.meta(r), id, req); err != nil {
		h.fail(w, r, err, "User not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User updated successfully"})
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid user id")
		return
	}
	var req service.ProfileInput
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateProfile(r.Context(), actor(r), h.meta(r), id, req); err != nil {
		h.fail(w, r, err, "User not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Profile updated successfully"})
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid user id")
		return
	}
	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), actor(r), h.meta(r), id, req.NewPassword); err != nil {
		h.fail(w, r, err, "User not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password changed successfully"})
}

func (h *Handlers) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid user id")
		return
	}
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		h.badRequest(w, r, "is_active is required")
		return
	}
	if err := h.svc.SetUserStatus(r.Context(), actor(r), h.meta(r), id, *req.IsActive); err != nil {
		h.fail(w, r, err, "User not found")
		return
	}
	msg := "User activated successfully"
	if !*req.IsActive {
		msg = "User deactivated successfully"
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid user id")
		return
	}
	if err := h.svc.DeleteUser(r.Context(), actor(r), h.meta(r), id); err != nil {
		h.fail(w, r, err, "User not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User deleted successfully"})
}

// UploadProfilePic stores an image under PUBLIC_DIR/uploads and points the
// user's profile at it. The content is sniffed; the client's type is ignored.
func (h *Handlers) UploadProfilePic(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProfilePicBytes+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		h.uploadError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	id := actor(r).ID
	if v := r.FormValue("user_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			h.badRequest(w, r, "invalid user id")
			return
		}
		id = parsed
	}
	file, _, err := r.FormFile("profile_pic")
	if err != nil {
		h.badRequest(w, r, "No file uploaded")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxProfilePicBytes+1))
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	if len(data) > maxProfilePicBytes {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Image must be at most 10MB", middleware.RequestID(r.Context()))
		return
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedPictureTypes...) {
		h.badRequest(w, r, "Only image files are allowed")
		return
	}

	dir := filepath.Join(h.cfg.PublicDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.fail(w, r, err, "")
		return
	}
	name := uuid.NewString() + mt.Extension()
	dst := filepath.Join(dir, name)
	if err := writeNew(dst, data); err != nil {
		h.fail(w, r, err, "")
		return
	}
	picPath := "/uploads/" + name
	if err := h.svc.SetProfilePicture(r.Context(), actor(r), h.meta(r), id, picPath); err != nil {
		_ = os.Remove(dst)
		h.fail(w, r, err, "User not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "profile_pic": picPath})
}

func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func (h *Handlers) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Upload is too large", middleware.RequestID(r.Context()))
		return
	}
	h.badRequest(w, r, "invalid multipart upload")
}
