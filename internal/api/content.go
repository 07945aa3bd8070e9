package api

import (
	"net/http"
	"strconv"
	"strings"

	"hexorsite/internal/middleware"
	"hexorsite/internal/models"
	"hexorsite/internal/service"
	"hexorsite/internal/util"
)

// ListServices is public and lists active services. Admins may pass
// include_inactive=true with their session token to see the whole catalog.
func (h *Handlers) ListServices(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive")); v {
		id, err := h.svc.Sessions().Validate(r.Context(), strings.TrimSpace(r.Header.Get(h.cfg.SessionHeader)))
		if err != nil {
			h.fail(w, r, err, "")
			return
		}
		if id == nil || !id.IsAdmin() {
			util.WriteError(w, http.StatusForbidden, "forbidden", "Admin access required", middleware.RequestID(r.Context()))
			return
		}
		activeOnly = false
	}
	items, err := h.svc.ListServices(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "services": items})
}

func (h *Handlers) GetService(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid service id")
		return
	}
	sv, err := h.svc.GetService(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Service not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "service": sv})
}

func (h *Handlers) CreateService(w http.ResponseWriter, r *http.Request) {
	var req service.ServiceInput
	if !h.decode(w, r, &req) {
		return
	}
	sv, err := h.svc.CreateService(r.Context(), actor(r), h.meta(r), req)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Service created successfully", "serviceId": sv.ID, "service": sv})
}

func (h *Handlers) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid service id")
		return
	}
	var req service.ServiceInput
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateService(r.Context(), actor(r), h.meta(r), id, req); err != nil {
		h.fail(w, r, err, "Service not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Service updated successfully"})
}

func (h *Handlers) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, r, "invalid service id")
		return
	}
	if err := h.svc.DeleteService(r.Context(), actor(r), h.meta(r), id); err != nil {
		h.fail(w, r, err, "Service not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Service deleted successfully"})
}

func (h *Handlers) SubmitContact(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.SubmissionContact)
}

func (h *Handlers) SubmitGetInTouch(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.SubmissionGetInTouch)
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, kind models.SubmissionKind) {
	var req service.SubmissionInput
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.svc.Submit(r.Context(), kind, req); err != nil {
		if service.IsInputError(err) {
			h.fail(w, r, err, "")
			return
		}
		h.log.Error().Err(err).Str("kind", string(kind)).Str("request_id", middleware.RequestID(r.Context())).Msg("submission not stored")
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to send message", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Message sent successfully!"})
}

func (h *Handlers) listSubmissions(kind models.SubmissionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.svc.ListSubmissions(r.Context(), kind)
		if err != nil {
			h.fail(w, r, err, "")
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "submissions": items})
	}
}

func (h *Handlers) getSubmission(kind models.SubmissionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			h.badRequest(w, r, "invalid message id")
			return
		}
		sub, err := h.svc.GetSubmission(r.Context(), kind, id)
		if err != nil {
			h.fail(w, r, err, "Message not found")
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "submission": sub})
	}
}

func (h *Handlers) updateSubmissionStatus(kind models.SubmissionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			h.badRequest(w, r, "invalid message id")
			return
		}
		var req service.StatusInput
		if !h.decode(w, r, &req) {
			return
		}
		if err := h.svc.UpdateSubmissionStatus(r.Context(), actor(r), h.meta(r), kind, id, req); err != nil {
			h.fail(w, r, err, "Message not found")
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Status updated successfully"})
	}
}

func (h *Handlers) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(w, r, "invalid limit")
			return
		}
		limit = n
	}
	logs, err := h.svc.ListActivity(r.Context(), actor(r), limit)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "logs": logs})
}

func (h *Handlers) ListChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.ListChat(r.Context())
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

// PostChat ignores any author fields in the body.
func (h *Handlers) PostChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.PostChat(r.Context(), actor(r), req.Message)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Message sent successfully", "chat": msg})
}

func (h *Handlers) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.DashboardStats(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}
