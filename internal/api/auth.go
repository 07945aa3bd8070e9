package api

import (
	"net/http"
	"strings"
	"time"

	"hexorsite/internal/middleware"
	"hexorsite/internal/models"
	"hexorsite/internal/session"
	"hexorsite/internal/util"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message,omitempty"`
	User           models.Identity `json:"user"`
	Tables         []string        `json:"tables,omitempty"`
	SessionToken   string          `json:"sessionToken"`
	SessionExpires string          `json:"sessionExpires"`
}

func newSessionResponse(u models.User, issued session.Issued) sessionResponse {
	return sessionResponse{
		Success:        true,
		User:           u.Identity(),
		SessionToken:   issued.Token,
		SessionExpires: issued.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, h.meta(r))
	if err != nil {
		h.log.Info().
			Str("email", strings.ToLower(strings.TrimSpace(req.Email))).
			Str("request_id", middleware.RequestID(r.Context())).
			Str("reason", err.Error()).
			Msg("login rejected")
		h.fail(w, r, err, "Invalid credentials")
		return
	}
	util.WriteJSON(w, http.StatusOK, newSessionResponse(res.User, res.Session))
}

// Logout always succeeds from the caller's point of view.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(h.cfg.SessionHeader))
	h.svc.Logout(r.Context(), token, h.meta(r))
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (h *Handlers) ValidateSession(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": actor(r), "valid": true})
}
