package util

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
)

var errTrailingData = errors.New("unexpected data after JSON body")

// APIError is the body of every failed API response. SessionExpired tells the
// client to send the user back to the login screen instead of retrying.
type APIError struct {
	Success        bool   `json:"success"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	RequestID      string `json:"request_id,omitempty"`
	SessionExpired bool   `json:"sessionExpired,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, msg, reqID string) {
	WriteJSON(w, status, APIError{Code: code, Message: msg, RequestID: reqID})
}

func WriteSessionExpired(w http.ResponseWriter, reqID string) {
	WriteJSON(w, http.StatusUnauthorized, APIError{
		Code:           "session_expired",
		Message:        "Session expired. Please login again.",
		RequestID:      reqID,
		SessionExpired: true,
	})
}

// DecodeJSON reads a JSON body into dst, rejecting unknown trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
