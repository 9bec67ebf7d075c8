// Package httputil provides JSON response helpers shared by the HTTP
// handlers and middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/R3E-Network/lottery_engine/internal/events"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse carrying the request's trace id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, kind, code, message string) {
	resp := ErrorResponse{Error: message, Kind: kind, Code: code}
	if r != nil {
		resp.TraceID = events.TraceID(r.Context())
	}
	WriteJSON(w, status, resp)
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "Unauthenticated", message)
}

// BadRequest writes a 400 response for malformed input.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, "validation", "BadRequest", message)
}

// DecodeJSON decodes the request body into v, rejecting unknown fields. On
// failure it writes a 400 response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, r, "invalid request body: "+err.Error())
		return false
	}
	return true
}
