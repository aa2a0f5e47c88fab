// Package httputil holds the JSON response envelope shared by the control API.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the standard response body for all control endpoints.
// Error carries a short machine-readable code ("forbidden", "bad_job_id", ...).
type Envelope struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Queued *int64 `json:"queued,omitempty"`
	Uptime *int64 `json:"uptime_sec,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope with a short error code.
func WriteError(w http.ResponseWriter, status int, code string) {
	WriteJSON(w, status, Envelope{OK: false, Error: code})
}
