package api

import (
	"encoding/json"
	"net/http"
)

// Error codes returned by the status API.
const (
	codeNotFound          = "not_found"
	codeMethodNotAllowed  = "method_not_allowed"
	codeLedgerUnavailable = "ledger_unavailable"
	codeInternal          = "internal_error"
)

// ErrorResponse is the body of every failed request. A degraded health
// check is not an error and returns HealthResponse instead.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	DeviceID  string      `json:"device_id"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail names what went wrong.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes v as the response body. Frame status is live, so
// responses are never cached.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes the error envelope tagged with the frame and request.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     ErrorDetail{Code: code, Message: message},
		DeviceID:  s.deps.DeviceID,
		RequestID: requestIDFrom(r.Context()),
	})
}
