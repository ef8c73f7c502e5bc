package server

import (
	"encoding/json"
	"net/http"

	"github.com/arborio/agentcore/pkg/errkind"
)

// ErrorResponse is the error envelope every failing route returns: the
// error-kind tag plus a human-readable message.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the kind tag and message.
type ErrorDetail struct {
	Kind    errkind.Kind `json:"kind"`
	Message string       `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response tagged with its kind.
func writeError(w http.ResponseWriter, status int, kind errkind.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Kind: kind, Message: message}})
}

// writeSuccess writes {"success": true}.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
