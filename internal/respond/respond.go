// Package respond writes JSON response bodies.
package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorBody is the uniform error payload.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Results wraps v as {"results": v}.
func Results(w http.ResponseWriter, status int, v any) {
	JSON(w, status, map[string]any{"results": v})
}

// Error writes {"error": "<code> - <status text>", "message": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{
		Error:   fmt.Sprintf("%d - %s", status, http.StatusText(status)),
		Message: message,
	})
}

// Forbidden renders an access failure.
func Forbidden(w http.ResponseWriter, reason string) {
	Error(w, http.StatusForbidden, "Auth Error: "+reason)
}
