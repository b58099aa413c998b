package middleware

import (
	"encoding/json"
	"net/http"

	"absence-api/internal/model"
)

// writeJSONError emits the standard envelope for failures produced inside
// the middleware chain, before any handler runs.
func writeJSONError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: message},
	})
}
