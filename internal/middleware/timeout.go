package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"absence-api/internal/model"
)

// Timeout cuts requests that outlive the configured deadline. The websocket
// route is mounted outside this wrapper; everything else goes through it.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
