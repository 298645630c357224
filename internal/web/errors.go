package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail and the request ID, then
// returned to the client as a JSON ErrorResponse carrying the user-facing
// message and support code from core.MapError.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/metascaler/internal/core"
	"github.com/JonMunkholm/metascaler/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor picks the HTTP status for an error by its support code.
func statusFor(err error) int {
	code := core.MapError(err).Code
	switch {
	case code == "FILE001":
		return http.StatusRequestEntityTooLarge
	case code == "RUN002":
		return http.StatusServiceUnavailable
	case code == "RUN003":
		return http.StatusNotFound
	case code == "REQ001":
		return http.StatusBadRequest
	case code == "RATE001":
		return http.StatusTooManyRequests
	case code == "RUN005":
		return http.StatusGatewayTimeout
	case strings.HasPrefix(code, "FILE"),
		strings.HasPrefix(code, "COL"),
		strings.HasPrefix(code, "VAL"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are only logged since
// headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
