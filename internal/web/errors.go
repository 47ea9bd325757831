package web

// errors.go provides unified error responses for the API.
//
// The technical error is logged with the request ID for correlation; the
// client receives the mapped operator message and support code.

import (
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/dohpipeline/internal/logging"
	"github.com/JonMunkholm/dohpipeline/internal/pipeline"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its mapped message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := pipeline.MapError(err)

	// Mapped failures are expected operating conditions; only unknown ones are errors.
	level := slog.LevelError
	if pipeline.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondMessage writes a client error that needs no mapping.
func respondMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Message: message, Code: code})
}
