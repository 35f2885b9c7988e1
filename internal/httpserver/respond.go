package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fleetforge/controlplane/pkg/ferr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, code string, message string) {
	Respond(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// statusByKind maps a domain error Kind to the HTTP status code
// the RPC surface's status-code table names.
var statusByKind = map[ferr.Kind]int{
	ferr.InvalidArgument:    http.StatusBadRequest,
	ferr.Unauthenticated:    http.StatusUnauthorized,
	ferr.Forbidden:          http.StatusForbidden,
	ferr.NotFound:           http.StatusNotFound,
	ferr.AlreadyExists:      http.StatusConflict,
	ferr.FailedPrecondition: http.StatusConflict,
	ferr.ResourceExhausted:  http.StatusTooManyRequests,
	ferr.Unavailable:        http.StatusServiceUnavailable,
	ferr.Internal:           http.StatusInternalServerError,
}

// RespondDomainError maps err's Kind (via ferr.KindOf) to an HTTP status
// and writes the corresponding error envelope. An unrecognized error
// defaults to Internal, never leaking its message to the client.
func RespondDomainError(w http.ResponseWriter, err error) {
	kind := ferr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if kind == ferr.Internal {
		message = "internal error"
	}

	RespondError(w, status, string(kind), message)
}
