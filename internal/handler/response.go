package handler

// RESPONSE HELPERS:
// Every JSON endpoint (/rest/v1/* and /auth/v1/session) answers through
// writeJSON, and every failure through writeError, so the terminal client
// only ever has to decode two shapes: the payload, or
//
//	{"error": "not_found", "message": "bookmark not found with id 0b8f..."}
//
// The "error" field is the contract. The client's backend adapter feeds it
// to apperror.FromKind and gets back the same sentinel the service returned,
// so errors.Is(err, apperror.ErrForbidden) works on both ends of the wire.
// The message is for people and may change freely.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/smart-bookmarks/internal/apperror"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`   // one of the kinds in errorKinds, or "internal_error"
	Message string `json:"message"` // safe to show to the user
}

// errorKinds maps service sentinels to a status and wire kind. The kind
// strings must stay in step with apperror.FromKind.
var errorKinds = []struct {
	target error
	status int
	kind   string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
}

// writeJSON sends data as JSON with the given status. Responses may carry a
// session (and its bearer token), so nothing is cacheable.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Status is already on the wire; all that is left is to record it.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError answers with the status and kind of the first sentinel found
// in err's chain.
//
// Only *apperror.AppError messages are echoed back. They are written by the
// service for the user ("title is required", "not your bookmark"). Anything
// else is a store or transport failure whose text can contain SQL or file
// paths: it is logged here and the client gets a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, k := range errorKinds {
			if errors.Is(err, k.target) {
				writeJSON(w, k.status, ErrorResponse{Error: k.kind, Message: appErr.Message})
				return
			}
		}
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
