package handler

// RESPONSE HELPERS:
// Every handler answers through these, so the API has exactly two body
// shapes besides plain reads:
//
//	success: {"success": true, "data": ...}
//	failure: {"error": "not_found", "message": "user not found with id abc123"}
//
// Reads (lists, profiles, a question) return their payload directly.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/auth"
)

// maxBodyBytes caps JSON request bodies. Answers are the largest payload.
const maxBodyBytes = 64 << 10

type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable type, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// writeJSON sends data with the given status.
// Headers must be set before WriteHeader; after that they are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessResponse{Success: true, Data: data})
}

// writeError maps a domain error to an HTTP status.
//
// errors.Is walks the whole wrap chain, so a service error such as
// fmt.Errorf("deleting answer x: %w", apperror.Forbidden(...)) still maps
// to 403. Anything that is not an AppError is a 500 with a generic message:
// raw errors can carry SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, errorType := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, errorType = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, errorType = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, errorType = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrExternal):
		status, errorType = http.StatusBadGateway, "external_service_error"
	}

	writeJSON(w, status, ErrorResponse{Error: errorType, Message: appErr.Message})
}

// decodeJSON reads a bounded JSON body into dst. Malformed input comes back
// as a validation error so writeError turns it into a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// queryInt parses an optional integer query parameter; absent means 0, which
// the services treat as "use the default".
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

// pageParams reads ?page= and ?pageSize=.
func pageParams(r *http.Request) (page, pageSize int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if pageSize, err = queryInt(r, "pageSize"); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// currentUser returns the signed-in user's id, or "" for anonymous requests.
// Services reject "" where a user is required.
func currentUser(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
