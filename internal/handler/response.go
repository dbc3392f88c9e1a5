package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"statusCode": 404, "error": "not_found", "message": "feature proposal not found with id ..."}
//
// Validation errors also carry the offending field:
//   {"statusCode": 400, "error": "validation_error", "message": "...", "field": "text"}
//
// Clients show "message" as-is and switch on "error" if they need to.

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/sakif/feature-board/internal/apperror"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message    string `json:"message"`         // Human-readable description
	Field      string `json:"field,omitempty"` // Set for validation errors only
}

// writeJSON sends data as JSON with the given status code.
// render.Status stores the code on the request; render.JSON writes it
// together with the Content-Type header before the body.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation → 400 validation_error
//	apperror.ErrNotFound   → 404 not_found
//	apperror.ErrConflict   → 409 conflict
//	anything else          → 500 internal_error
//
// apperror.Kind walks the wrap chain, so a service that returns
// fmt.Errorf("creating proposal: %w", apperror.NotFound(...)) still maps to 404.
// Unknown errors are logged in full and answered with a generic message: the
// raw text may contain SQL or connection details.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch apperror.Kind(err) {
		case apperror.ErrValidation:
			status = http.StatusBadRequest
			errorType = "validation_error"
		case apperror.ErrNotFound:
			status = http.StatusNotFound
			errorType = "not_found"
		case apperror.ErrConflict:
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, r, status, ErrorResponse{
			StatusCode: status,
			Error:      errorType,
			Message:    appErr.Message,
			Field:      appErr.Field,
		})
		return
	}

	logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)

	writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{
		StatusCode: http.StatusInternalServerError,
		Error:      "internal_error",
		Message:    "An internal error occurred",
	})
}

// decodeJSON reads a size-limited JSON body into v. A malformed, empty or
// oversized body is reported as a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := render.DecodeJSON(r.Body, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must be at most %d bytes", maxBodyBytes))
		}
		return apperror.ValidationFailed("body", "request body must be a valid JSON object")
	}
	return nil
}
