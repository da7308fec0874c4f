package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/campus-attendance/internal/attendance"
	"github.com/kozaktomas/campus-attendance/internal/facematch"
	"github.com/kozaktomas/campus-attendance/internal/signature"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadSize bounds request bodies carrying images.
const maxUploadSize = 20 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to HTTP responses. Unexpected errors
// are logged and reported as 500 without details.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *attendance.ValidationError
	var ce *attendance.ConflictError

	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.As(err, &ce):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":   "already marked today",
			"subject": ce.SubjectID,
			"section": ce.SectionID,
			"date":    ce.Date.Format("2006-01-02"),
		})
	case errors.Is(err, facematch.ErrMatchTimeout):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "face matching timed out", "fallback": "manual"})
	case errors.Is(err, attendance.ErrImageDecode):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "image could not be decoded", "fallback": "manual"})
	case errors.Is(err, facematch.ErrNoFaceDetected):
		respondError(w, http.StatusUnprocessableEntity, "no face detected")
	case errors.Is(err, attendance.ErrUnknownClass):
		respondError(w, http.StatusNotFound, "subject is not taught to this section")
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", sanitizeForLog(r.URL.Path),
			"error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeImageData accepts a data URL ("data:image/jpeg;base64,...") or plain
// base64 and returns the raw image bytes.
func decodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: unsupported data URL", signature.ErrImageDecode)
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", signature.ErrImageDecode, err)
		}
	}
	return data, nil
}

// readFormImage returns the contents of the uploaded file field, nil if absent.
func readFormImage(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	return data, header.Filename, nil
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
