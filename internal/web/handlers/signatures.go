package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/campus-attendance/internal/attendance"
	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/facematch"
)

// Enroller derives and stores a person's signature from an image.
type Enroller interface {
	Enroll(ctx context.Context, personID string, data []byte, sourceRef string) (*facematch.Region, error)
}

// EnrollRequest is the JSON form of an enrollment upload
type EnrollRequest struct {
	Image string `json:"image"` // data URL or base64
}

// SignatureResponse describes a stored signature without its vector
type SignatureResponse struct {
	PersonID    string            `json:"person_id"`
	SourceImage string            `json:"source_image,omitempty"`
	Dim         int               `json:"dim"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Face        *facematch.Region `json:"face,omitempty"`
}

// SignaturesHandler handles enrollment endpoints.
type SignaturesHandler struct {
	enroller  Enroller
	store     database.SignatureReader
	mediaRoot string
	logger    *slog.Logger
}

// NewSignaturesHandler creates a new signatures handler. Uploaded images are
// kept under mediaRoot when it is set.
func NewSignaturesHandler(enroller Enroller, store database.SignatureReader, mediaRoot string, logger *slog.Logger) *SignaturesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignaturesHandler{
		enroller:  enroller,
		store:     store,
		mediaRoot: mediaRoot,
		logger:    logger.With("module", "web"),
	}
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
}

// saveImage writes data under mediaRoot/signatures and returns the path
// relative to mediaRoot. Without a media root the upload name is returned.
func (h *SignaturesHandler) saveImage(data []byte, uploadName string) (string, error) {
	if h.mediaRoot == "" {
		return filepath.Base(uploadName), nil
	}
	ext, ok := imageExtensions[http.DetectContentType(data)]
	if !ok {
		ext = ".img"
	}

	dir := filepath.Join(h.mediaRoot, "signatures")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("save enrollment image: %w", err)
	}
	return filepath.ToSlash(filepath.Join("signatures", name)), nil
}

// removeImage deletes an image saved by saveImage.
func (h *SignaturesHandler) removeImage(ref string) {
	if h.mediaRoot == "" {
		return
	}
	if err := os.Remove(filepath.Join(h.mediaRoot, filepath.FromSlash(ref))); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("failed to remove enrollment image", "path", ref, "error", err)
	}
}

// Put handles PUT /api/v1/signatures/{personID}
func (h *SignaturesHandler) Put(w http.ResponseWriter, r *http.Request) {
	personID := strings.TrimSpace(chi.URLParam(r, "personID"))
	if personID == "" {
		respondError(w, http.StatusBadRequest, "person ID is required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var (
		data       []byte
		uploadName string
		err        error
	)
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		if data, uploadName, err = readFormImage(r, "image"); err != nil {
			respondError(w, http.StatusBadRequest, "unreadable upload")
			return
		}
	} else {
		var req EnrollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		if data, err = decodeImageData(req.Image); err != nil {
			respondServiceError(w, r, h.logger, err)
			return
		}
	}
	if len(data) == 0 {
		respondServiceError(w, r, h.logger, &attendance.ValidationError{Field: "image", Reason: "required"})
		return
	}

	ref, err := h.saveImage(data, uploadName)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	face, err := h.enroller.Enroll(r.Context(), personID, data, ref)
	if err != nil {
		h.removeImage(ref)
		respondServiceError(w, r, h.logger, err)
		return
	}
	h.logger.Info("signature enrolled", "person_id", sanitizeForLog(personID), "source", ref)

	sig, err := h.store.Get(r.Context(), personID)
	if err != nil || sig == nil {
		respondJSON(w, http.StatusOK, SignatureResponse{PersonID: personID, SourceImage: ref, Face: face})
		return
	}
	respondJSON(w, http.StatusOK, SignatureResponse{
		PersonID:    sig.PersonID,
		SourceImage: sig.SourceImage,
		Dim:         len(sig.Vector),
		UpdatedAt:   sig.UpdatedAt,
		Face:        face,
	})
}

// Get handles GET /api/v1/signatures/{personID}
func (h *SignaturesHandler) Get(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	sig, err := h.store.Get(r.Context(), personID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	if sig == nil {
		respondError(w, http.StatusNotFound, "person is not enrolled")
		return
	}
	respondJSON(w, http.StatusOK, SignatureResponse{
		PersonID:    sig.PersonID,
		SourceImage: sig.SourceImage,
		Dim:         len(sig.Vector),
		UpdatedAt:   sig.UpdatedAt,
	})
}
