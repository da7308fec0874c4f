package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/campus-attendance/internal/attendance"
	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/web/middleware"
)

// Form field names used by the faculty upload page.
const (
	fieldUploadedImage = "class_uploaded_image"
	fieldCapturedImage = "class_captured_image"
)

// AttendanceService is the submission workflow used by the handlers.
type AttendanceService interface {
	Submit(ctx context.Context, sub attendance.Submission) (*attendance.Result, error)
	Preview(ctx context.Context, image []byte, threshold *float64) (map[string]float64, error)
	Lookup(ctx context.Context, subjectID, sectionID, date string) (*database.Session, []database.Record, error)
}

// SubmitRequest is the JSON form of an attendance submission
type SubmitRequest struct {
	Subject        string   `json:"subject"`
	Section        string   `json:"section"`
	Date           string   `json:"date"`
	Present        []string `json:"present"`
	FallbackManual bool     `json:"fallback_manual"`
	Threshold      *float64 `json:"threshold"`
	Image          string   `json:"class_captured_image"` // data URL or base64
}

// PreviewRequest is the JSON form of a preview request
type PreviewRequest struct {
	Threshold *float64 `json:"threshold"`
	Image     string   `json:"class_captured_image"`
}

// RecordResponse is one attendance record
type RecordResponse struct {
	PersonID   string   `json:"person_id"`
	Status     string   `json:"status"`
	Confidence *float64 `json:"confidence"`
	Verified   bool     `json:"verified"`
}

// SessionResponse is a stored session with its records
type SessionResponse struct {
	ID        string           `json:"id"`
	Subject   string           `json:"subject"`
	Section   string           `json:"section"`
	Date      string           `json:"date"`
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
	CreatedBy string           `json:"created_by"`
	Method    string           `json:"method"`
	Confirmed bool             `json:"confirmed"`
	CreatedAt time.Time        `json:"created_at"`
	Records   []RecordResponse `json:"records"`
}

// SubmitResponse is returned after a session was created
type SubmitResponse struct {
	Session             SessionResponse    `json:"session"`
	Present             int                `json:"present"`
	Absent              int                `json:"absent"`
	Matches             map[string]float64 `json:"matches"`
	NotificationsQueued int                `json:"notifications_queued"`
	FallbackUsed        bool               `json:"fallback_used"`
}

// PreviewResponse lists automatic matches without storing anything
type PreviewResponse struct {
	Matches map[string]float64 `json:"matches"`
	Count   int                `json:"count"`
}

// AttendanceHandler handles attendance endpoints.
type AttendanceHandler struct {
	service AttendanceService
	logger  *slog.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(service AttendanceService, logger *slog.Logger) *AttendanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceHandler{service: service, logger: logger.With("module", "web")}
}

func sessionResponse(s *database.Session, records []database.Record) SessionResponse {
	resp := SessionResponse{
		ID:        s.ID,
		Subject:   s.SubjectID,
		Section:   s.SectionID,
		Date:      s.DateString(),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		CreatedBy: s.CreatedBy,
		Method:    string(s.Method),
		Confirmed: s.Confirmed,
		CreatedAt: s.CreatedAt,
		Records:   make([]RecordResponse, len(records)),
	}
	for i, r := range records {
		resp.Records[i] = RecordResponse{
			PersonID:   r.PersonID,
			Status:     string(r.Status),
			Confidence: r.Confidence,
			Verified:   r.Verified,
		}
	}
	return resp
}

// splitList accepts repeated form values as well as comma-separated ones.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// capturedImage decodes a camera capture. With manual fallback requested an
// undecodable payload is passed on as is so the service falls back.
func capturedImage(value string, fallback bool) ([]byte, error) {
	data, err := decodeImageData(value)
	if err != nil && fallback {
		return []byte(value), nil
	}
	return data, err
}

// parseSubmission reads a multipart or JSON submission.
func parseSubmission(r *http.Request) (attendance.Submission, error) {
	sub := attendance.Submission{CreatedBy: middleware.GetFacultyFromContext(r.Context())}

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return sub, &attendance.ValidationError{Field: "body", Reason: "invalid multipart form"}
		}
		sub.SubjectID = strings.TrimSpace(r.FormValue("subject"))
		sub.SectionID = strings.TrimSpace(r.FormValue("section"))
		sub.Date = strings.TrimSpace(r.FormValue("date"))
		sub.ManualPresent = splitList(r.MultipartForm.Value["present"])
		sub.FallbackManual, _ = strconv.ParseBool(r.FormValue("fallback_manual"))
		if t := r.FormValue("threshold"); t != "" {
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return sub, &attendance.ValidationError{Field: "threshold", Reason: "must be a number"}
			}
			sub.Threshold = &f
		}

		data, _, err := readFormImage(r, fieldUploadedImage)
		if err != nil {
			return sub, &attendance.ValidationError{Field: fieldUploadedImage, Reason: "unreadable upload"}
		}
		if len(data) == 0 {
			if data, err = capturedImage(r.FormValue(fieldCapturedImage), sub.FallbackManual); err != nil {
				return sub, err
			}
		}
		sub.Image = data
		return sub, nil
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return sub, &attendance.ValidationError{Field: "body", Reason: errInvalidRequestBody}
	}
	data, err := capturedImage(req.Image, req.FallbackManual)
	if err != nil {
		return sub, err
	}
	sub.SubjectID = strings.TrimSpace(req.Subject)
	sub.SectionID = strings.TrimSpace(req.Section)
	sub.Date = strings.TrimSpace(req.Date)
	sub.ManualPresent = splitList(req.Present)
	sub.FallbackManual = req.FallbackManual
	sub.Threshold = req.Threshold
	sub.Image = data
	return sub, nil
}

// Submit handles POST /api/v1/attendance
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	sub, err := parseSubmission(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	res, err := h.service.Submit(r.Context(), sub)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, SubmitResponse{
		Session:             sessionResponse(res.Session, res.Records),
		Present:             res.Present,
		Absent:              res.Absent,
		Matches:             res.Matches,
		NotificationsQueued: res.Notifications,
		FallbackUsed:        res.FallbackUsed,
	})
}

// Preview handles POST /api/v1/attendance/preview
func (h *AttendanceHandler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var (
		image     []byte
		threshold *float64
		err       error
	)
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		if image, _, err = readFormImage(r, fieldUploadedImage); err != nil {
			respondError(w, http.StatusBadRequest, "unreadable upload")
			return
		}
		if t := r.FormValue("threshold"); t != "" {
			f, perr := strconv.ParseFloat(t, 64)
			if perr != nil {
				respondError(w, http.StatusBadRequest, "threshold must be a number")
				return
			}
			threshold = &f
		}
	} else {
		var req PreviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		if image, err = decodeImageData(req.Image); err != nil {
			respondServiceError(w, r, h.logger, err)
			return
		}
		threshold = req.Threshold
	}

	matches, err := h.service.Preview(r.Context(), image, threshold)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, PreviewResponse{Matches: matches, Count: len(matches)})
}

// Get handles GET /api/v1/attendance/{subject}/{section}/{date}
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, records, err := h.service.Lookup(r.Context(),
		chi.URLParam(r, "subject"), chi.URLParam(r, "section"), chi.URLParam(r, "date"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "attendance not taken")
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(session, records))
}
