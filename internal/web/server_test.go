package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/campus-attendance/internal/attendance"
	"github.com/kozaktomas/campus-attendance/internal/config"
	"github.com/kozaktomas/campus-attendance/internal/database/mock"
	"github.com/kozaktomas/campus-attendance/internal/facematch"
	"github.com/kozaktomas/campus-attendance/internal/metrics"
	"github.com/kozaktomas/campus-attendance/internal/roster"
	"github.com/kozaktomas/campus-attendance/internal/web/middleware"
)

const routesRoster = `
students:
  - {id: S1, name: Asha Rao, roll_no: "1"}
classes:
  - {subject: MATH101, section: SEC-A, students: [S1]}
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	provider, err := roster.ParseFile([]byte(routesRoster))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("metrics.New failed: %v", err)
	}

	signatures := mock.NewMockSignatureStore()
	engine := facematch.NewEngine(facematch.StaticDetector{WholeFace: true}, signatures, facematch.Options{Metrics: m})
	controller := attendance.NewController(mock.NewMockAttendanceStore(), attendance.Window{}, m, nil)
	service := attendance.NewService(controller, provider, engine, nil, attendance.ServiceOptions{Location: time.UTC})

	cfg := &config.Config{Web: config.WebConfig{Host: "127.0.0.1", Port: 0}}
	return NewServer(cfg, Dependencies{
		Attendance: service,
		Enroller:   engine,
		Signatures: signatures,
		Registry:   registry,
	})
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		faculty    bool
		wantStatus int
	}{
		{"health", http.MethodGet, "/api/v1/health", "", false, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", false, http.StatusOK},
		{"submit requires faculty", http.MethodPost, "/api/v1/attendance", `{}`, false, http.StatusUnauthorized},
		{"submit", http.MethodPost, "/api/v1/attendance", `{"subject":"MATH101","section":"SEC-A","date":"2024-05-01","present":["S1"]}`, true, http.StatusCreated},
		{"duplicate", http.MethodPost, "/api/v1/attendance", `{"subject":"MATH101","section":"SEC-A","date":"2024-05-01"}`, true, http.StatusConflict},
		{"lookup", http.MethodGet, "/api/v1/attendance/MATH101/SEC-A/2024-05-01", "", true, http.StatusOK},
		{"lookup missing", http.MethodGet, "/api/v1/attendance/MATH101/SEC-A/2024-05-02", "", true, http.StatusNotFound},
		{"preview without image", http.MethodPost, "/api/v1/attendance/preview", `{}`, true, http.StatusBadRequest},
		{"signature missing", http.MethodGet, "/api/v1/signatures/S1", "", true, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v1/photos", "", true, http.StatusNotFound},
	}

	// Cases run in order; the lookup depends on the submission.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.faculty {
				req.Header.Set(middleware.FacultyHeader, "fac-1")
			}
			rec := httptest.NewRecorder()

			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d (body %s)", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestMetricsExposeSessions(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", strings.NewReader(`{"subject":"MATH101","section":"SEC-A","date":"2024-05-01"}`))
	req.Header.Set(middleware.FacultyHeader, "fac-1")
	srv.Router().ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "sessions_created_total") {
		t.Errorf("metrics output lacks session counter:\n%s", rec.Body.String())
	}
}
