package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func facultyEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetFacultyFromContext(r.Context())))
	})
}

func TestRequireFaculty(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"present", "fac-42", http.StatusOK, "fac-42"},
		{"trimmed", "  fac-42 ", http.StatusOK, "fac-42"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"blank", "   ", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", nil)
			if tt.header != "" {
				req.Header.Set(FacultyHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			RequireFaculty()(facultyEcho()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != tt.wantBody {
				t.Errorf("faculty = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSetFacultyInContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := SetFacultyInContext(req.Context(), "fac-1")
	if got := GetFacultyFromContext(ctx); got != "fac-1" {
		t.Errorf("GetFacultyFromContext = %q, want fac-1", got)
	}
	if got := GetFacultyFromContext(req.Context()); got != "" {
		t.Errorf("empty context returned %q", got)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://campus.example.edu", " "})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name      string
		method    string
		origin    string
		wantAllow string
		wantCode  int
	}{
		{"allowed origin", http.MethodGet, "https://campus.example.edu", "https://campus.example.edu", http.StatusNoContent},
		{"localhost", http.MethodGet, "http://localhost:5173", "http://localhost:5173", http.StatusNoContent},
		{"other origin", http.MethodGet, "https://evil.example.com", "", http.StatusNoContent},
		{"preflight", http.MethodOptions, "https://campus.example.edu", "https://campus.example.edu", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/attendance", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff header missing")
	}
}
