package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/campus-attendance/internal/attendance"
	"github.com/kozaktomas/campus-attendance/internal/database/mock"
	"github.com/kozaktomas/campus-attendance/internal/facematch"
	"github.com/kozaktomas/campus-attendance/internal/roster"
	"github.com/kozaktomas/campus-attendance/internal/web/middleware"
)

const testRoster = `
students:
  - {id: S1, name: Asha Rao, roll_no: "1", guardian_contact: s1.parent@example.com}
  - {id: S2, name: Ben Okafor, roll_no: "2"}
classes:
  - subject: MATH101
    section: SEC-A
    subject_name: Linear Algebra
    students: [S1, S2]
`

// testEnv wires a real service and engine over in-memory stores
type testEnv struct {
	signatures *mock.MockSignatureStore
	attendance *mock.MockAttendanceStore
	engine     *facematch.Engine
	service    *attendance.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	provider, err := roster.ParseFile([]byte(testRoster))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	env := &testEnv{
		signatures: mock.NewMockSignatureStore(),
		attendance: mock.NewMockAttendanceStore(),
	}
	env.engine = facematch.NewEngine(facematch.StaticDetector{WholeFace: true}, env.signatures, facematch.Options{})
	controller := attendance.NewController(env.attendance, attendance.Window{}, nil, nil)
	env.service = attendance.NewService(controller, provider, env.engine, nil, attendance.ServiceOptions{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC) },
	})
	return env
}

// stripedPNG encodes a 64x64 image with horizontal stripes of the given height
func stripedPNG(t *testing.T, stripe int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			v := uint8(40)
			if (y/stripe)%2 == 0 {
				v = 220
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func dataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// multipartBody builds a multipart form with fields and one optional file
func multipartBody(t *testing.T, fields map[string][]string, fileField string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, values := range fields {
		for _, v := range values {
			if err := mw.WriteField(k, v); err != nil {
				t.Fatalf("WriteField failed: %v", err)
			}
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "class.png")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		fw.Write(file)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close failed: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// requestAsFaculty creates a request carrying an authenticated faculty ID
func requestAsFaculty(method, path string, body *bytes.Buffer, contentType string) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req.WithContext(middleware.SetFacultyInContext(req.Context(), "fac-1"))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
