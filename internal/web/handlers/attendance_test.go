package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return bytes.NewBuffer(b)
}

func TestAttendanceSubmit_MultipartWithFaceMatch(t *testing.T) {
	env := newTestEnv(t)
	img := stripedPNG(t, 8)
	if _, err := env.engine.Enroll(context.Background(), "S1", img, "s1.png"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	h := NewAttendanceHandler(env.service, nil)

	body, ct := multipartBody(t, map[string][]string{
		"subject": {"MATH101"},
		"section": {"SEC-A"},
		"date":    {"2024-05-01"},
	}, fieldUploadedImage, img)
	rec := httptest.NewRecorder()
	h.Submit(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance", body, ct))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[SubmitResponse](t, rec)
	if resp.Session.Method != "FACE" || resp.Session.CreatedBy != "fac-1" {
		t.Errorf("session = %+v", resp.Session)
	}
	if resp.Present != 1 || resp.Absent != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", resp.Present, resp.Absent)
	}
	if resp.Matches["S1"] != 1 {
		t.Errorf("matches = %v, want S1 at 1", resp.Matches)
	}
	for _, r := range resp.Session.Records {
		switch r.PersonID {
		case "S1":
			if r.Status != "PRESENT" || r.Confidence == nil {
				t.Errorf("S1 = %+v", r)
			}
		case "S2":
			if r.Status != "ABSENT" || r.Confidence != nil {
				t.Errorf("S2 = %+v", r)
			}
		}
	}
}

func TestAttendanceSubmit_JSONManual(t *testing.T) {
	env := newTestEnv(t)
	h := NewAttendanceHandler(env.service, nil)

	body := jsonBody(t, SubmitRequest{Subject: "MATH101", Section: "SEC-A", Present: []string{"S1,S2"}})
	rec := httptest.NewRecorder()
	h.Submit(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance", body, "application/json"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[SubmitResponse](t, rec)
	if resp.Session.Method != "MANUAL" || resp.Present != 2 || resp.Session.Date != "2024-05-01" {
		t.Errorf("response = %+v", resp)
	}
}

func TestAttendanceSubmit_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        SubmitRequest
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"missing section", SubmitRequest{Subject: "MATH101"}, http.StatusBadRequest, "field", "section"},
		{"bad date", SubmitRequest{Subject: "MATH101", Section: "SEC-A", Date: "May 1"}, http.StatusBadRequest, "field", "date"},
		{"unknown class", SubmitRequest{Subject: "MATH101", Section: "SEC-Z"}, http.StatusNotFound, "", ""},
		{"undecodable image", SubmitRequest{Subject: "MATH101", Section: "SEC-A", Image: dataURL([]byte("not an image"))}, http.StatusUnprocessableEntity, "fallback", "manual"},
		{"bad base64", SubmitRequest{Subject: "MATH101", Section: "SEC-A", Image: "%%%"}, http.StatusUnprocessableEntity, "fallback", "manual"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			h := NewAttendanceHandler(env.service, nil)

			rec := httptest.NewRecorder()
			h.Submit(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance", jsonBody(t, tt.req), "application/json"))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantKey != "" {
				resp := decodeBody[map[string]string](t, rec)
				if resp[tt.wantKey] != tt.wantValue {
					t.Errorf("%s = %q, want %q", tt.wantKey, resp[tt.wantKey], tt.wantValue)
				}
			}
			if env.attendance.SessionCount() != 0 {
				t.Error("failed submission stored a session")
			}
		})
	}
}

func TestAttendanceSubmit_FallbackManual(t *testing.T) {
	env := newTestEnv(t)
	h := NewAttendanceHandler(env.service, nil)

	body := jsonBody(t, SubmitRequest{Subject: "MATH101", Section: "SEC-A", Present: []string{"S2"}, FallbackManual: true, Image: "%%%"})
	rec := httptest.NewRecorder()
	h.Submit(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance", body, "application/json"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[SubmitResponse](t, rec)
	if !resp.FallbackUsed || resp.Session.Method != "MANUAL" || resp.Present != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestAttendanceSubmit_DuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	h := NewAttendanceHandler(env.service, nil)

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		rec := httptest.NewRecorder()
		body := jsonBody(t, SubmitRequest{Subject: "MATH101", Section: "SEC-A", Date: "2024-05-01"})
		h.Submit(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance", body, "application/json"))
		if rec.Code != want {
			t.Fatalf("submission %d: status = %d, want %d", i, rec.Code, want)
		}
		if want == http.StatusConflict {
			resp := decodeBody[map[string]string](t, rec)
			if resp["error"] != "already marked today" {
				t.Errorf("error = %q", resp["error"])
			}
		}
	}
}

func TestAttendancePreview(t *testing.T) {
	env := newTestEnv(t)
	img := stripedPNG(t, 8)
	if _, err := env.engine.Enroll(context.Background(), "S2", img, ""); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	h := NewAttendanceHandler(env.service, nil)

	rec := httptest.NewRecorder()
	h.Preview(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance/preview", jsonBody(t, PreviewRequest{Image: dataURL(img)}), "application/json"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[PreviewResponse](t, rec)
	if resp.Count != 1 || resp.Matches["S2"] != 1 {
		t.Errorf("response = %+v", resp)
	}
	if env.attendance.CreateCalls != 0 {
		t.Error("preview stored a session")
	}

	// Multipart without an image
	body, ct := multipartBody(t, map[string][]string{"threshold": {"0.5"}}, "", nil)
	rec = httptest.NewRecorder()
	h.Preview(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance/preview", body, ct))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status without image = %d, want 400", rec.Code)
	}
}

func TestAttendanceGet(t *testing.T) {
	env := newTestEnv(t)
	h := NewAttendanceHandler(env.service, nil)

	params := map[string]string{"subject": "MATH101", "section": "SEC-A", "date": "2024-05-01"}

	rec := httptest.NewRecorder()
	h.Get(rec, requestWithChiParams(requestAsFaculty(http.MethodGet, "/", nil, ""), params))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before submission = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Submit(rec, requestAsFaculty(http.MethodPost, "/api/v1/attendance", jsonBody(t, SubmitRequest{Subject: "MATH101", Section: "SEC-A", Present: []string{"S1"}}), "application/json"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, requestWithChiParams(requestAsFaculty(http.MethodGet, "/", nil, ""), params))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[SessionResponse](t, rec)
	if len(resp.Records) != 2 || resp.Subject != "MATH101" {
		t.Errorf("response = %+v", resp)
	}

	params["date"] = "01-05-2024"
	rec = httptest.NewRecorder()
	h.Get(rec, requestWithChiParams(requestAsFaculty(http.MethodGet, "/", nil, ""), params))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for bad date = %d, want 400", rec.Code)
	}
}
