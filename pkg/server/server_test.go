package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrCodeEU/attendface/pkg/attendance"
	"github.com/MrCodeEU/attendface/pkg/auth"
	"github.com/MrCodeEU/attendface/pkg/config"
	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/matching"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestNew_RequiresFaces(t *testing.T) {
	if _, err := New(config.DefaultConfig().Server, Services{}); err == nil {
		t.Error("expected an error without a face service")
	}
}

func TestRegisterFace(t *testing.T) {
	var gotKey int64
	faces := &MockFaces{
		EnrollFunc: func(ctx context.Context, key int64, image []byte) (*storage.Embedding, error) {
			gotKey = key
			return &storage.Embedding{IdentityKey: key, FaceID: "abc"}, nil
		},
	}
	s := newTestServer(t, Services{Faces: faces})

	rec := serve(s, uploadRequest(t, "POST", "/api/v1/register-face", map[string]string{"user_id": "12"}, "image/jpeg", jpegBytes))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["identity_key"] != float64(12) || body["face_id"] != "abc" {
		t.Errorf("unexpected body %v", body)
	}
	if gotKey != 12 {
		t.Errorf("engine got key %d", gotKey)
	}
}

func TestRegisterFace_BadRequests(t *testing.T) {
	called := false
	faces := &MockFaces{
		EnrollFunc: func(ctx context.Context, key int64, image []byte) (*storage.Embedding, error) {
			called = true
			return &storage.Embedding{IdentityKey: key}, nil
		},
	}
	s := newTestServer(t, Services{Faces: faces})

	tests := []struct {
		name        string
		fields      map[string]string
		contentType string
		data        []byte
	}{
		{"missing image", map[string]string{"user_id": "1"}, "", nil},
		{"wrong type", map[string]string{"user_id": "1"}, "text/plain", []byte("hello")},
		{"gif", map[string]string{"user_id": "1"}, "image/gif", []byte("GIF89a")},
		{"missing user", nil, "image/jpeg", jpegBytes},
		{"non-integer user", map[string]string{"user_id": "abc"}, "image/jpeg", jpegBytes},
		{"negative user", map[string]string{"user_id": "-4"}, "image/jpeg", jpegBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, uploadRequest(t, "POST", "/api/v1/register-face", tt.fields, tt.contentType, tt.data))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
	if called {
		t.Error("engine must not be called for rejected requests")
	}
}

func TestRegisterFace_SniffsOctetStream(t *testing.T) {
	s := newTestServer(t, Services{})
	rec := serve(s, uploadRequest(t, "POST", "/api/v1/register-face", map[string]string{"user_id": "3"}, "application/octet-stream", pngBytes))
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestEngineErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{matching.ErrInvalidImage, http.StatusBadRequest},
		{matching.ErrNoFaceDetected, http.StatusUnprocessableEntity},
		{matching.ErrMultipleFacesDetected, http.StatusUnprocessableEntity},
		{matching.ErrFaceAlreadyRegistered, http.StatusConflict},
		{matching.ErrIdentityNotEnrolled, http.StatusNotFound},
		{matching.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{matching.ErrModelFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(matching.KindOf(tt.err)), func(t *testing.T) {
			faces := &MockFaces{
				VerifyFunc: func(ctx context.Context, key int64, image []byte) (*matching.VerifyResult, error) {
					return nil, fmt.Errorf("verify: %w", tt.err)
				},
			}
			s := newTestServer(t, Services{Faces: faces})

			rec := serve(s, uploadRequest(t, "POST", "/api/v1/verify", map[string]string{"user_id": "1"}, "image/png", pngBytes))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			body := decode(t, rec)
			if body["code"] != string(matching.KindOf(tt.err)) {
				t.Errorf("code = %v", body["code"])
			}
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{attendance.ErrAlreadyCheckedIn, http.StatusConflict},
		{attendance.ErrAlreadyCheckedOut, http.StatusConflict},
		{attendance.ErrNotCheckedIn, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", attendance.ErrInvalidFilter), http.StatusBadRequest},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{database.ErrEmailTaken, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	if _, msg := errorStatus(errors.New("secret internals")); strings.Contains(msg, "secret") {
		t.Error("system faults must not leak error text")
	}
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name       string
		result     *matching.MatchResult
		wantKey    bool
		wantName   bool
		wantDist   bool
		wantStatus int
	}{
		{"matched", &matching.MatchResult{Matched: true, IdentityKey: 7, Distance: 0.31, Candidates: 3}, true, true, true, 200},
		{"matched without profile", &matching.MatchResult{Matched: true, IdentityKey: 8, Distance: 0.2, Candidates: 3}, true, false, true, 200},
		{"not matched", &matching.MatchResult{IdentityKey: 7, Distance: 0.8, Candidates: 3}, false, false, true, 200},
		{"empty store", &matching.MatchResult{}, false, false, false, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faces := &MockFaces{
				RecognizeFunc: func(ctx context.Context, image []byte) (*matching.MatchResult, error) {
					return tt.result, nil
				},
			}
			s := newTestServer(t, Services{Faces: faces, Directory: MockDirectory{7: "Ada Lovelace"}})

			rec := serve(s, uploadRequest(t, "POST", "/api/v1/recognize", nil, "image/jpeg", jpegBytes))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d", rec.Code)
			}
			body := decode(t, rec)
			if body["matched"] != tt.result.Matched {
				t.Errorf("matched = %v", body["matched"])
			}
			if _, ok := body["identity_key"]; ok != tt.wantKey {
				t.Errorf("identity_key present = %v, want %v", ok, tt.wantKey)
			}
			if _, ok := body["display_name"]; ok != tt.wantName {
				t.Errorf("display_name present = %v, want %v", ok, tt.wantName)
			}
			if _, ok := body["distance"]; ok != tt.wantDist {
				t.Errorf("distance present = %v, want %v", ok, tt.wantDist)
			}
		})
	}
}

func TestRecognize_DeadlineStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"request deadline", fmt.Errorf("extract: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"detector timeout", &matching.Error{Kind: matching.KindModelFailure, Op: "recognize"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faces := &MockFaces{
				RecognizeFunc: func(ctx context.Context, image []byte) (*matching.MatchResult, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(t, Services{Faces: faces})

			rec := serve(s, uploadRequest(t, "POST", "/api/v1/recognize", nil, "image/jpeg", jpegBytes))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	faces := &MockFaces{
		VerifyFunc: func(ctx context.Context, key int64, image []byte) (*matching.VerifyResult, error) {
			if key != 5 {
				t.Errorf("key = %d", key)
			}
			return &matching.VerifyResult{Verified: true, Distance: 0.1}, nil
		},
	}
	s := newTestServer(t, Services{Faces: faces})

	// The legacy field name is still accepted.
	rec := serve(s, uploadRequest(t, "POST", "/api/v1/verify", map[string]string{"user_id_to_verify": "5"}, "image/jpeg", jpegBytes))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["verified"] != true || body["distance"] != 0.1 {
		t.Errorf("unexpected body %v", body)
	}
}

func TestDeleteFace(t *testing.T) {
	enrolled := map[int64]bool{4: true}
	faces := &MockFaces{
		DeleteFunc: func(ctx context.Context, key int64) (bool, error) {
			ok := enrolled[key]
			delete(enrolled, key)
			return ok, nil
		},
	}
	s := newTestServer(t, Services{Faces: faces})

	steps := []struct {
		path string
		want int
	}{
		{"/api/v1/faces/4", http.StatusOK},
		{"/api/v1/faces/4", http.StatusNotFound},
		{"/api/v1/faces/99", http.StatusNotFound},
		{"/api/v1/faces/abc", http.StatusBadRequest},
	}
	for _, step := range steps {
		rec := serve(s, httptest.NewRequest("DELETE", step.path, nil))
		if rec.Code != step.want {
			t.Errorf("DELETE %s = %d, want %d", step.path, rec.Code, step.want)
		}
	}
}

func TestHealth(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	fail := func(ctx context.Context) error { return errors.New("down") }

	tests := []struct {
		name   string
		checks []HealthCheck
		want   int
	}{
		{"all ok", []HealthCheck{{"face_models", ok}, {"embedding_store", ok}}, http.StatusOK},
		{"store down", []HealthCheck{{"face_models", ok}, {"embedding_store", fail}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Services{Health: tt.checks})
			rec := serve(s, httptest.NewRequest("GET", "/api/v1/health", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			body := decode(t, rec)
			components, _ := body["components"].([]interface{})
			if len(components) != len(tt.checks) {
				t.Errorf("got %d components", len(components))
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, Services{})

	rec := serve(s, httptest.NewRequest("GET", "/api/v1/health", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing generated request id")
	}

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = serve(s, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want the caller's", got)
	}
}

func TestRecovery(t *testing.T) {
	faces := &MockFaces{
		RecognizeFunc: func(ctx context.Context, image []byte) (*matching.MatchResult, error) {
			panic("model exploded")
		},
	}
	s := newTestServer(t, Services{Faces: faces})

	rec := serve(s, uploadRequest(t, "POST", "/api/v1/recognize", nil, "image/jpeg", jpegBytes))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAccountRoutes(t *testing.T) {
	a := &MockAuth{
		User: &database.User{ID: 9, FullName: "Grace", Email: "grace@example.com", PasswordHash: "hash"},
		SigninFunc: func(ctx context.Context, email, password string) (*auth.Session, error) {
			if password != "right" {
				return nil, auth.ErrInvalidCredentials
			}
			return &auth.Session{Token: "valid-token", ExpiresIn: 3600}, nil
		},
	}
	s := newTestServer(t, Services{Auth: a})

	signup := httptest.NewRequest("POST", "/api/v1/auth/signup",
		strings.NewReader(`{"full_name":"Grace","email":"g@example.com","password":"pw123456","confirm_password":"pw123456"}`))
	signup.Header.Set("Content-Type", "application/json")
	if rec := serve(s, signup); rec.Code != http.StatusCreated {
		t.Errorf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}

	incomplete := httptest.NewRequest("POST", "/api/v1/auth/signup", strings.NewReader(`{"email":"g@example.com"}`))
	incomplete.Header.Set("Content-Type", "application/json")
	if rec := serve(s, incomplete); rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete signup status = %d", rec.Code)
	}

	signin := httptest.NewRequest("POST", "/api/v1/auth/signin", strings.NewReader(`{"email":"g@example.com","password":"right"}`))
	signin.Header.Set("Content-Type", "application/json")
	rec := serve(s, signin)
	if rec.Code != http.StatusOK || decode(t, rec)["access_token"] != "valid-token" {
		t.Errorf("signin = %d %s", rec.Code, rec.Body.String())
	}

	wrong := httptest.NewRequest("POST", "/api/v1/auth/signin", strings.NewReader(`{"email":"g@example.com","password":"wrong"}`))
	wrong.Header.Set("Content-Type", "application/json")
	if rec := serve(s, wrong); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", rec.Code)
	}

	me := httptest.NewRequest("GET", "/api/v1/me", nil)
	me.Header.Set("Authorization", "Bearer valid-token")
	rec = serve(s, me)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["user_id"] != float64(9) {
		t.Errorf("unexpected profile %v", body)
	}
	if _, leaked := body["password_hash"]; leaked {
		t.Error("password hash must not be serialized")
	}

	for _, header := range []string{"", "Bearer ", "Bearer nope", "Basic valid-token"} {
		req := httptest.NewRequest("GET", "/api/v1/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if rec := serve(s, req); rec.Code != http.StatusUnauthorized {
			t.Errorf("Authorization %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	s := newTestServer(t, Services{})
	for _, path := range []string{"/api/v1/auth/signin", "/api/v1/attendance/face-scan"} {
		if rec := serve(s, httptest.NewRequest("POST", path, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("POST %s = %d, want 404", path, rec.Code)
		}
	}
}

func TestAttendanceRoutes(t *testing.T) {
	user := &database.User{ID: 9}
	att := &MockAttendance{
		CheckInFunc: func(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error) {
			if userID != 9 {
				t.Errorf("user = %d", userID)
			}
			return &database.AttendanceRecord{ID: 1, UserID: userID, Status: database.StatusOnTime}, nil
		},
		CheckOutFunc: func(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error) {
			return nil, attendance.ErrNotCheckedIn
		},
		HistoryFunc: func(ctx context.Context, userID int64, f attendance.Filter) ([]database.AttendanceRecord, error) {
			if f.From.Format("2006-01-02") != "2026-03-01" || f.Status != database.StatusLate {
				t.Errorf("unexpected filter %+v", f)
			}
			return nil, nil
		},
		HoursFunc: func(ctx context.Context, userID int64, from, to time.Time) (map[string]float64, error) {
			return map[string]float64{"2026-03-02": 8.5}, nil
		},
	}
	s := newTestServer(t, Services{Auth: &MockAuth{User: user}, Attendance: att})

	authed := func(method, path string) *http.Request {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		return req
	}

	if rec := serve(s, authed("POST", "/api/v1/attendance/checkin")); rec.Code != http.StatusOK {
		t.Errorf("checkin = %d", rec.Code)
	}
	if rec := serve(s, authed("POST", "/api/v1/attendance/checkout")); rec.Code != http.StatusBadRequest {
		t.Errorf("checkout without checkin = %d, want 400", rec.Code)
	}

	rec := serve(s, authed("GET", "/api/v1/attendance/history?start_date=2026-03-01&status=late"))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("history = %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(s, authed("GET", "/api/v1/attendance/history?start_date=March")); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d, want 400", rec.Code)
	}

	rec = serve(s, authed("GET", "/api/v1/attendance/working-hours"))
	if rec.Code != http.StatusOK || decode(t, rec)["2026-03-02"] != 8.5 {
		t.Errorf("working hours = %d %s", rec.Code, rec.Body.String())
	}

	if rec := serve(s, httptest.NewRequest("POST", "/api/v1/attendance/checkin", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated checkin = %d, want 401", rec.Code)
	}
}

func TestFaceScan(t *testing.T) {
	result := &matching.MatchResult{Matched: true, IdentityKey: 7, Distance: 0.2, Candidates: 2}
	faces := &MockFaces{
		RecognizeFunc: func(ctx context.Context, image []byte) (*matching.MatchResult, error) {
			return result, nil
		},
	}
	scanned := int64(0)
	att := &MockAttendance{
		ScanFunc: func(ctx context.Context, userID int64, now time.Time) (*attendance.ScanResult, error) {
			scanned = userID
			return &attendance.ScanResult{Action: attendance.ActionCheckIn, Record: &database.AttendanceRecord{UserID: userID}}, nil
		},
	}
	s := newTestServer(t, Services{Faces: faces, Attendance: att, Directory: MockDirectory{7: "Ada"}})

	rec := serve(s, uploadRequest(t, "POST", "/api/v1/attendance/face-scan", nil, "image/jpeg", jpegBytes))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["action"] != "check_in" || body["display_name"] != "Ada" || scanned != 7 {
		t.Errorf("unexpected body %v", body)
	}

	result = &matching.MatchResult{IdentityKey: 7, Distance: 0.9, Candidates: 2}
	scanned = 0
	rec = serve(s, uploadRequest(t, "POST", "/api/v1/attendance/face-scan", nil, "image/jpeg", jpegBytes))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unmatched status = %d, want 401", rec.Code)
	}
	if scanned != 0 {
		t.Error("attendance must not be touched for an unmatched face")
	}
}
