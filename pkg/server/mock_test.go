package server

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrCodeEU/attendface/pkg/attendance"
	"github.com/MrCodeEU/attendface/pkg/auth"
	"github.com/MrCodeEU/attendface/pkg/config"
	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/matching"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	jpegBytes = []byte("\xff\xd8\xff\xe0fake-jpeg")
	pngBytes  = []byte("\x89PNG\r\n\x1a\nfake-png")
)

type MockFaces struct {
	EnrollFunc    func(ctx context.Context, key int64, image []byte) (*storage.Embedding, error)
	RecognizeFunc func(ctx context.Context, image []byte) (*matching.MatchResult, error)
	VerifyFunc    func(ctx context.Context, key int64, image []byte) (*matching.VerifyResult, error)
	DeleteFunc    func(ctx context.Context, key int64) (bool, error)
}

func (m *MockFaces) Enroll(ctx context.Context, key int64, image []byte) (*storage.Embedding, error) {
	if m.EnrollFunc != nil {
		return m.EnrollFunc(ctx, key, image)
	}
	return &storage.Embedding{IdentityKey: key, FaceID: "face-id"}, nil
}

func (m *MockFaces) Recognize(ctx context.Context, image []byte) (*matching.MatchResult, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, image)
	}
	return &matching.MatchResult{}, nil
}

func (m *MockFaces) Verify(ctx context.Context, key int64, image []byte) (*matching.VerifyResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, key, image)
	}
	return &matching.VerifyResult{}, nil
}

func (m *MockFaces) Delete(ctx context.Context, key int64) (bool, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return false, nil
}

type MockDirectory map[int64]string

func (m MockDirectory) DisplayName(ctx context.Context, id int64) (string, error) {
	name, ok := m[id]
	if !ok {
		return "", database.ErrUserNotFound
	}
	return name, nil
}

// MockAuth accepts the token "valid-token" for User.
type MockAuth struct {
	User       *database.User
	SignupFunc func(ctx context.Context, req auth.SignupRequest) (*database.User, error)
	SigninFunc func(ctx context.Context, email, password string) (*auth.Session, error)
}

func (m *MockAuth) Signup(ctx context.Context, req auth.SignupRequest) (*database.User, error) {
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, req)
	}
	return &database.User{ID: 1, FullName: req.FullName, Email: req.Email}, nil
}

func (m *MockAuth) Signin(ctx context.Context, email, password string) (*auth.Session, error) {
	if m.SigninFunc != nil {
		return m.SigninFunc(ctx, email, password)
	}
	return nil, auth.ErrInvalidCredentials
}

func (m *MockAuth) CurrentUser(ctx context.Context, token string) (*database.User, error) {
	if token != "valid-token" || m.User == nil {
		return nil, auth.ErrInvalidToken
	}
	return m.User, nil
}

type MockAttendance struct {
	CheckInFunc  func(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error)
	CheckOutFunc func(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error)
	ScanFunc     func(ctx context.Context, userID int64, now time.Time) (*attendance.ScanResult, error)
	HistoryFunc  func(ctx context.Context, userID int64, f attendance.Filter) ([]database.AttendanceRecord, error)
	HoursFunc    func(ctx context.Context, userID int64, from, to time.Time) (map[string]float64, error)
}

func (m *MockAttendance) CheckIn(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, userID, now)
	}
	return nil, errors.New("not implemented")
}

func (m *MockAttendance) CheckOut(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error) {
	if m.CheckOutFunc != nil {
		return m.CheckOutFunc(ctx, userID, now)
	}
	return nil, errors.New("not implemented")
}

func (m *MockAttendance) Scan(ctx context.Context, userID int64, now time.Time) (*attendance.ScanResult, error) {
	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, userID, now)
	}
	return nil, errors.New("not implemented")
}

func (m *MockAttendance) History(ctx context.Context, userID int64, f attendance.Filter) ([]database.AttendanceRecord, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, userID, f)
	}
	return nil, nil
}

func (m *MockAttendance) WorkingHours(ctx context.Context, userID int64, from, to time.Time) (map[string]float64, error) {
	if m.HoursFunc != nil {
		return m.HoursFunc(ctx, userID, from, to)
	}
	return map[string]float64{}, nil
}

func newTestServer(t *testing.T, services Services) *Server {
	t.Helper()
	if services.Faces == nil {
		services.Faces = &MockFaces{}
	}
	s, err := New(config.DefaultConfig().Server, services)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) }
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// uploadRequest builds a multipart request with an optional image part.
func uploadRequest(t *testing.T, method, path string, fields map[string]string, contentType string, data []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="face_image"; filename="face"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		part.Write(data)
	}
	w.Close()

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
