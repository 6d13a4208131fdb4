package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/database/mock"
	"github.com/kozaktomas/smart-library/internal/faceauth"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		FaceAuth: config.FaceAuthConfig{
			Threshold:     faceauth.DefaultThreshold,
			MaxAttempts:   3,
			LockoutWindow: 15 * time.Minute,
		},
		Library: config.LibraryConfig{LoanDays: 14, ReissueDays: 7, CoverMatchPercent: 70},
	}
}

// mocks bundles the registered in-memory stores
type mocks struct {
	users *mock.MockUserWriter
	books *mock.MockBookWriter
	loans *mock.MockLoanWriter
}

// setupMocks registers fresh mock stores as the database backend
func setupMocks(t *testing.T) *mocks {
	t.Helper()
	m := &mocks{users: mock.NewMockUserWriter(), books: mock.NewMockBookWriter()}
	m.loans = mock.NewMockLoanWriter(m.books)
	mock.Register(m.users, m.books, m.loans)
	t.Cleanup(database.ResetForTesting)
	return m
}

// newSessionManager creates a session manager stopped at test end
func newSessionManager(t *testing.T) *middleware.SessionManager {
	t.Helper()
	sm := middleware.NewSessionManager("test-secret", nil)
	t.Cleanup(sm.Stop)
	return sm
}

// unitDescriptor returns a unit-length descriptor pointing along axis i
func unitDescriptor(i int) faceauth.Descriptor {
	d := make(faceauth.Descriptor, faceauth.DescriptorSize)
	d[i%faceauth.DescriptorSize] = 1
	return d
}

// blend returns a unit descriptor between two axes, cos(angle) towards a
func blend(a, b int, angle float64) faceauth.Descriptor {
	d := make(faceauth.Descriptor, faceauth.DescriptorSize)
	d[a] = math.Cos(angle)
	d[b] = math.Sin(angle)
	return d
}

// enrolledUser adds a user whose stored enrollment is d
func enrolledUser(t *testing.T, m *mocks, email string, d faceauth.Descriptor) int64 {
	t.Helper()
	doc, err := faceauth.EncodeStoredRecord(d, time.Now())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	id := m.users.AddUser(database.User{Name: "Member", Email: email, FacialData: doc, PasswordHash: mustHash(t, "secret-pass")})
	m.users.SetDescriptor(id, d.Float32())
	return id
}

// jsonRequest builds a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withUser puts an authenticated session for userID into the request context
func withUser(r *http.Request, userID int64) *http.Request {
	session := &middleware.Session{
		ID:        "test-session",
		UserID:    userID,
		State:     middleware.StateAuthenticated,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), session))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
