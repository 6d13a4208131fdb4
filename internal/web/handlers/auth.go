package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/faceauth"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

const errInvalidDescriptor = "facial descriptor must be an array of 128 finite numbers"

// dummyHash keeps login timing similar for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("smart-library-dummy"), bcrypt.MinCost)

// AuthHandler handles registration and the two-step login: password, then face.
type AuthHandler struct {
	config         *config.Config
	sessionManager *middleware.SessionManager
	lockout        *middleware.FaceLockout
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, sm *middleware.SessionManager, lockout *middleware.FaceLockout) *AuthHandler {
	return &AuthHandler{
		config:         cfg,
		sessionManager: sm,
		lockout:        lockout,
	}
}

// parseValidDescriptor decodes a request descriptor and requires it to be usable.
func parseValidDescriptor(raw json.RawMessage) (faceauth.Descriptor, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	d, err := faceauth.ParseDescriptor(raw)
	if err != nil || !d.Valid() {
		return nil, false
	}
	return d, true
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		_, s, _ = strings.Cut(s, ",")
	}
	return base64.StdEncoding.DecodeString(s)
}

type registerRequest struct {
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	Password         string          `json:"password"`
	EnrollmentID     string          `json:"enrollment_id"`
	FacialDescriptor json.RawMessage `json:"facial_descriptor"`
	ProfileImage     string          `json:"profile_image"`
}

// RegisterResponse represents a registration response
type RegisterResponse struct {
	Success bool   `json:"success"`
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// Register enrolls a new member with password and face.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.EnrollmentID = strings.TrimSpace(req.EnrollmentID)

	if req.Name == "" || req.Email == "" || req.Password == "" || len(req.FacialDescriptor) == 0 {
		respondError(w, http.StatusBadRequest, "name, email, password and facial descriptor are required")
		return
	}
	descriptor, ok := parseValidDescriptor(req.FacialDescriptor)
	if !ok {
		respondError(w, http.StatusBadRequest, errInvalidDescriptor)
		return
	}
	image, err := decodeImage(req.ProfileImage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "profile image must be base64")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		respondError(w, http.StatusBadRequest, "password is too long")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to hash password", err)
		return
	}

	users, err := database.GetUserWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return
	}

	user := &database.User{
		Name:         req.Name,
		Email:        req.Email,
		EnrollmentID: req.EnrollmentID,
		PasswordHash: string(hash),
		ProfileImage: image,
	}
	err = database.EnrollUniqueUser(r.Context(), users, user, descriptor, h.config.FaceAuth.Threshold)
	var dup *database.DuplicateFaceError
	switch {
	case errors.As(err, &dup):
		slog.InfoContext(r.Context(), "registration rejected: face already enrolled",
			"email", sanitizeForLog(req.Email), "existing_user_id", dup.Match.UserID, "similarity", dup.Match.Similarity)
		respondError(w, http.StatusConflict, "face already registered to another member")
		return
	case errors.Is(err, database.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, "email already registered")
		return
	case errors.Is(err, database.ErrDuplicateEnrollmentID):
		respondError(w, http.StatusConflict, "enrollment ID already registered")
		return
	case err != nil:
		respondInternal(w, r, "failed to register user", err)
		return
	}

	slog.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	respondJSON(w, http.StatusCreated, RegisterResponse{
		Success: true,
		UserID:  user.ID,
		Name:    user.Name,
		Email:   user.Email,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool   `json:"success"`
	UserID    int64  `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	NextStep  string `json:"next_step,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Login checks the password and opens a session awaiting the face check.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Require both email and password
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	users, err := database.GetUserReader(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return
	}
	user, err := users.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		respondInternal(w, r, "failed to look up user", err)
		return
	}

	hash := dummyHash
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil || user == nil {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}

	session, err := h.sessionManager.CreateSession(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessionManager.SetSessionCookie(w, r, session)

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		UserID:    user.ID,
		SessionID: session.ID,
		NextStep:  "verify_face",
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type verifyFaceRequest struct {
	FacialDescriptor json.RawMessage `json:"facial_descriptor"`
}

// VerifyFaceResponse carries the verdict and, on acceptance, the member's profile.
// SessionID is the authenticated session that replaces the one from the password step.
type VerifyFaceResponse struct {
	faceauth.Result
	SessionID string       `json:"session_id,omitempty"`
	ExpiresAt string       `json:"expires_at,omitempty"`
	User      *UserProfile `json:"user,omitempty"`
}

// verifyStatus maps each outcome to its HTTP status.
var verifyStatus = map[faceauth.Outcome]int{
	faceauth.OutcomeAccepted:          http.StatusOK,
	faceauth.OutcomeNotEnrolled:       http.StatusConflict,
	faceauth.OutcomeCorruptStoredData: http.StatusUnprocessableEntity,
	faceauth.OutcomeInvalidCapture:    http.StatusBadRequest,
	faceauth.OutcomeBelowThreshold:    http.StatusUnauthorized,
}

// VerifyFace is the second login step. It compares the captured descriptor with the
// member's enrollment and promotes the session on acceptance.
func (h *AuthHandler) VerifyFace(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondError(w, http.StatusUnauthorized, "login required")
		return
	}
	if session.Authenticated() {
		respondError(w, http.StatusBadRequest, "session already authenticated")
		return
	}

	var req verifyFaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	attempt, retryAfter := h.lockout.Begin(session.UserID)
	if attempt == nil {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		respondError(w, http.StatusTooManyRequests, "too many failed face checks, try again later")
		return
	}
	defer attempt.Release()

	users, err := database.GetUserReader(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return
	}
	stored, err := database.LoadStoredDescriptor(r.Context(), users, session.UserID)
	if errors.Is(err, database.ErrUnknownUser) {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
		respondError(w, http.StatusUnauthorized, "user not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to load enrollment", err)
		return
	}

	// An unparseable capture is left nil so Verify reports it after the stored-data checks.
	var captured faceauth.Descriptor
	if len(req.FacialDescriptor) > 0 {
		captured, _ = faceauth.ParseDescriptor(req.FacialDescriptor)
	}

	result := faceauth.Verify(stored, captured, h.config.FaceAuth.Threshold)
	slog.InfoContext(r.Context(), "face verification",
		"user_id", session.UserID,
		"outcome", result.Outcome.String(),
		"similarity", result.Similarity,
		"captured_len", len(captured),
	)

	if result.CountsTowardLockout() {
		attempt.Fail()
	}
	if !result.Accepted {
		respondJSON(w, verifyStatus[result.Outcome], VerifyFaceResponse{Result: result})
		return
	}

	attempt.Succeed()
	promoted := h.sessionManager.Promote(r.Context(), session.ID)
	if promoted == nil {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	h.sessionManager.SetSessionCookie(w, r, promoted)

	resp := VerifyFaceResponse{
		Result:    result,
		SessionID: promoted.ID,
		ExpiresAt: promoted.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if user, err := users.GetUser(r.Context(), session.UserID); err == nil && user != nil {
		resp.User = newUserProfile(user)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	State         string `json:"state,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status reports where the caller's session is in the login flow.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: session.Authenticated(),
		State:         string(session.State),
		UserID:        session.UserID,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
