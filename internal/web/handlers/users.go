package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/faceauth"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

const errUserNotFound = "user not found"

// UsersHandler serves member profiles and re-enrollment.
type UsersHandler struct {
	config         *config.Config
	sessionManager *middleware.SessionManager
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(cfg *config.Config, sm *middleware.SessionManager) *UsersHandler {
	return &UsersHandler{
		config:         cfg,
		sessionManager: sm,
	}
}

// UserSummary is a member in listings. It never carries images or enrollment data.
type UserSummary struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	EnrollmentID string    `json:"enrollment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserProfile is a single member with the profile image.
type UserProfile struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Image        string `json:"image,omitempty"` // base64
	FaceEnrolled bool   `json:"face_enrolled"`
}

func newUserProfile(u *database.User) *UserProfile {
	p := &UserProfile{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		EnrollmentID: u.EnrollmentID,
		FaceEnrolled: faceauth.ParseStoredRecord(u.FacialData) != nil,
	}
	if len(u.ProfileImage) > 0 {
		p.Image = base64.StdEncoding.EncodeToString(u.ProfileImage)
	}
	return p
}

// List returns every member.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := database.GetUserReader(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return
	}
	list, err := users.ListUsers(r.Context())
	if err != nil {
		respondInternal(w, r, "failed to list users", err)
		return
	}

	result := make([]UserSummary, 0, len(list))
	for _, u := range list {
		result = append(result, UserSummary{
			ID:           u.ID,
			Name:         u.Name,
			Email:        u.Email,
			EnrollmentID: u.EnrollmentID,
			CreatedAt:    u.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns one member by ID.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	users, err := database.GetUserReader(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return
	}
	user, err := users.GetUser(r.Context(), id)
	if err != nil {
		respondInternal(w, r, "failed to get user", err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, errUserNotFound)
		return
	}
	respondJSON(w, http.StatusOK, newUserProfile(user))
}

// GetByEnrollment returns one member by student or staff number.
func (h *UsersHandler) GetByEnrollment(w http.ResponseWriter, r *http.Request) {
	enrollmentID := strings.TrimSpace(chi.URLParam(r, "enrollmentId"))
	if enrollmentID == "" {
		respondError(w, http.StatusBadRequest, "enrollment ID is required")
		return
	}
	users, err := database.GetUserReader(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return
	}
	user, err := users.GetUserByEnrollmentID(r.Context(), enrollmentID)
	if err != nil {
		respondInternal(w, r, "failed to get user", err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, errUserNotFound)
		return
	}
	respondJSON(w, http.StatusOK, newUserProfile(user))
}

type updateDescriptorRequest struct {
	FacialDescriptor json.RawMessage `json:"facial_descriptor"`
}

// UpdateDescriptor replaces the caller's own enrollment.
func (h *UsersHandler) UpdateDescriptor(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateDescriptorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	descriptor, ok := parseValidDescriptor(req.FacialDescriptor)
	if !ok {
		respondError(w, http.StatusBadRequest, errInvalidDescriptor)
		return
	}

	users, err := database.GetUserWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return
	}

	err = database.ReplaceUniqueDescriptor(r.Context(), users, userID, descriptor, h.config.FaceAuth.Threshold)
	switch {
	case errors.Is(err, database.ErrDuplicateFace):
		respondError(w, http.StatusConflict, "face already registered to another member")
		return
	case err != nil:
		respondInternal(w, r, "failed to update descriptor", err)
		return
	}

	slog.InfoContext(r.Context(), "descriptor replaced", "user_id", userID)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"descriptor_length": len(descriptor),
	})
}
