package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

// Error messages shared by several handlers.
const (
	errInvalidRequestBody  = "invalid request body"
	errDatabaseUnavailable = "database not available"
	errInternal            = "internal error"
)

// maxBodyBytes bounds request bodies. Face captures, cover photos and profile images
// travel inside them as base64.
const maxBodyBytes = 8 << 20

var logLineBreaks = strings.NewReplacer("\n", "", "\r", "")

// sanitizeForLog strips line breaks from client-supplied values before they are logged.
func sanitizeForLog(s string) string {
	return logLineBreaks.Replace(s)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondInternal logs err and sends a generic 500.
func respondInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	respondError(w, http.StatusInternalServerError, errInternal)
}

// decodeJSON decodes a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// idParam parses a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// sessionUserID returns the member behind an authenticated request.
func sessionUserID(r *http.Request) (int64, bool) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil || !session.Authenticated() {
		return 0, false
	}
	return session.UserID, true
}

// HealthCheck answers liveness probes. It does not touch the database.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}
