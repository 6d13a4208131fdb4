package middleware

import (
	"context"
	"net/http"
)

type contextKey struct{}

// Bodies of the 401 answers. next_step tells a kiosk which login screen to show.
const (
	loginRequiredBody = `{"error":"login required","next_step":"login"}`
	faceRequiredBody  = `{"error":"face verification required","next_step":"verify_face"}`
)

func unauthorized(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(body))
}

// RequireAuth admits only sessions that passed both the password and the face step, and
// puts the session into the request context.
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			switch {
			case session == nil:
				unauthorized(w, loginRequiredBody)
				return
			case !session.Authenticated():
				unauthorized(w, faceRequiredBody)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// GetSessionFromContext returns the session RequireAuth admitted, or nil.
func GetSessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(contextKey{}).(*Session)
	return session
}

// SetSessionInContext returns a copy of ctx carrying session.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, session)
}
