package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const devSessionSecret = "smart-library-development-only"

const (
	sessionCookieName = "smart_library_session"
	sessionDuration   = 24 * time.Hour
	pendingDuration   = 10 * time.Minute
	cleanupInterval   = 15 * time.Minute
)

// SessionState tracks how far through the two-step login a session is.
type SessionState string

const (
	// StateAwaitingFace follows a correct password; the face check is still due.
	StateAwaitingFace SessionState = "awaiting_face"
	// StateAuthenticated follows an accepted face check.
	StateAuthenticated SessionState = "authenticated"
)

// Session is one login, from the password step until logout or expiry.
type Session struct {
	ID        string
	UserID    int64
	State     SessionState
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether both login steps are complete.
func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

// StoredSession is the persisted form of a session.
type StoredSession struct {
	ID        string
	UserID    int64
	State     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository persists sessions so they survive restarts.
type SessionRepository interface {
	Save(ctx context.Context, s StoredSession) error
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionManager issues and resolves sessions. Memory is authoritative for the running
// process and a configured repository is written through so logins survive restarts.
type SessionManager struct {
	secret   []byte
	sessions map[string]*Session
	mu       sync.RWMutex
	repo     SessionRepository

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager starts the expiry sweeper. repo may be nil. An empty secret is
// replaced by a fixed development key.
func NewSessionManager(secret string, repo SessionRepository) *SessionManager {
	if secret == "" {
		secret = devSessionSecret
	}
	sm := &SessionManager{
		secret:   []byte(secret),
		sessions: make(map[string]*Session),
		repo:     repo,
		stop:     make(chan struct{}),
	}
	go sm.cleanupLoop()
	return sm
}

func (sm *SessionManager) persist(ctx context.Context, s *Session) {
	if sm.repo == nil {
		return
	}
	err := sm.repo.Save(ctx, StoredSession{
		ID:        s.ID,
		UserID:    s.UserID,
		State:     string(s.State),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to persist session", "error", err)
	}
}

// CreateSession starts a login for userID. The session awaits the face check.
func (sm *SessionManager) CreateSession(ctx context.Context, userID int64) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     StateAwaitingFace,
		CreatedAt: now,
		ExpiresAt: now.Add(pendingDuration),
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	sm.persist(ctx, session)
	return session, nil
}

// Promote completes a login: the awaiting-face session is replaced by an authenticated
// one under a fresh ID with the full lifetime, so an ID handed out at the password step
// never carries the authenticated state. Returns nil if the session no longer exists.
func (sm *SessionManager) Promote(ctx context.Context, sessionID string) *Session {
	sm.mu.Lock()
	pending, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return nil
	}
	delete(sm.sessions, sessionID)
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    pending.UserID,
		State:     StateAuthenticated,
		CreatedAt: pending.CreatedAt,
		ExpiresAt: time.Now().Add(sessionDuration),
	}
	sm.sessions[session.ID] = session
	promoted := *session
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			slog.WarnContext(ctx, "failed to delete pending session", "error", err)
		}
	}
	sm.persist(ctx, &promoted)
	return &promoted
}

// GetSession returns a copy of a live session, consulting the repository on a memory
// miss. Expired sessions are deleted and reported as nil.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	var snapshot Session
	if ok {
		snapshot = *session
	}
	sm.mu.RUnlock()

	if !ok {
		return sm.loadSession(ctx, sessionID)
	}

	if time.Now().After(snapshot.ExpiresAt) {
		sm.DeleteSession(ctx, sessionID)
		return nil
	}
	return &snapshot
}

func (sm *SessionManager) loadSession(ctx context.Context, sessionID string) *Session {
	if sm.repo == nil {
		return nil
	}
	stored, err := sm.repo.Get(ctx, sessionID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load session", "error", err)
		return nil
	}
	if stored == nil || time.Now().After(stored.ExpiresAt) {
		return nil
	}

	session := &Session{
		ID:        stored.ID,
		UserID:    stored.UserID,
		State:     SessionState(stored.State),
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	loaded := *session
	return &loaded
}

// DeleteSession ends a session. Repository failures are logged only.
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			slog.WarnContext(ctx, "failed to delete session", "error", err)
		}
	}
}

// SetSessionCookie sends the signed session cookie. It expires with the session.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sm.sealCookie(session.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest resolves the session of a request. A signed cookie is tried
// first, then a bearer token carrying the raw session ID for kiosk clients.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	ctx := r.Context()
	for _, id := range sm.requestSessionIDs(r) {
		if session := sm.GetSession(ctx, id); session != nil {
			return session
		}
	}
	return nil
}

func (sm *SessionManager) requestSessionIDs(r *http.Request) []string {
	var ids []string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if id, ok := sm.openCookie(cookie.Value); ok {
			ids = append(ids, id)
		}
	}
	if id, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && id != "" {
		ids = append(ids, id)
	}
	return ids
}

func (sm *SessionManager) signData(data string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// sealCookie returns "<id>.<hmac>".
func (sm *SessionManager) sealCookie(sessionID string) string {
	return sessionID + "." + sm.signData(sessionID)
}

// openCookie returns the session ID of a cookie value whose signature matches.
func (sm *SessionManager) openCookie(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(sm.signData(id))) {
		return "", false
	}
	return id, true
}

func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.cleanup(context.Background())
		}
	}
}

// cleanup drops expired sessions from memory and the repository.
func (sm *SessionManager) cleanup(ctx context.Context) {
	now := time.Now()
	removed := 0
	sm.mu.Lock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, id)
			removed++
		}
	}
	sm.mu.Unlock()

	if sm.repo != nil {
		n, err := sm.repo.DeleteExpired(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to delete expired sessions", "error", err)
		}
		removed += int(n)
	}
	if removed > 0 {
		slog.Debug("removed expired sessions", "count", removed)
	}
}

// Stop ends the cleanup loop. Safe to call more than once.
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}

// SessionData is the JSON view of a session.
type SessionData struct {
	SessionID string       `json:"session_id"`
	UserID    int64        `json:"user_id"`
	State     SessionState `json:"state"`
	ExpiresAt string       `json:"expires_at"`
}

// ToJSON converts s to its JSON view.
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID: s.ID,
		UserID:    s.UserID,
		State:     s.State,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
