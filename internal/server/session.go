package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/tandem/internal/shared"
)

const (
	// SessionCookie names the cookie carrying the server-side session id.
	SessionCookie = "tandem_session"
	sessionTTL    = 30 * 24 * time.Hour
)

type sessionEntry struct {
	userID  string
	expires time.Time
}

// SessionTable maps session ids to the user they were issued for.
//
// Sessions only live in memory. A restart signs every browser out, but the stored credentials stay.
type SessionTable struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionTable creates an empty [SessionTable]. now defaults to [time.Now].
func NewSessionTable(now func() time.Time) *SessionTable {
	if now == nil {
		now = time.Now
	}
	return &SessionTable{entries: map[string]sessionEntry{}, ttl: sessionTTL, now: now}
}

// Issue creates a session for userID and returns its id.
func (t *SessionTable) Issue(userID string) string {
	id := shared.GenerateID()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = sessionEntry{userID: userID, expires: t.now().Add(t.ttl)}
	return id
}

// Lookup returns the user behind session id. Expired sessions are dropped.
func (t *SessionTable) Lookup(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return "", false
	}
	if t.now().After(e.expires) {
		delete(t.entries, id)
		return "", false
	}
	return e.userID, true
}

// Revoke removes session id.
func (t *SessionTable) Revoke(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len returns the number of live and expired sessions held.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// FromRequest returns the session id and user carried by r's cookie.
func (t *SessionTable) FromRequest(r *http.Request) (sid, userID string, ok bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return "", "", false
	}
	userID, ok = t.Lookup(c.Value)
	return c.Value, userID, ok
}

func (t *SessionTable) setCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		Expires:  t.now().Add(t.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
