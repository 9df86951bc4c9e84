package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/services"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
)

// Role is what a completed authorization registers: the leader or a follower.
type Role string

const (
	RoleLeader   Role = "main"
	RoleFollower Role = "follow"
)

const stateTTL = 10 * time.Minute

type pendingState struct {
	role    Role
	expires time.Time
}

// StateTable holds the OAuth state nonces of authorizations in flight.
//
// Each nonce can be consumed once, which rejects forged and replayed callbacks.
type StateTable struct {
	mu      sync.Mutex
	pending map[string]pendingState
	now     func() time.Time
}

// NewStateTable creates an empty [StateTable]. now defaults to [time.Now].
func NewStateTable(now func() time.Time) *StateTable {
	if now == nil {
		now = time.Now
	}
	return &StateTable{pending: map[string]pendingState{}, now: now}
}

// Issue returns a new nonce for an authorization registering role. Expired nonces are swept on each call.
func (t *StateTable) Issue(role Role) string {
	state := shared.GenerateState()

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, p := range t.pending {
		if now.After(p.expires) {
			delete(t.pending, k)
		}
	}
	t.pending[state] = pendingState{role: role, expires: now.Add(stateTTL)}
	return state
}

// Consume removes state and returns the role it was issued for.
func (t *StateTable) Consume(state string) (Role, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[state]
	if !ok {
		return "", false
	}
	delete(t.pending, state)
	if t.now().After(p.expires) {
		return "", false
	}
	return p.role, true
}

// CallbackHandler completes the authorization code flow and stores the resulting refresh token.
//
// Leader authorizations are stored under the leader id. Follower authorizations are stored under the account's
// Spotify id and start a browser session.
type CallbackHandler struct {
	oauth    services.OAuthService
	store    store.Store
	states   *StateTable
	sessions *SessionTable
	leaderID string
	logger   *log.Logger
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /callback"}
}

// ServeHTTP handles the OAuth callback request.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	role, ok := h.states.Consume(q.Get("state"))
	if !ok {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.logger.Warn("authorization denied", "error", q.Get("error"), "role", role)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "role", role, "err", err)
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	if role == RoleLeader {
		if err := h.store.Put(r.Context(), h.leaderID, token.RefreshToken); err != nil {
			h.logger.Error("failed to store leader credential", "err", err)
			http.Error(w, "Failed to store credential", http.StatusInternalServerError)
			return
		}
		h.logger.Info("leader registered", "leader", h.leaderID)
		http.Redirect(w, r, "/main", http.StatusFound)
		return
	}

	player, err := h.oauth.Connect(r.Context(), token)
	if err != nil {
		h.logger.Error("failed to connect follower", "err", err)
		http.Error(w, "Failed to identify account", http.StatusBadGateway)
		return
	}
	user, err := player.UserProfile(r.Context())
	if err != nil {
		h.logger.Error("failed to identify follower", "err", err)
		http.Error(w, "Failed to identify account", http.StatusBadGateway)
		return
	}

	if user.ID == h.leaderID {
		http.Error(w, "Account id is reserved for the leader", http.StatusConflict)
		return
	}

	if err := h.store.Put(r.Context(), user.ID, token.RefreshToken); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shared.ErrInvalidKey) {
			status = http.StatusBadRequest
		}
		h.logger.Error("failed to store follower credential", "user", user.ID, "err", err)
		http.Error(w, "Failed to store credential", status)
		return
	}

	h.sessions.setCookie(w, h.sessions.Issue(user.ID))
	h.logger.Info("follower registered", "user", user.ID, "name", user.Name())
	http.Redirect(w, r, "/", http.StatusFound)
}
