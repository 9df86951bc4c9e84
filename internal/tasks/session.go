package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/services"
	"github.com/desertthunder/tandem/internal/shared"
	"golang.org/x/oauth2"
)

// minTokenValidity is the remaining lifetime below which a session is rebuilt before use.
const minTokenValidity = 60 * time.Second

// Session is an authenticated player for one account.
//
// Sessions are never mutated after construction. Binding a device returns a copy.
type Session struct {
	UserID      string // store key: the leader id or the follower's Spotify id
	DisplayName string
	Credential  string // refresh token the session was built from
	Token       *oauth2.Token
	Player      services.Player
	Device      *models.Device
}

// Fresh reports whether the session was built from credential and its token has at least a minute left at now.
// A token without an expiry never goes stale.
func (s *Session) Fresh(credential string, now time.Time) bool {
	if s == nil || s.Player == nil || s.Token == nil || s.Credential != credential {
		return false
	}
	if s.Token.Expiry.IsZero() {
		return true
	}
	return s.Token.Expiry.Sub(now) >= minTokenValidity
}

// WithDevice returns a copy of the session bound to d.
func (s *Session) WithDevice(d models.Device) *Session {
	c := *s
	c.Device = &d
	return &c
}

// DeviceID is the bound device id, or "" to target the active device.
func (s *Session) DeviceID() string {
	if s == nil || s.Device == nil {
		return ""
	}
	return s.Device.ID
}

// SessionManager builds sessions from stored credentials and reuses them while they stay fresh.
type SessionManager struct {
	remote services.Remote
	now    func() time.Time
	logger *log.Logger
}

// NewSessionManager creates a [SessionManager]. now defaults to [time.Now].
func NewSessionManager(remote services.Remote, now func() time.Time, logger *log.Logger) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{remote: remote, now: now, logger: logger}
}

// Resolve returns existing when it is still fresh for credential; otherwise it refreshes the credential and builds a
// new session, querying the account identity.
//
// A rejected refresh wraps [shared.ErrCredentialInvalid]; any other failure wraps [shared.ErrSessionUnavailable].
func (m *SessionManager) Resolve(ctx context.Context, userID, credential string, existing *Session) (*Session, error) {
	if existing.Fresh(credential, m.now()) {
		return existing, nil
	}

	token, err := m.remote.Refresh(ctx, credential)
	if err != nil {
		if errors.Is(err, shared.ErrCredentialInvalid) {
			return nil, fmt.Errorf("refresh %s: %w", userID, err)
		}
		return nil, fmt.Errorf("%w: refresh %s: %w", shared.ErrSessionUnavailable, userID, err)
	}

	player, err := m.remote.Connect(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", shared.ErrSessionUnavailable, userID, err)
	}

	user, err := player.UserProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: identify %s: %w", shared.ErrSessionUnavailable, userID, err)
	}

	m.logger.Debug("session built", "user", userID, "name", user.Name(), "expires", token.Expiry)

	return &Session{
		UserID:      userID,
		DisplayName: user.Name(),
		Credential:  credential,
		Token:       token,
		Player:      player,
	}, nil
}
