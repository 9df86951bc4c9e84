// package services defines the Spotify session client used by the sync engine and web server
package services

import (
	"context"

	"github.com/desertthunder/tandem/internal/models"
	"golang.org/x/oauth2"
)

// Remote turns stored refresh tokens into live player sessions.
type Remote interface {
	// Refresh exchanges a refresh token for a fresh access token.
	// A rejected refresh token yields [shared.ErrCredentialInvalid].
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Connect builds a [Player] that authenticates with token.
	Connect(ctx context.Context, token *oauth2.Token) (Player, error)
}

// Player is the per-account view of the Spotify player API.
type Player interface {
	// UserProfile returns the account behind the session.
	UserProfile(ctx context.Context) (*SpotifyUser, error)

	// CurrentlyPlaying returns the current playback, or nil when nothing is playing.
	CurrentlyPlaying(ctx context.Context) (*models.Playback, error)

	// Devices lists the account's devices in API order.
	Devices(ctx context.Context) ([]models.Device, error)

	// Transfer moves playback to deviceID without starting it.
	Transfer(ctx context.Context, deviceID string) error

	// Play starts trackID from the beginning. An empty deviceID targets the active device.
	Play(ctx context.Context, trackID, deviceID string) error

	// Pause pauses playback. Pausing an already paused player succeeds.
	Pause(ctx context.Context) error

	// Resume continues the current item.
	Resume(ctx context.Context) error

	// Seek moves the playhead of the current item.
	Seek(ctx context.Context, positionMS int) error
}

// OAuthService extends [Remote] with the authorization code flow used by the web server.
type OAuthService interface {
	Remote

	// AuthURL returns the authorization URL carrying state.
	AuthURL(state string) string

	// Exchange trades an authorization code for a token that includes a refresh token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}
