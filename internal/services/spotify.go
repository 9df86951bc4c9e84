// Spotify API implementation of [Remote] and [Player]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultRedirectURI = "http://127.0.0.1:3000/callback"
)

// Scopes requested during authorization. streaming is needed by the browser player.
var Scopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"streaming",
	"user-read-email",
	"user-read-private",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// Name returns the display name, falling back to the user id.
func (u *SpotifyUser) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyDevice represents a Spotify Connect device.
type SpotifyDevice struct {
	ID            *string `json:"id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	IsActive      bool    `json:"is_active"`
	VolumePercent *int    `json:"volume_percent"`
}

// SpotifyPlaybackState represents the response of GET /me/player.
type SpotifyPlaybackState struct {
	Device               *SpotifyDevice `json:"device"`
	ProgressMS           int            `json:"progress_ms"`
	IsPlaying            bool           `json:"is_playing"`
	CurrentlyPlayingType string         `json:"currently_playing_type"`
	Item                 *SpotifyTrack  `json:"item"`
}

// Model converts the device into its domain form.
func (d SpotifyDevice) Model() models.Device {
	dev := models.Device{Name: d.Name, Type: d.Type, IsActive: d.IsActive}
	if d.ID != nil {
		dev.ID = *d.ID
	}
	if d.VolumePercent != nil {
		dev.VolumePercent = *d.VolumePercent
	}
	return dev
}

// Model converts the track into display metadata.
func (t SpotifyTrack) Model() *models.TrackInfo {
	info := &models.TrackInfo{
		ID:         t.ID,
		Name:       t.Name,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		URI:        t.URI,
	}
	for _, a := range t.Artists {
		info.Artists = append(info.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		info.ArtURL = t.Album.Images[0].URL
	}
	return info
}

// Model converts the playback state. Non-track items (episodes, ads) yield a nil Track.
func (p SpotifyPlaybackState) Model() *models.Playback {
	pb := &models.Playback{IsPlaying: p.IsPlaying, ProgressMS: p.ProgressMS}
	if p.Item != nil && p.Item.ID != "" && (p.Item.Type == "" || p.Item.Type == "track") {
		pb.Track = p.Item.Model()
	}
	if p.Device != nil {
		d := p.Device.Model()
		pb.Device = &d
	}
	return pb
}

// SpotifyOpts configures a [SpotifyService].
type SpotifyOpts struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// HTTPClient defaults to [http.DefaultClient].
	HTTPClient *http.Client
	// BaseURL and TokenURL override the Spotify endpoints, mostly for tests.
	BaseURL  string
	AuthURL  string
	TokenURL string
	// RateLimit is the request budget per second shared by all sessions. Zero disables limiting.
	RateLimit float64
	// CallTimeout bounds every API call. Zero disables the timeout.
	CallTimeout time.Duration
}

// SpotifyService implements [OAuthService] for the Spotify Web API.
type SpotifyService struct {
	config      *oauth2.Config
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(opts SpotifyOpts) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	if opts.RedirectURI == "" {
		opts.RedirectURI = defaultRedirectURI
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = spotifyAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}

	config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   opts.AuthURL,
			TokenURL:  opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &SpotifyService{
		config:      config,
		httpClient:  opts.HTTPClient,
		baseURL:     opts.BaseURL,
		limiter:     limiter,
		callTimeout: opts.CallTimeout,
	}, nil
}

// NewSpotifyServiceFromConfig builds a service from the [shared.Config] sections.
func NewSpotifyServiceFromConfig(cfg *shared.Config) (*SpotifyService, error) {
	sp := cfg.Credentials.Spotify
	return NewSpotifyService(SpotifyOpts{
		ClientID:     sp.ClientID,
		ClientSecret: sp.ClientSecret,
		RedirectURI:  sp.RedirectURI,
		RateLimit:    cfg.Sync.RateLimit,
		CallTimeout:  cfg.Sync.CallTimeout.Duration,
	})
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("show_dialog", "true"))
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Exchange trades an authorization code for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	if token.RefreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	return token, nil
}

// Refresh exchanges a refresh token for a fresh access token.
//
// The returned token carries the refresh token to keep using, which is the input unless Spotify rotated it.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrCredentialInvalid, shared.ErrNoRefreshToken)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	src := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil &&
			(rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %w", shared.ErrCredentialInvalid, err)
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// Connect wraps token in a [SpotifySession].
func (s *SpotifyService) Connect(_ context.Context, token *oauth2.Token) (Player, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", shared.ErrSessionUnavailable)
	}
	return &SpotifySession{svc: s, token: token}, nil
}

func (s *SpotifyService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}

// doRequest performs an authenticated HTTP request to the Spotify API and returns the response status.
//
// A 204 response leaves result untouched.
func (s *SpotifyService) doRequest(ctx context.Context, token *oauth2.Token, method, endpoint string, body, result any) (int, error) {
	if token == nil {
		return 0, shared.ErrTokenExpired
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("%w: %w: %v", shared.ErrRemoteCall, shared.ErrRateLimited, err)
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %w: %s %s", shared.ErrRemoteCall, shared.ErrTimeout, method, endpoint)
		}
		return 0, fmt.Errorf("%w: %v", shared.ErrRemoteCall, err)
	}
	defer resp.Body.Close()

	switch code := resp.StatusCode; {
	case code == http.StatusNoContent:
		return code, nil
	case code == http.StatusUnauthorized:
		return code, fmt.Errorf("%w: %w: %s %s", shared.ErrRemoteCall, shared.ErrTokenExpired, method, endpoint)
	case code == http.StatusNotFound:
		return code, fmt.Errorf("%w: %w: %s %s", shared.ErrRemoteCall, shared.ErrDeviceUnavailable, method, endpoint)
	case code == http.StatusTooManyRequests:
		return code, fmt.Errorf("%w: %w: retry after %s", shared.ErrRemoteCall, shared.ErrRateLimited, resp.Header.Get("Retry-After"))
	case code < 200 || code >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return code, fmt.Errorf("%w: spotify API error: status %d: %s", shared.ErrRemoteCall, code, bytes.TrimSpace(msg))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("%w: failed to decode response: %v", shared.ErrRemoteCall, err)
		}
	}

	return resp.StatusCode, nil
}

// SpotifySession is a [Player] bound to one access token.
type SpotifySession struct {
	svc   *SpotifyService
	token *oauth2.Token
}

// Token returns the access token the session authenticates with.
func (p *SpotifySession) Token() *oauth2.Token {
	return p.token
}

// UserProfile retrieves the current authenticated user's profile.
func (p *SpotifySession) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if _, err := p.svc.doRequest(ctx, p.token, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile without id", shared.ErrRemoteCall)
	}
	return &user, nil
}

// CurrentlyPlaying returns the playback state, or nil when the player is idle.
func (p *SpotifySession) CurrentlyPlaying(ctx context.Context) (*models.Playback, error) {
	var state SpotifyPlaybackState
	status, err := p.svc.doRequest(ctx, p.token, http.MethodGet, "/me/player", nil, &state)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return state.Model(), nil
}

// Devices lists the account's devices in API order.
func (p *SpotifySession) Devices(ctx context.Context) ([]models.Device, error) {
	var response struct {
		Devices []SpotifyDevice `json:"devices"`
	}
	if _, err := p.svc.doRequest(ctx, p.token, http.MethodGet, "/me/player/devices", nil, &response); err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(response.Devices))
	for _, d := range response.Devices {
		devices = append(devices, d.Model())
	}
	return devices, nil
}

// Transfer moves playback to deviceID without starting it.
func (p *SpotifySession) Transfer(ctx context.Context, deviceID string) error {
	body := map[string]any{"device_ids": []string{deviceID}, "play": false}
	_, err := p.svc.doRequest(ctx, p.token, http.MethodPut, "/me/player", body, nil)
	return err
}

// Play starts trackID from the beginning on deviceID, or the active device when deviceID is empty.
func (p *SpotifySession) Play(ctx context.Context, trackID, deviceID string) error {
	endpoint := "/me/player/play"
	if deviceID != "" {
		endpoint += "?device_id=" + url.QueryEscape(deviceID)
	}
	body := map[string]any{"uris": []string{models.TrackURI(trackID)}}
	_, err := p.svc.doRequest(ctx, p.token, http.MethodPut, endpoint, body, nil)
	return err
}

// Pause pauses playback. A 403 means the player is already paused.
func (p *SpotifySession) Pause(ctx context.Context) error {
	status, err := p.svc.doRequest(ctx, p.token, http.MethodPut, "/me/player/pause", nil, nil)
	if status == http.StatusForbidden {
		return nil
	}
	return err
}

// Resume continues the current item on the active device.
func (p *SpotifySession) Resume(ctx context.Context) error {
	_, err := p.svc.doRequest(ctx, p.token, http.MethodPut, "/me/player/play", nil, nil)
	return err
}

// Seek moves the playhead of the current item.
func (p *SpotifySession) Seek(ctx context.Context, positionMS int) error {
	endpoint := "/me/player/seek?position_ms=" + strconv.Itoa(positionMS)
	_, err := p.svc.doRequest(ctx, p.token, http.MethodPut, endpoint, nil, nil)
	return err
}
