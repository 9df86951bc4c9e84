// Package services implements the Spotify Web API client behind the [Remote], [Player] and [OAuthService] interfaces.
//
// # Sessions
//
// [SpotifyService] holds the OAuth2 application config. [SpotifyService.Refresh] turns a stored refresh token into an
// access token and [SpotifyService.Connect] wraps that token in a [SpotifySession], which implements [Player].
// Sessions never refresh on their own; the sync engine decides when a session is stale and rebuilds it.
//
// # Requests
//
// Every API call goes through one request path that:
//   - waits on a shared [rate.Limiter] so concurrent fan-outs stay inside Spotify's limits
//   - applies the configured per-call timeout
//   - maps status codes onto sentinel errors from the shared package
//
// # Error Mapping
//
//   - 401 : [shared.ErrTokenExpired]
//   - 404 : [shared.ErrDeviceUnavailable] (no active device)
//   - 429 : [shared.ErrRateLimited]
//   - any other non-2xx : [shared.ErrRemoteCall]
//
// All of them also wrap [shared.ErrRemoteCall], so callers that only care whether a call failed can test for that.
// A 403 from the pause endpoint means the player is already paused and is reported as success.
package services
