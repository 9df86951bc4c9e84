package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed        = fmt.Errorf("authentication failed")
	ErrTokenExpired      = fmt.Errorf("access token expired")
	ErrRefreshFailed     = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken    = fmt.Errorf("no refresh token available")
	ErrCredentialInvalid = fmt.Errorf("credential invalid")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// Playback errors
	ErrSessionUnavailable = fmt.Errorf("session unavailable")
	ErrDeviceUnavailable  = fmt.Errorf("device unavailable")
	ErrRemoteCall         = fmt.Errorf("remote call failed")
	ErrRateLimited        = fmt.Errorf("rate limited")

	// Store errors
	ErrCredentialNotFound = fmt.Errorf("credential not found")
	ErrSnapshotNotFound   = fmt.Errorf("snapshot not found")
	ErrInvalidKey         = fmt.Errorf("invalid key")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
