package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing client credentials")

	// Authentication errors
	ErrMissingRefreshToken = fmt.Errorf("missing refresh token")
	ErrRefreshFailed       = fmt.Errorf("token refresh failed")
	ErrAuthFailed          = fmt.Errorf("authentication failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrFetchFailed        = fmt.Errorf("failed to fetch player state")
	ErrNoActiveDevice     = fmt.Errorf("no active device")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrCacheMiss          = fmt.Errorf("cache miss")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidAction   = fmt.Errorf("invalid action")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// TokenRefreshError is returned when the authorization server rejects a refresh grant.
//
// It unwraps to [ErrRefreshFailed].
type TokenRefreshError struct {
	StatusCode int
	Body       string
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrRefreshFailed, e.StatusCode, e.Body)
}

func (e *TokenRefreshError) Unwrap() error {
	return ErrRefreshFailed
}

// Player session errors
var (
	ErrNotConnected       = fmt.Errorf("player not connected")
	ErrSessionClosed      = fmt.Errorf("player session closed")
	ErrTransferInProgress = fmt.Errorf("playback transfer already in progress")
)
