// package services talks to the Spotify accounts service and Web API on behalf of dashboard clients
package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashx/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// tokenMargin is how long a cached access token must remain valid to be reused.
const tokenMargin = time.Minute

// Credentials identify the Spotify application performing the refresh grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ResolveCredentials picks each field from the request first, then from fallback.
//
// Returns [shared.ErrMissingCredentials] when either field is still empty.
func ResolveCredentials(clientID, clientSecret string, fallback Credentials) (Credentials, error) {
	creds := Credentials{ClientID: strings.TrimSpace(clientID), ClientSecret: strings.TrimSpace(clientSecret)}
	if creds.ClientID == "" {
		creds.ClientID = fallback.ClientID
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = fallback.ClientSecret
	}
	if !creds.Valid() {
		return Credentials{}, shared.ErrMissingCredentials
	}
	return creds, nil
}

// UpstreamError carries a non-OK status from the Spotify Web API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v: spotify responded with status %d", shared.ErrAPIRequest, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return shared.ErrAPIRequest
}

// UpstreamStatus returns the Spotify status carried by err, or 0.
func UpstreamStatus(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

// SpotifyService exchanges refresh tokens and proxies Spotify Web API calls.
//
// It holds no per-user state. Every proxied call performs a fresh token exchange unless a [TokenCache] is configured.
type SpotifyService struct {
	tokenURL   string
	baseURL    string
	httpClient *http.Client
	cache      TokenCache
	metrics    *Metrics
	logger     *log.Logger
	now        func() time.Time
}

// SpotifyOpts configures a [SpotifyService]. Zero values select the public Spotify endpoints,
// [http.DefaultClient], no token cache and no metrics.
type SpotifyOpts struct {
	TokenURL   string
	BaseURL    string
	HTTPClient *http.Client
	Cache      TokenCache
	Metrics    *Metrics
	Logger     *log.Logger
}

// NewSpotifyService creates a [SpotifyService] from opts.
func NewSpotifyService(opts SpotifyOpts) *SpotifyService {
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &SpotifyService{
		tokenURL:   opts.TokenURL,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// BaseURL returns the Web API base the service calls.
func (s *SpotifyService) BaseURL() string {
	return s.baseURL
}

// WithCache returns a copy of s that uses cache and records to metrics.
func (s *SpotifyService) WithCache(cache TokenCache, metrics *Metrics) *SpotifyService {
	c := *s
	c.cache = cache
	c.metrics = metrics
	return &c
}
