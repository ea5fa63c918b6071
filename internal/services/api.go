// Client for a running dashx server's /api/spotify routes
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
)

// APIService calls the dashx proxy routes the same way the browser dashboard does.
//
// Client credentials are never sent, so the server resolves them from its own configuration.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a client for the dashx server at baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8787"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports whether the status is 2xx.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err converts a non-2xx response into an error carrying the server's message.
func (r *APIResponse) Err() error {
	if r.OK() {
		return nil
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	_ = json.Unmarshal(r.Body, &body)

	switch {
	case r.StatusCode == http.StatusNotFound && body.Error == "no_active_device":
		return fmt.Errorf("%w: %s", shared.ErrNoActiveDevice, body.Message)
	case r.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrMissingRefreshToken, body.Error)
	case body.Error != "":
		return fmt.Errorf("%w: status %d: %s %s", shared.ErrAPIRequest, r.StatusCode, body.Error, body.Details)
	default:
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, r.StatusCode)
	}
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return a.do(req)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a *APIService) do(req *http.Request) (*APIResponse, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	var jsonData any
	if err := json.Unmarshal(body, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// postSpotify sends payload to /api/spotify/<route> and decodes a successful response into out.
func (a *APIService) postSpotify(ctx context.Context, route string, payload, out any) error {
	resp, err := a.Post(ctx, "/api/spotify/"+route, JSONBody(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", route, err)
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	Action       string `json:"action,omitempty"`
}

// Token calls the token exchange route.
func (a *APIService) Token(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var token TokenResponse
	if err := a.postSpotify(ctx, "token", refreshRequest{RefreshToken: refreshToken}, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Control calls the playback control route.
func (a *APIService) Control(ctx context.Context, action Action, refreshToken string) (*ControlResult, error) {
	var result ControlResult
	if err := a.postSpotify(ctx, "control", refreshRequest{RefreshToken: refreshToken, Action: string(action)}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PlayerState calls the player state route.
func (a *APIService) PlayerState(ctx context.Context, refreshToken string) (*models.PlayerState, error) {
	var state models.PlayerState
	if err := a.postSpotify(ctx, "player-state", refreshRequest{RefreshToken: refreshToken}, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// RecentTracks calls the recent tracks route and returns the raw payload.
func (a *APIService) RecentTracks(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := a.postSpotify(ctx, "recent-tracks", refreshRequest{RefreshToken: refreshToken}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// UserClient binds a refresh token to an [APIService] so callers can issue commands without
// carrying the token around.
type UserClient struct {
	api *APIService

	mu           sync.Mutex
	refreshToken string
}

// ForUser returns a [UserClient] for refreshToken.
func (a *APIService) ForUser(refreshToken string) *UserClient {
	return &UserClient{api: a, refreshToken: refreshToken}
}

// SetRefreshToken replaces the bound token after the authorization server rotates it.
func (u *UserClient) SetRefreshToken(refreshToken string) {
	u.mu.Lock()
	u.refreshToken = refreshToken
	u.mu.Unlock()
}

func (u *UserClient) token() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.refreshToken
}

// Control calls the playback control route for the bound user.
func (u *UserClient) Control(ctx context.Context, action Action) (*ControlResult, error) {
	return u.api.Control(ctx, action, u.token())
}

// RecentTracks calls the recent tracks route for the bound user and decodes the payload.
func (u *UserClient) RecentTracks(ctx context.Context) ([]models.RecentTrack, error) {
	raw, err := u.api.RecentTracks(ctx, u.token())
	if err != nil {
		return nil, err
	}
	return DecodeRecentTracks(raw)
}

// Exchange calls the token route; it has the shape [RefreshTokenSource] expects.
func (u *UserClient) Exchange(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return u.api.Token(ctx, refreshToken)
}
