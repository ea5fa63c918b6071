package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/services"
	"github.com/desertthunder/dashx/internal/shared"
)

// SpotifyAPI is the subset of [services.SpotifyService] the routes need.
type SpotifyAPI interface {
	Exchange(ctx context.Context, refreshToken string, creds services.Credentials) (*services.TokenResponse, error)
	Control(ctx context.Context, action services.Action, refreshToken string, creds services.Credentials) (*services.ControlResult, error)
	PlayerState(ctx context.Context, refreshToken string, creds services.Credentials) (*models.PlayerState, error)
	RecentTracks(ctx context.Context, refreshToken string, creds services.Credentials, limit int) (json.RawMessage, error)
}

// spotifyRequest is the body accepted by every /api/spotify route.
type spotifyRequest struct {
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Action       string `json:"action,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// SpotifyHandler serves the token, control, player state and recent tracks routes.
//
// Credentials come from the request body when present and fall back to the configured pair field
// by field. Every route is POST so refresh tokens never appear in URLs or access logs.
type SpotifyHandler struct {
	api      SpotifyAPI
	fallback services.Credentials
	logger   *log.Logger
	mux      *http.ServeMux
}

// NewSpotifyHandler creates the handler. fallback is usually the configured client credentials.
func NewSpotifyHandler(api SpotifyAPI, fallback services.Credentials, logger *log.Logger) *SpotifyHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	h := &SpotifyHandler{api: api, fallback: fallback, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/spotify/token", h.token)
	h.mux.HandleFunc("POST /api/spotify/control", h.control)
	h.mux.HandleFunc("POST /api/spotify/player-state", h.playerState)
	h.mux.HandleFunc("POST /api/spotify/recent-tracks", h.recentTracks)
	return h
}

// Routes returns the patterns this handler serves.
func (h *SpotifyHandler) Routes() []string {
	return []string{
		"POST /api/spotify/token",
		"POST /api/spotify/control",
		"POST /api/spotify/player-state",
		"POST /api/spotify/recent-tracks",
	}
}

func (h *SpotifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// readRequest decodes the body. It writes a 400 and returns false on malformed JSON.
func (h *SpotifyHandler) readRequest(w http.ResponseWriter, r *http.Request) (spotifyRequest, bool) {
	var req spotifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return req, false
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	return req, true
}

func (h *SpotifyHandler) credentials(w http.ResponseWriter, req spotifyRequest) (services.Credentials, bool) {
	creds, err := services.ResolveCredentials(req.ClientID, req.ClientSecret, h.fallback)
	if err != nil {
		h.logger.Error("spotify client credentials are not configured")
		respondError(w, http.StatusInternalServerError, "Spotify client credentials not configured", err.Error())
		return creds, false
	}
	return creds, true
}

func (h *SpotifyHandler) token(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "Missing refresh token", "")
		return
	}
	creds, ok := h.credentials(w, req)
	if !ok {
		return
	}

	token, err := h.api.Exchange(r.Context(), req.RefreshToken, creds)
	if err != nil {
		h.writeServiceError(w, r, "Failed to refresh token", err)
		return
	}
	respondJSON(w, http.StatusOK, token)
}

func (h *SpotifyHandler) control(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	action, err := services.ParseAction(req.Action)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid action", fmt.Sprintf("action must be one of %s", actionList()))
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusUnauthorized, "Missing refresh token", "")
		return
	}
	creds, ok := h.credentials(w, req)
	if !ok {
		return
	}

	result, err := h.api.Control(r.Context(), action, req.RefreshToken, creds)
	if err != nil {
		h.writeServiceError(w, r, fmt.Sprintf("Failed to %s", action), err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *SpotifyHandler) playerState(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "Missing refresh token", "")
		return
	}
	creds, ok := h.credentials(w, req)
	if !ok {
		return
	}

	state, err := h.api.PlayerState(r.Context(), req.RefreshToken, creds)
	if err != nil {
		h.writeServiceError(w, r, "Failed to fetch player state", err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *SpotifyHandler) recentTracks(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "Missing refresh token", "")
		return
	}
	creds, ok := h.credentials(w, req)
	if !ok {
		return
	}

	raw, err := h.api.RecentTracks(r.Context(), req.RefreshToken, creds, req.Limit)
	if err != nil {
		h.writeServiceError(w, r, "Failed to fetch recent tracks", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// writeServiceError maps service errors to responses. No active device is a 404 with its own
// shape; everything else is a 500 with the upstream status, when known, in the message.
func (h *SpotifyHandler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestID(r.Context()))

	switch {
	case errors.Is(err, shared.ErrNoActiveDevice):
		respondJSON(w, http.StatusNotFound, errorBody{
			Error:   "no_active_device",
			Message: "No active Spotify device found. Start playback on a device and try again.",
		})
	case errors.Is(err, shared.ErrMissingCredentials):
		respondError(w, http.StatusInternalServerError, "Spotify client credentials not configured", err.Error())
	default:
		if status := upstreamStatus(err); status != 0 {
			msg = fmt.Sprintf("%s (Spotify status %d)", msg, status)
		}
		respondError(w, http.StatusInternalServerError, msg, errorDetails(err))
	}
}

func upstreamStatus(err error) int {
	if status := services.UpstreamStatus(err); status != 0 {
		return status
	}
	var refreshErr *shared.TokenRefreshError
	if errors.As(err, &refreshErr) {
		return refreshErr.StatusCode
	}
	return 0
}

// errorDetails prefers the upstream body, which says why Spotify refused.
func errorDetails(err error) string {
	var upstream *services.UpstreamError
	if errors.As(err, &upstream) && upstream.Body != "" {
		return upstream.Body
	}
	var refreshErr *shared.TokenRefreshError
	if errors.As(err, &refreshErr) && refreshErr.Body != "" {
		return refreshErr.Body
	}
	return err.Error()
}

func actionList() string {
	names := make([]string, 0, len(services.Actions))
	for _, a := range services.Actions {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}
