package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/zmb3/spotify"
)

// RecentTracks returns the raw "recently played" payload. limit is clamped to 1..50, 0 selects 20.
func (s *SpotifyService) RecentTracks(ctx context.Context, refreshToken string, creds Credentials, limit int) (json.RawMessage, error) {
	if refreshToken == "" {
		return nil, shared.ErrMissingRefreshToken
	}
	if !creds.Valid() {
		return nil, shared.ErrMissingCredentials
	}

	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 50)

	res, err := s.CallAPI(ctx, fmt.Sprintf("/me/player/recently-played?limit=%d", limit), refreshToken, creds, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	if !res.OK() {
		return nil, &UpstreamError{StatusCode: res.Response.StatusCode, Body: readBody(res.Response)}
	}

	var raw json.RawMessage
	if err := json.NewDecoder(res.Response.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode recently played: %w", err)
	}
	return raw, nil
}

// DecodeRecentTracks converts a raw recently played payload into [models.RecentTrack] entries.
func DecodeRecentTracks(raw json.RawMessage) ([]models.RecentTrack, error) {
	var payload struct {
		Items []spotify.RecentlyPlayedItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode recently played: %w", err)
	}

	tracks := make([]models.RecentTrack, 0, len(payload.Items))
	for _, item := range payload.Items {
		tracks = append(tracks, models.RecentTrack{
			Track:    simpleTrackFrom(item.Track),
			PlayedAt: item.PlayedAt,
		})
	}
	return tracks, nil
}
