package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/zmb3/spotify"
)

// PlayerState returns the normalized current playback for the owner of refreshToken.
//
// When nothing is playing anywhere (204) the idle state is returned with the device list from a
// second call, so clients can offer device selection. A non-OK status returns [shared.ErrFetchFailed].
func (s *SpotifyService) PlayerState(ctx context.Context, refreshToken string, creds Credentials) (*models.PlayerState, error) {
	if refreshToken == "" {
		return nil, shared.ErrMissingRefreshToken
	}
	if !creds.Valid() {
		return nil, shared.ErrMissingCredentials
	}

	res, err := s.CallAPI(ctx, "/me/player", refreshToken, creds, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	switch {
	case res.Response.StatusCode == http.StatusNoContent:
		devices, err := s.Devices(ctx, refreshToken, creds)
		if err != nil {
			s.logger.Warn("device list unavailable for idle player", "error", err)
			devices = []models.Device{}
		}
		return models.IdlePlayerState(devices), nil
	case !res.OK():
		upstream := &UpstreamError{StatusCode: res.Response.StatusCode, Body: readBody(res.Response)}
		return nil, fmt.Errorf("%w: %w", shared.ErrFetchFailed, upstream)
	}

	var raw spotify.PlayerState
	if err := json.NewDecoder(res.Response.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", shared.ErrFetchFailed, err)
	}

	return NormalizePlayerState(&raw), nil
}

// Devices lists the user's available Spotify Connect devices.
func (s *SpotifyService) Devices(ctx context.Context, refreshToken string, creds Credentials) ([]models.Device, error) {
	res, err := s.CallAPI(ctx, "/me/player/devices", refreshToken, creds, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	if !res.OK() {
		return nil, &UpstreamError{StatusCode: res.Response.StatusCode, Body: readBody(res.Response)}
	}

	return decodeDevices(res.Response.Body)
}

func decodeDevices(r io.Reader) ([]models.Device, error) {
	var payload struct {
		Devices []spotify.PlayerDevice `json:"devices"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}

	devices := make([]models.Device, 0, len(payload.Devices))
	for _, d := range payload.Devices {
		devices = append(devices, deviceFrom(d))
	}
	return devices, nil
}

// NormalizePlayerState maps a Spotify playback payload to [models.PlayerState], filling defaults.
//
// Devices holds the active device when there is one.
func NormalizePlayerState(raw *spotify.PlayerState) *models.PlayerState {
	state := models.IdlePlayerState(nil)
	if raw == nil {
		return state
	}

	state.IsPlaying = raw.Playing
	state.PositionMs = max(raw.Progress, 0)
	state.ShuffleState = raw.ShuffleState
	state.Timestamp = raw.Timestamp
	if raw.RepeatState != "" {
		state.RepeatState = raw.RepeatState
	}

	if raw.Item != nil {
		track := trackFrom(raw.Item)
		state.CurrentTrack = &track
		state.DurationMs = track.DurationMs
	}

	if raw.Device.ID != "" {
		device := deviceFrom(raw.Device)
		state.ActiveDevice = &device
		state.Devices = append(state.Devices, device)
	}

	return state
}

func trackFrom(t *spotify.FullTrack) models.Track {
	track := simpleTrackFrom(t.SimpleTrack)
	track.Album = t.Album.Name
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

func simpleTrackFrom(t spotify.SimpleTrack) models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return models.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		URI:         string(t.URI),
		Artists:     artists,
		ExternalURL: t.ExternalURLs["spotify"],
		DurationMs:  t.Duration,
	}
}

func deviceFrom(d spotify.PlayerDevice) models.Device {
	return models.Device{
		ID:            string(d.ID),
		Name:          d.Name,
		Type:          d.Type,
		IsActive:      d.Active,
		IsRestricted:  d.Restricted,
		VolumePercent: d.Volume,
	}
}
