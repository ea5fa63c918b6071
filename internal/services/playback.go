package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/zmb3/spotify"
)

// Action is a playback command accepted by [SpotifyService.Control].
type Action string

const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionShuffle  Action = "shuffle"
	ActionRepeat   Action = "repeat"
)

// Actions lists every valid [Action].
var Actions = []Action{ActionPlay, ActionPause, ActionNext, ActionPrevious, ActionShuffle, ActionRepeat}

// ParseAction validates s. Empty and unknown values return [shared.ErrInvalidAction].
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("%w: action is required", shared.ErrInvalidAction)
	}
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", shared.ErrInvalidAction, s)
}

// ControlResult is returned for a successful command.
//
// State is the shuffle flag (bool) or repeat mode (string) that was written, nil otherwise.
type ControlResult struct {
	Success bool   `json:"success"`
	Action  Action `json:"action"`
	State   any    `json:"state,omitempty"`
}

// NextRepeatState advances off → track → context → off. Unknown modes map to track.
func NextRepeatState(current string) string {
	switch current {
	case models.RepeatOff:
		return models.RepeatTrack
	case models.RepeatTrack:
		return models.RepeatContext
	case models.RepeatContext:
		return models.RepeatOff
	default:
		return models.RepeatTrack
	}
}

// Control performs one playback command for the owner of refreshToken.
//
// play/pause/next/previous issue exactly one mutating call. shuffle and repeat first read the
// current player state and write the next value; when that read fails shuffle is enabled and
// repeat is set to track. The read and write are not atomic: a change made elsewhere in between
// is overwritten.
//
// A 404 from the mutating call returns [shared.ErrNoActiveDevice]; any other non-2xx an [*UpstreamError].
func (s *SpotifyService) Control(ctx context.Context, action Action, refreshToken string, creds Credentials) (*ControlResult, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, shared.ErrMissingRefreshToken
	}
	if !creds.Valid() {
		return nil, shared.ErrMissingCredentials
	}

	result := &ControlResult{Success: true, Action: action}

	var (
		method   string
		endpoint string
	)

	switch action {
	case ActionPlay:
		method, endpoint = http.MethodPut, "/me/player/play"
	case ActionPause:
		method, endpoint = http.MethodPut, "/me/player/pause"
	case ActionNext:
		method, endpoint = http.MethodPost, "/me/player/next"
	case ActionPrevious:
		method, endpoint = http.MethodPost, "/me/player/previous"
	case ActionShuffle:
		next := true
		current, err := s.currentPlayer(ctx, refreshToken, creds)
		if err != nil {
			if errors.Is(err, shared.ErrRefreshFailed) {
				return nil, err
			}
			s.logger.Warn("shuffle state unavailable, enabling", "error", err)
		} else {
			next = !current.ShuffleState
		}
		result.State = next
		method, endpoint = http.MethodPut, fmt.Sprintf("/me/player/shuffle?state=%t", next)
	case ActionRepeat:
		next := models.RepeatTrack
		current, err := s.currentPlayer(ctx, refreshToken, creds)
		if err != nil {
			if errors.Is(err, shared.ErrRefreshFailed) {
				return nil, err
			}
			s.logger.Warn("repeat state unavailable, using track", "error", err)
		} else {
			next = NextRepeatState(current.RepeatState)
		}
		result.State = next
		method, endpoint = http.MethodPut, "/me/player/repeat?state="+url.QueryEscape(next)
	}

	if err := s.command(ctx, method, endpoint, refreshToken, creds, nil); err != nil {
		return nil, err
	}

	return result, nil
}

// command issues a mutating call and maps its status.
func (s *SpotifyService) command(ctx context.Context, method, endpoint, refreshToken string, creds Credentials, body []byte) error {
	res, err := s.CallAPI(ctx, endpoint, refreshToken, creds, &RequestOptions{Method: method, Body: body})
	if err != nil {
		return err
	}
	defer res.Close()

	switch {
	case res.OK():
		return nil
	case res.Response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrNoActiveDevice, readBody(res.Response))
	default:
		return &UpstreamError{StatusCode: res.Response.StatusCode, Body: readBody(res.Response)}
	}
}

// currentPlayer reads /me/player. No content counts as a failed read.
func (s *SpotifyService) currentPlayer(ctx context.Context, refreshToken string, creds Credentials) (*spotify.PlayerState, error) {
	res, err := s.CallAPI(ctx, "/me/player", refreshToken, creds, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	if res.Response.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: res.Response.StatusCode, Body: readBody(res.Response)}
	}

	var state spotify.PlayerState
	if err := json.NewDecoder(res.Response.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode player state: %w", err)
	}
	return &state, nil
}

// TransferPlayback makes deviceID the active device, optionally starting playback on it.
func (s *SpotifyService) TransferPlayback(ctx context.Context, refreshToken string, creds Credentials, deviceID string, play bool) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id is required", shared.ErrInvalidArgument)
	}
	body := JSONBody(map[string]any{"device_ids": []string{deviceID}, "play": play})
	return s.command(ctx, http.MethodPut, "/me/player", refreshToken, creds, body)
}
