package services

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
)

const devicesJSON = `{"devices":[
	{"id":"dev-1","is_active":false,"is_restricted":false,"name":"Desk","type":"Computer","volume_percent":40},
	{"id":"dev-2","is_active":false,"is_restricted":true,"name":"Kitchen","type":"Speaker","volume_percent":70}
]}`

func TestPlayerState(t *testing.T) {
	t.Run("Playing", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.Respond(http.MethodGet, "/me/player", http.StatusOK, playerJSON(true, "context"))

		state, err := svc.PlayerState(context.Background(), "refresh-1", testCreds)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if !state.IsPlaying || state.PositionMs != 42000 || state.DurationMs != 180000 {
			t.Errorf("unexpected playback fields %+v", state)
		}
		if !state.ShuffleState || state.RepeatState != models.RepeatContext {
			t.Errorf("unexpected modes shuffle=%v repeat=%s", state.ShuffleState, state.RepeatState)
		}

		track := state.CurrentTrack
		if track == nil {
			t.Fatal("expected current track")
		}
		if track.ID != "track-1" || track.Album != "Album" || track.ImageURL != "https://i.scdn.co/image/1" {
			t.Errorf("unexpected track %+v", track)
		}
		if !slices.Equal(track.Artists, []string{"A", "B"}) {
			t.Errorf("unexpected artists %v", track.Artists)
		}
		if track.ExternalURL != "https://open.spotify.com/track/track-1" {
			t.Errorf("unexpected external url %s", track.ExternalURL)
		}

		if state.ActiveDevice == nil || state.ActiveDevice.Name != "Desk" || state.ActiveDevice.VolumePercent != 55 {
			t.Errorf("unexpected active device %+v", state.ActiveDevice)
		}
		if len(state.Devices) != 1 || state.Devices[0].ID != "dev-1" {
			t.Errorf("expected devices to hold the active device, got %+v", state.Devices)
		}
		if got := stub.Endpoints(); !slices.Equal(got, []string{"GET /me/player"}) {
			t.Errorf("expected a single read, got %v", got)
		}
	})

	t.Run("Nothing Playing Lists Devices", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.Respond(http.MethodGet, "/me/player", http.StatusNoContent, "")
		stub.Respond(http.MethodGet, "/me/player/devices", http.StatusOK, devicesJSON)

		state, err := svc.PlayerState(context.Background(), "refresh-1", testCreds)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if state.IsPlaying || state.CurrentTrack != nil || state.ActiveDevice != nil {
			t.Errorf("expected idle state, got %+v", state)
		}
		if state.PositionMs != 0 || state.DurationMs != 0 || state.ShuffleState || state.RepeatState != models.RepeatOff {
			t.Errorf("expected idle defaults, got %+v", state)
		}
		if len(state.Devices) != 2 || state.Devices[1].Name != "Kitchen" || !state.Devices[1].IsRestricted {
			t.Errorf("unexpected devices %+v", state.Devices)
		}
		if got := stub.Endpoints(); !slices.Equal(got, []string{"GET /me/player", "GET /me/player/devices"}) {
			t.Errorf("unexpected calls %v", got)
		}
	})

	t.Run("Nothing Playing And Device List Fails", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.Respond(http.MethodGet, "/me/player", http.StatusNoContent, "")
		stub.Respond(http.MethodGet, "/me/player/devices", http.StatusBadGateway, "")

		state, err := svc.PlayerState(context.Background(), "refresh-1", testCreds)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if state.Devices == nil || len(state.Devices) != 0 {
			t.Errorf("expected empty device list, got %#v", state.Devices)
		}
	})

	t.Run("Upstream Failure", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.Respond(http.MethodGet, "/me/player", http.StatusServiceUnavailable, `{}`)

		_, err := svc.PlayerState(context.Background(), "refresh-1", testCreds)
		if !errors.Is(err, shared.ErrFetchFailed) {
			t.Fatalf("expected ErrFetchFailed, got %v", err)
		}
		if UpstreamStatus(err) != http.StatusServiceUnavailable {
			t.Errorf("expected upstream status in error, got %v", err)
		}
	})

	t.Run("Missing Inputs", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})

		if _, err := svc.PlayerState(context.Background(), "", testCreds); !errors.Is(err, shared.ErrMissingRefreshToken) {
			t.Errorf("expected ErrMissingRefreshToken, got %v", err)
		}
		if _, err := svc.PlayerState(context.Background(), "refresh-1", Credentials{}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
		if stub.Exchanges() != 0 {
			t.Error("expected no outbound calls")
		}
	})
}

func TestNormalizePlayerState(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		state := NormalizePlayerState(nil)
		if state.RepeatState != models.RepeatOff || state.Devices == nil {
			t.Errorf("expected idle defaults, got %+v", state)
		}
	})
}

func TestRecentTracks(t *testing.T) {
	const recentJSON = `{"items":[
		{"track":{"id":"t1","name":"One","uri":"spotify:track:t1","duration_ms":1000,"artists":[{"name":"X"}]},"played_at":"2025-01-01T10:00:00Z"},
		{"track":{"id":"t2","name":"Two","uri":"spotify:track:t2","duration_ms":2000,"artists":[{"name":"Y"}]},"played_at":"2025-01-01T09:00:00Z"}
	],"limit":20}`

	t.Run("Passes Payload Through", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.Respond(http.MethodGet, "/me/player/recently-played", http.StatusOK, recentJSON)

		raw, err := svc.RecentTracks(context.Background(), "refresh-1", testCreds, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := stub.Endpoints(); !slices.Equal(got, []string{"GET /me/player/recently-played?limit=20"}) {
			t.Errorf("unexpected calls %v", got)
		}

		tracks, err := DecodeRecentTracks(raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 || tracks[0].Track.Name != "One" || tracks[1].Track.Artists[0] != "Y" {
			t.Errorf("unexpected tracks %+v", tracks)
		}
		if tracks[0].PlayedAt.Hour() != 10 {
			t.Errorf("unexpected played_at %v", tracks[0].PlayedAt)
		}
	})

	t.Run("Limit Is Clamped", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.Respond(http.MethodGet, "/me/player/recently-played", http.StatusOK, `{"items":[]}`)

		if _, err := svc.RecentTracks(context.Background(), "refresh-1", testCreds, 500); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := stub.Endpoints()[0]; got != "GET /me/player/recently-played?limit=50" {
			t.Errorf("unexpected call %s", got)
		}
	})

	t.Run("Upstream Failure", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.Respond(http.MethodGet, "/me/player/recently-played", http.StatusUnauthorized, `{}`)

		_, err := svc.RecentTracks(context.Background(), "refresh-1", testCreds, 10)
		if UpstreamStatus(err) != http.StatusUnauthorized {
			t.Errorf("expected upstream 401, got %v", err)
		}
	})

	t.Run("Decode Error", func(t *testing.T) {
		if _, err := DecodeRecentTracks([]byte("nope")); err == nil {
			t.Error("expected decode error")
		}
	})
}
