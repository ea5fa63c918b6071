package models

import "time"

// Repeat modes accepted by the Spotify player API.
const (
	RepeatOff     = "off"
	RepeatTrack   = "track"
	RepeatContext = "context"
)

// Track is the part of a Spotify track the dashboard renders.
type Track struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	URI         string   `json:"uri"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album"`
	ImageURL    string   `json:"image_url,omitempty"`
	ExternalURL string   `json:"external_url,omitempty"`
	DurationMs  int      `json:"duration_ms"`
}

// Device is a Spotify Connect playback device.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	IsRestricted  bool   `json:"is_restricted"`
	VolumePercent int    `json:"volume_percent"`
}

// PlayerState is the normalized "current playback" shape returned to clients.
//
// Every field is always present: Devices is never nil, and CurrentTrack and ActiveDevice
// are null when nothing is playing anywhere.
type PlayerState struct {
	IsPlaying    bool     `json:"is_playing"`
	CurrentTrack *Track   `json:"current_track"`
	PositionMs   int      `json:"position_ms"`
	DurationMs   int      `json:"duration_ms"`
	ShuffleState bool     `json:"shuffle_state"`
	RepeatState  string   `json:"repeat_state"`
	ActiveDevice *Device  `json:"active_device"`
	Devices      []Device `json:"devices"`
	Timestamp    int64    `json:"timestamp"`
}

// IdlePlayerState returns the state reported when no session is active.
func IdlePlayerState(devices []Device) *PlayerState {
	if devices == nil {
		devices = []Device{}
	}
	return &PlayerState{
		IsPlaying:   false,
		RepeatState: RepeatOff,
		Devices:     devices,
	}
}

// RecentTrack is one entry of the user's listening history.
type RecentTrack struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}
