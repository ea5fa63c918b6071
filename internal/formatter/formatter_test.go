package formatter

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
)

func sampleTracks() []models.RecentTrack {
	return []models.RecentTrack{
		{
			Track: models.Track{
				ID:          "t1",
				Name:        "Song One",
				Artists:     []string{"Artist One", "Guest"},
				Album:       "Album | One",
				DurationMs:  185000,
				ExternalURL: "https://open.spotify.com/track/t1",
			},
			PlayedAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			Track:    models.Track{ID: "t2", Name: "Song Two", Artists: []string{"Artist Two"}, DurationMs: 61000},
			PlayedAt: time.Date(2025, 3, 1, 12, 25, 0, 0, time.UTC),
		},
	}
}

func samplePlayerState() *models.PlayerState {
	desk := models.Device{ID: "dev-1", Name: "Desk", Type: "Computer", IsActive: true, VolumePercent: 40}
	return &models.PlayerState{
		IsPlaying:    true,
		CurrentTrack: &models.Track{ID: "t1", Name: "Song One", Artists: []string{"Artist One"}, Album: "Album One", DurationMs: 185000},
		PositionMs:   42000,
		DurationMs:   185000,
		ShuffleState: true,
		RepeatState:  models.RepeatTrack,
		ActiveDevice: &desk,
		Devices:      []models.Device{desk, {ID: "dev-2", Name: "Kitchen", Type: "Speaker", VolumePercent: 70}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatJSON},
		{"json", FormatJSON},
		{"TABLE", FormatTable},
		{"md", FormatMarkdown},
		{" markdown ", FormatMarkdown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := ParseFormat("csv"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0:00"},
		{-5, "0:00"},
		{999, "0:00"},
		{61000, "1:01"},
		{185000, "3:05"},
		{3_723_000, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestRenderRecentTracks(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		data, err := RenderRecentTracks(sampleTracks(), FormatJSON)
		if err != nil {
			t.Fatalf("RenderRecentTracks failed: %v", err)
		}

		var decoded []models.RecentTrack
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("expected valid JSON, got %v", err)
		}
		if len(decoded) != 2 || decoded[0].Track.ID != "t1" {
			t.Errorf("unexpected tracks %+v", decoded)
		}
	})

	t.Run("JSON Empty", func(t *testing.T) {
		data, err := RenderRecentTracks(nil, FormatJSON)
		if err != nil {
			t.Fatalf("RenderRecentTracks failed: %v", err)
		}
		if string(data) != "[]" {
			t.Errorf("expected empty array, got %s", data)
		}
	})

	t.Run("Table", func(t *testing.T) {
		data, err := RenderRecentTracks(sampleTracks(), FormatTable)
		if err != nil {
			t.Fatalf("RenderRecentTracks failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{"Track", "Artist", "Song One", "Artist One, Guest", "3:05", "Song Two", "1:01"} {
			if !strings.Contains(output, want) {
				t.Errorf("table missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, err := RenderRecentTracks(sampleTracks(), FormatMarkdown)
		if err != nil {
			t.Fatalf("RenderRecentTracks failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "# Recently Played") {
			t.Error("Markdown missing heading")
		}
		if !strings.Contains(output, "| 1 | [Song One](https://open.spotify.com/track/t1) | Artist One, Guest | Album \\| One | 3:05 | 2025-03-01T12:30:00Z |") {
			t.Errorf("Markdown missing first row, got:\n%s", output)
		}
		if !strings.Contains(output, "| 2 | Song Two | Artist Two |  | 1:01 |") {
			t.Errorf("Markdown missing second row, got:\n%s", output)
		}
	})

	t.Run("Markdown Empty", func(t *testing.T) {
		data, _ := RenderRecentTracks(nil, FormatMarkdown)
		if !strings.Contains(string(data), "Nothing played recently") {
			t.Errorf("expected empty notice, got %s", data)
		}
	})

	t.Run("Unknown Format", func(t *testing.T) {
		if _, err := RenderRecentTracks(nil, Format("xml")); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestRenderPlayerState(t *testing.T) {
	t.Run("JSON Keeps Wire Shape", func(t *testing.T) {
		data, err := RenderPlayerState(samplePlayerState(), FormatJSON)
		if err != nil {
			t.Fatalf("RenderPlayerState failed: %v", err)
		}
		for _, key := range []string{`"is_playing": true`, `"repeat_state": "track"`, `"devices": [`} {
			if !strings.Contains(string(data), key) {
				t.Errorf("JSON missing %s", key)
			}
		}
	})

	t.Run("Nil Is Idle", func(t *testing.T) {
		data, err := RenderPlayerState(nil, FormatJSON)
		if err != nil {
			t.Fatalf("RenderPlayerState failed: %v", err)
		}
		if !strings.Contains(string(data), `"current_track": null`) || !strings.Contains(string(data), `"devices": []`) {
			t.Errorf("expected idle state, got %s", data)
		}
	})

	t.Run("Table", func(t *testing.T) {
		data, err := RenderPlayerState(samplePlayerState(), FormatTable)
		if err != nil {
			t.Fatalf("RenderPlayerState failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{"Playing", "Song One", "0:42 / 3:05", "Desk (Computer)", "Kitchen", "70%"} {
			if !strings.Contains(output, want) {
				t.Errorf("table missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, err := RenderPlayerState(samplePlayerState(), FormatMarkdown)
		if err != nil {
			t.Fatalf("RenderPlayerState failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{"# Now Playing", "- **Status**: Playing", "- **Shuffle**: on", "- **Repeat**: track", "- Desk, Computer (active)", "- Kitchen, Speaker\n"} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("Idle Markdown", func(t *testing.T) {
		data, _ := RenderPlayerState(models.IdlePlayerState(nil), FormatMarkdown)
		output := string(data)
		if !strings.Contains(output, "- **Status**: Idle") || strings.Contains(output, "Track") {
			t.Errorf("unexpected idle output:\n%s", output)
		}
	})
}
