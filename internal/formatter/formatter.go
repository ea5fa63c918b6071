// package formatter renders player state and listening history as JSON, terminal tables or Markdown
package formatter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
)

// Format selects an output representation.
type Format string

const (
	FormatJSON     Format = "json"
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
)

// Formats lists every supported [Format].
var Formats = []Format{FormatJSON, FormatTable, FormatMarkdown}

// ParseFormat validates s. "md" is accepted for markdown and "" selects json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want json, table or markdown)", shared.ErrInvalidArgument, s)
	}
}

// FormatDuration renders milliseconds as m:ss, or h:mm:ss from one hour up.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Artists joins artist names with commas.
func Artists(t models.Track) string {
	return strings.Join(t.Artists, ", ")
}

// RenderRecentTracks renders tracks in format f.
func RenderRecentTracks(tracks []models.RecentTrack, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		if tracks == nil {
			tracks = []models.RecentTrack{}
		}
		return shared.MarshalJSON(tracks, true)
	case FormatTable:
		return RecentTracksTable(tracks), nil
	case FormatMarkdown:
		return RecentTracksMarkdown(tracks), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// RecentTracksTable renders a bordered terminal table with columns #, Track, Artist, Album, Length, Played.
func RecentTracksTable(tracks []models.RecentTrack) []byte {
	rows := make([][]string, 0, len(tracks))
	for i, rt := range tracks {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			rt.Track.Name,
			Artists(rt.Track),
			rt.Track.Album,
			FormatDuration(rt.Track.DurationMs),
			rt.PlayedAt.Local().Format(time.DateTime),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "Track", "Artist", "Album", "Length", "Played").
		Rows(rows...)

	return []byte(t.String() + "\n")
}

// RecentTracksMarkdown renders a heading and a Markdown table.
func RecentTracksMarkdown(tracks []models.RecentTrack) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Recently Played\n\n")
	if len(tracks) == 0 {
		buf.WriteString("_Nothing played recently._\n")
		return buf.Bytes()
	}

	buf.WriteString("| # | Track | Artist | Album | Length | Played |\n")
	buf.WriteString("|---|-------|--------|-------|--------|--------|\n")
	for i, rt := range tracks {
		name := mdEscape(rt.Track.Name)
		if rt.Track.ExternalURL != "" {
			name = fmt.Sprintf("[%s](%s)", name, rt.Track.ExternalURL)
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %s |\n",
			i+1,
			name,
			mdEscape(Artists(rt.Track)),
			mdEscape(rt.Track.Album),
			FormatDuration(rt.Track.DurationMs),
			rt.PlayedAt.UTC().Format(time.RFC3339),
		)
	}

	return buf.Bytes()
}

// RenderPlayerState renders state in format f.
func RenderPlayerState(state *models.PlayerState, f Format) ([]byte, error) {
	if state == nil {
		state = models.IdlePlayerState(nil)
	}

	switch f {
	case FormatJSON:
		return shared.MarshalJSON(state, true)
	case FormatTable:
		return PlayerStateTable(state), nil
	case FormatMarkdown:
		return PlayerStateMarkdown(state), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// PlayerStateTable renders a key/value table of the current playback followed by the device list.
func PlayerStateTable(state *models.PlayerState) []byte {
	var buf bytes.Buffer

	summary := table.New().
		Border(lipgloss.RoundedBorder()).
		Rows(playbackRows(state)...)
	buf.WriteString(summary.String())
	buf.WriteString("\n")

	if len(state.Devices) > 0 {
		devices := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Device", "Type", "Active", "Volume")
		for _, d := range state.Devices {
			devices.Row(d.Name, d.Type, yesNo(d.IsActive), fmt.Sprintf("%d%%", d.VolumePercent))
		}
		buf.WriteString(devices.String())
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// PlayerStateMarkdown renders the current playback as a Markdown section.
func PlayerStateMarkdown(state *models.PlayerState) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Now Playing\n\n")
	for _, row := range playbackRows(state) {
		fmt.Fprintf(&buf, "- **%s**: %s\n", row[0], mdEscape(row[1]))
	}

	if len(state.Devices) > 0 {
		buf.WriteString("\n## Devices\n\n")
		for _, d := range state.Devices {
			active := ""
			if d.IsActive {
				active = " (active)"
			}
			fmt.Fprintf(&buf, "- %s, %s%s\n", mdEscape(d.Name), d.Type, active)
		}
	}

	return buf.Bytes()
}

func playbackRows(state *models.PlayerState) [][]string {
	status := "Paused"
	if state.IsPlaying {
		status = "Playing"
	}
	if state.CurrentTrack == nil {
		status = "Idle"
	}

	rows := [][]string{{"Status", status}}
	if t := state.CurrentTrack; t != nil {
		rows = append(rows,
			[]string{"Track", t.Name},
			[]string{"Artist", Artists(*t)},
			[]string{"Album", t.Album},
			[]string{"Progress", FormatDuration(state.PositionMs) + " / " + FormatDuration(state.DurationMs)},
		)
	}
	rows = append(rows,
		[]string{"Shuffle", onOff(state.ShuffleState)},
		[]string{"Repeat", state.RepeatState},
	)
	if d := state.ActiveDevice; d != nil {
		rows = append(rows, []string{"Device", fmt.Sprintf("%s (%s)", d.Name, d.Type)})
	}
	return rows
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
