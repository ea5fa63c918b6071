package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dashx/internal/formatter"
	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/player"
	"github.com/desertthunder/dashx/internal/services"
	"github.com/desertthunder/dashx/internal/shared"
)

const (
	seekStep   = 10 * time.Second
	volumeStep = 5
	barWidth   = 40
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	NowPlayingView ViewState = iota
	HistoryView
)

// Player is the part of [player.Session] the widget drives.
type Player interface {
	Snapshot() player.Snapshot
	Updates() <-chan struct{}
	TogglePlay(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	SetVolume(ctx context.Context, percent int) error
	TransferPlayback(ctx context.Context) error
}

// Remote reaches the dashboard server for what the device itself cannot do.
type Remote interface {
	Control(ctx context.Context, action services.Action) (*services.ControlResult, error)
	RecentTracks(ctx context.Context) ([]models.RecentTrack, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	player  Player
	remote  Remote
	snap    player.Snapshot
	history list.Model
	loaded  bool
	notice  string
	width   int
	height  int
	help    help.Model
	keys    keyMap
}

// NewModel creates the widget. remote may be nil, which disables shuffle, repeat and history.
func NewModel(ctx context.Context, p Player, remote Remote) *Model {
	history := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	history.Title = "Recently Played"
	history.SetShowHelp(false)

	return &Model{
		ctx:     ctx,
		view:    NowPlayingView,
		player:  p,
		remote:  remote,
		snap:    p.Snapshot(),
		history: history,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts listening for session changes and the progress ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.history.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		if m.view == HistoryView {
			return m.handleHistoryKeys(msg)
		}
		return m.handleNowPlayingKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == HistoryView {
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSessionChanged:
		m.snap = msg.data.(player.Snapshot)
		return m, m.waitForChange()

	case MsgTick:
		m.snap = m.player.Snapshot()
		return m, tick()

	case MsgCommandDone:
		res := msg.data.(commandResult)
		switch {
		case res.err == nil:
			m.notice = ""
		case errors.Is(res.err, shared.ErrTransferInProgress):
		case errors.Is(res.err, shared.ErrNotConnected):
			m.notice = "Player is not connected yet"
		default:
			m.notice = fmt.Sprintf("%s failed: %v", res.label, res.err)
		}
		m.snap = m.player.Snapshot()
		return m, nil

	case MsgControlDone:
		res := msg.data.(controlResult)
		if res.err != nil {
			m.notice = res.err.Error()
			return m, nil
		}
		m.notice = describeControl(res.result)
		return m, nil

	case MsgRecentFetched:
		res := msg.data.(recentResult)
		if res.err != nil {
			m.notice = fmt.Sprintf("Could not load history: %v", res.err)
			return m, nil
		}
		m.loaded = true
		return m, m.history.SetItems(recentItems(res.tracks))
	}
	return m, nil
}

func (m *Model) handleNowPlayingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		return m, m.command("Play/pause", m.player.TogglePlay)
	case key.Matches(msg, m.keys.next):
		return m, m.command("Next track", m.player.NextTrack)
	case key.Matches(msg, m.keys.previous):
		return m, m.command("Previous track", m.player.PreviousTrack)
	case key.Matches(msg, m.keys.seekBack):
		return m, m.seek(-seekStep)
	case key.Matches(msg, m.keys.seekFwd):
		return m, m.seek(seekStep)
	case key.Matches(msg, m.keys.volumeUp):
		return m, m.volume(volumeStep)
	case key.Matches(msg, m.keys.volumeDown):
		return m, m.volume(-volumeStep)
	case key.Matches(msg, m.keys.transfer):
		return m, m.command("Transfer", m.player.TransferPlayback)
	case key.Matches(msg, m.keys.shuffle):
		return m, m.control(services.ActionShuffle)
	case key.Matches(msg, m.keys.repeat):
		return m, m.control(services.ActionRepeat)
	case key.Matches(msg, m.keys.history):
		if m.remote == nil {
			m.notice = "History needs a dashx server (--server)"
			return m, nil
		}
		m.view = HistoryView
		if !m.loaded {
			return m, m.fetchRecent()
		}
	}
	return m, nil
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.history.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.history), msg.String() == "esc":
			m.view = NowPlayingView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) waitForChange() tea.Cmd {
	updates := m.player.Updates()
	return func() tea.Msg {
		select {
		case <-updates:
			return sessionChangedMsg(m.player.Snapshot())
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) command(label string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg(label, fn(m.ctx))
	}
}

func (m *Model) seek(delta time.Duration) tea.Cmd {
	target := m.snap.PositionMs + int(delta.Milliseconds())
	if d := m.snap.Playback.DurationMs; d > 0 {
		target = min(target, d)
	}
	target = max(target, 0)
	return m.command("Seek", func(ctx context.Context) error {
		return m.player.Seek(ctx, target)
	})
}

func (m *Model) volume(delta int) tea.Cmd {
	target := min(max(m.snap.Volume+delta, 0), 100)
	return m.command("Volume", func(ctx context.Context) error {
		return m.player.SetVolume(ctx, target)
	})
}

func (m *Model) control(action services.Action) tea.Cmd {
	if m.remote == nil {
		m.notice = fmt.Sprintf("%s needs a dashx server (--server)", action)
		return nil
	}
	return func() tea.Msg {
		return controlDoneMsg(m.remote.Control(m.ctx, action))
	}
}

func (m *Model) fetchRecent() tea.Cmd {
	return func() tea.Msg {
		return recentFetchedMsg(m.remote.RecentTracks(m.ctx))
	}
}

func describeControl(r *services.ControlResult) string {
	if r == nil {
		return ""
	}
	switch state := r.State.(type) {
	case bool:
		if state {
			return fmt.Sprintf("%s on", r.Action)
		}
		return fmt.Sprintf("%s off", r.Action)
	case string:
		return fmt.Sprintf("%s %s", r.Action, state)
	default:
		return string(r.Action)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case HistoryView:
		return m.renderHistory()
	default:
		return m.renderNowPlaying()
	}
}

func (m *Model) renderNowPlaying() string {
	var b strings.Builder
	snap := m.snap

	b.WriteString(styles.title.Render("dashx " + connLabel(snap)))
	b.WriteString("\n")

	if t := snap.Playback.Track; t != nil {
		b.WriteString(styles.track.Render(t.Name))
		b.WriteString("\n")
		b.WriteString(formatter.Artists(*t))
		if t.Album != "" {
			b.WriteString(styles.muted.Render(" • " + t.Album))
		}
		b.WriteString("\n\n")

		icon := "⏸"
		if snap.Playback.IsPlaying {
			icon = "▶"
		}
		fmt.Fprintf(&b, "%s %s %s / %s\n",
			icon,
			progressBar(snap.PositionMs, snap.Playback.DurationMs, barWidth),
			formatter.FormatDuration(snap.PositionMs),
			formatter.FormatDuration(snap.Playback.DurationMs),
		)
	} else {
		b.WriteString(styles.muted.Render("Nothing playing. Press t to play here."))
		b.WriteString("\n")
	}

	repeat := snap.Playback.Repeat
	if repeat == "" {
		repeat = models.RepeatOff
	}
	shuffle := "off"
	if snap.Playback.Shuffle {
		shuffle = "on"
	}
	b.WriteString(styles.muted.Render(fmt.Sprintf("shuffle %s • repeat %s • volume %d%%", shuffle, repeat, snap.Volume)))
	b.WriteString("\n\n")

	switch {
	case snap.Error != "":
		b.WriteString(styles.err.Render(snap.Error))
		b.WriteString("\n")
	case snap.Status != "":
		b.WriteString(styles.warn.Render(snap.Status))
		b.WriteString("\n")
	}
	if snap.IsTransferring {
		b.WriteString(styles.warn.Render("Transferring playback…"))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(styles.help.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderHistory() string {
	if !m.loaded {
		return styles.help.Render("Loading history…")
	}
	return m.history.View() + "\n" + styles.help.Render("tab/esc: back • /: filter • q: quit")
}

func connLabel(snap player.Snapshot) string {
	switch snap.Conn {
	case player.Connected:
		return styles.ok.Render("● connected")
	case player.Connecting:
		return styles.warn.Render("◌ connecting")
	default:
		return styles.err.Render("○ disconnected")
	}
}

// progressBar renders position/duration as a bar width cells wide.
func progressBar(position, duration, width int) string {
	filled := 0
	if duration > 0 {
		filled = min(position*width/duration, width)
	}
	filled = max(filled, 0)
	return styles.ok.Render(strings.Repeat("━", filled)) + styles.muted.Render(strings.Repeat("─", width-filled))
}
