package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/player"
	"github.com/desertthunder/dashx/internal/services"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSessionChanged MsgKind = iota
	MsgTick
	MsgCommandDone
	MsgControlDone
	MsgRecentFetched
)

// sessionChangedMsg is the constructor for [MsgSessionChanged]
func sessionChangedMsg(snap player.Snapshot) Msg {
	return Msg{kind: MsgSessionChanged, data: snap}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}

type commandResult struct {
	label string
	err   error
}

// commandDoneMsg is the constructor for [MsgCommandDone]
func commandDoneMsg(label string, err error) Msg {
	return Msg{kind: MsgCommandDone, data: commandResult{label, err}}
}

type controlResult struct {
	result *services.ControlResult
	err    error
}

// controlDoneMsg is the constructor for [MsgControlDone]
func controlDoneMsg(result *services.ControlResult, err error) Msg {
	return Msg{kind: MsgControlDone, data: controlResult{result, err}}
}

type recentResult struct {
	tracks []models.RecentTrack
	err    error
}

// recentFetchedMsg is the constructor for [MsgRecentFetched]
func recentFetchedMsg(tracks []models.RecentTrack, err error) Msg {
	return Msg{kind: MsgRecentFetched, data: recentResult{tracks, err}}
}
