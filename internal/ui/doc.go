// Package ui implements the terminal now-playing widget using bubbletea's Elm architecture.
//
// The widget renders a [player.Session] snapshot and re-renders whenever the session reports a change
// or once a second so the progress bar advances between device events. Two views exist:
//  1. [NowPlayingView] : current track, progress, shuffle/repeat/volume and the session's status line
//  2. [HistoryView] : recently played tracks fetched through a running dashx server
//
// Playback keys (space, n, p, arrows, +/-, t) go to the session. Shuffle and repeat (s, r) go through
// the server's control route because the session only models the commands a device exposes directly.
package ui
