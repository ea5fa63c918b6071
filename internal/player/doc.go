// Package player reconciles a local, optimistically updated copy of playback state with what a
// remote playback device reports.
//
// [Reduce] is the pure state machine. [Session] drives it from user commands, device events, a
// settle query after each command and a periodic poll.
package player
