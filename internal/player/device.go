package player

import (
	"context"
	"fmt"
)

// TokenFunc supplies a valid access token whenever a device needs one.
type TokenFunc func(ctx context.Context) (string, error)

// EventKind enumerates device lifecycle events.
type EventKind int

const (
	EventReady EventKind = iota
	EventNotReady
	EventStateChanged
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventNotReady:
		return "not_ready"
	case EventStateChanged:
		return "player_state_changed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ErrorKind classifies device errors.
type ErrorKind string

const (
	ErrInitialization ErrorKind = "initialization"
	ErrAuthentication ErrorKind = "authentication"
	ErrAccount        ErrorKind = "account"
	ErrPlayback       ErrorKind = "playback"
)

// DeviceEvent is emitted by a [Device] on its Events channel.
//
// DeviceID is set for ready and not_ready, Playback for player_state_changed (nil when nothing
// is loaded), ErrKind and Message for error.
type DeviceEvent struct {
	Kind     EventKind
	DeviceID string
	Playback *Playback
	ErrKind  ErrorKind
	Message  string
}

// Device is a controllable playback device that reports its own state.
type Device interface {
	Connect(ctx context.Context, token TokenFunc) error
	Disconnect() error
	Events() <-chan DeviceEvent

	TogglePlay(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	// SetVolume takes a fraction in 0..1.
	SetVolume(ctx context.Context, volume float64) error

	// CurrentState returns nil without error when nothing is loaded.
	CurrentState(ctx context.Context) (*Playback, error)
}

// Transferer moves the user's playback to a device.
type Transferer interface {
	TransferPlayback(ctx context.Context, deviceID string) error
}
