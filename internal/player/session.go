package player

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashx/internal/shared"
)

// ConnState is the session's view of the device connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (c ConnState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	DefaultPollInterval = 5 * time.Second
	DefaultSettleDelay  = 500 * time.Millisecond
	DefaultStatusTTL    = 3 * time.Second

	queryTimeout = 10 * time.Second
)

// Options configures a [Session]. Zero durations select the defaults.
type Options struct {
	Device     Device
	Tokens     TokenSource
	Transferer Transferer // defaults to Device when it implements [Transferer]
	Clock      Clock
	Logger     *log.Logger

	PollInterval time.Duration
	SettleDelay  time.Duration
	StatusTTL    time.Duration
	Volume       int
}

// Snapshot is a consistent copy of the session for rendering.
type Snapshot struct {
	Conn           ConnState
	DeviceID       string
	Phase          Phase
	Playback       Playback
	PositionMs     int
	Volume         int
	IsTransferring bool
	Status         string
	Error          string
}

// Session keeps a local copy of remote playback in sync with a [Device].
//
// User commands update the copy optimistically, then a settle query after SettleDelay reconciles it
// with what the device reports. A poll every PollInterval catches changes made elsewhere. Device
// events always win.
type Session struct {
	mu         sync.Mutex
	device     Device
	transferer Transferer
	clock      Clock
	logger     *log.Logger
	tokens     *tokenCache

	pollInterval time.Duration
	settleDelay  time.Duration
	statusTTL    time.Duration

	state        State
	conn         ConnState
	deviceID     string
	volume       int
	transferring bool
	status       string
	statusGen    int
	errMsg       string
	closed       bool

	pollTimer   Timer
	settleTimer Timer
	statusTimer Timer
	stop        chan struct{}
	updates     chan struct{}
}

// NewSession creates a disconnected session. Call [Session.Connect] to start it.
func NewSession(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = DefaultStatusTTL
	}
	if opts.Transferer == nil {
		if tr, ok := opts.Device.(Transferer); ok {
			opts.Transferer = tr
		}
	}

	return &Session{
		device:       opts.Device,
		transferer:   opts.Transferer,
		clock:        opts.Clock,
		logger:       opts.Logger,
		tokens:       &tokenCache{source: opts.Tokens, clock: opts.Clock},
		pollInterval: opts.PollInterval,
		settleDelay:  opts.SettleDelay,
		statusTTL:    opts.StatusTTL,
		state:        NewState(),
		volume:       min(max(opts.Volume, 0), 100),
		updates:      make(chan struct{}, 1),
	}
}

// Updates receives a value whenever the snapshot may have changed. Notifications coalesce.
func (s *Session) Updates() <-chan struct{} { return s.updates }

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// AccessToken returns a cached access token, exchanging the refresh token when the cached one is
// missing or within [TokenRefreshMargin] of expiry.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	return s.tokens.get(ctx)
}

// Connect starts listening to the device and asks it to connect. The session becomes connected
// when the device reports ready.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return shared.ErrSessionClosed
	}
	if s.conn != Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.conn = Connecting
	s.errMsg = ""
	device := s.device
	if s.stop == nil {
		s.stop = make(chan struct{})
		go s.listen(device.Events(), s.stop)
	}
	s.mu.Unlock()
	s.notify()

	if err := device.Connect(ctx, s.AccessToken); err != nil {
		s.mu.Lock()
		s.conn = Disconnected
		s.errMsg = fmt.Sprintf("%s error: %v", ErrInitialization, err)
		s.mu.Unlock()
		s.notify()
		s.logger.Error("device connect failed", "error", err)
		return fmt.Errorf("failed to connect device: %w", err)
	}
	return nil
}

func (s *Session) listen(events <-chan DeviceEvent, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev DeviceEvent) {
	s.logger.Debug("device event", "kind", ev.Kind, "device_id", ev.DeviceID)

	switch ev.Kind {
	case EventReady:
		s.mu.Lock()
		s.conn = Connected
		s.deviceID = ev.DeviceID
		s.errMsg = ""
		s.schedulePollLocked()
		s.mu.Unlock()
		s.logger.Info("device ready", "device_id", ev.DeviceID)

	case EventNotReady:
		s.mu.Lock()
		s.conn = Disconnected
		s.deviceID = ""
		stopTimer(&s.pollTimer)
		s.mu.Unlock()
		s.logger.Warn("device went offline", "device_id", ev.DeviceID)

	case EventStateChanged:
		s.dispatch(Event{Type: Observed, Source: SourceDevice, Playback: ev.Playback})

	case EventError:
		s.mu.Lock()
		s.errMsg = fmt.Sprintf("%s error: %s", ev.ErrKind, ev.Message)
		s.mu.Unlock()
		s.logger.Error("device error", "kind", ev.ErrKind, "message", ev.Message)

		if ev.ErrKind == ErrAuthentication {
			go s.forceRefresh()
		}
	}

	s.notify()
}

// forceRefresh replaces the cached access token after the device rejected it.
func (s *Session) forceRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if _, err := s.tokens.refresh(ctx); err != nil {
		s.logger.Error("token refresh after authentication error failed", "error", err)
	}
}

func (s *Session) dispatch(e Event) {
	s.mu.Lock()
	if e.At.IsZero() {
		e.At = s.clock.Now()
	}
	s.state = Reduce(s.state, e)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) connectedDevice() (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return nil, shared.ErrSessionClosed
	case s.conn != Connected:
		return nil, shared.ErrNotConnected
	}
	return s.device, nil
}

// TogglePlay flips play/pause locally and on the device.
func (s *Session) TogglePlay(ctx context.Context) error {
	return s.intent(ctx, IntentTogglePlay, "toggle playback", Device.TogglePlay)
}

// NextTrack skips forward.
func (s *Session) NextTrack(ctx context.Context) error {
	return s.intent(ctx, IntentNext, "skip to next track", Device.NextTrack)
}

// PreviousTrack skips back.
func (s *Session) PreviousTrack(ctx context.Context) error {
	return s.intent(ctx, IntentPrevious, "skip to previous track", Device.PreviousTrack)
}

func (s *Session) intent(ctx context.Context, t EventType, label string, call func(Device, context.Context) error) error {
	device, err := s.connectedDevice()
	if err != nil {
		return err
	}

	s.dispatch(Event{Type: t})

	if err := call(device, ctx); err != nil {
		s.dispatch(Event{Type: CommandFailed})
		s.flash("Failed to " + label)
		s.logger.Error("playback command failed", "command", label, "error", err)
		return fmt.Errorf("failed to %s: %w", label, err)
	}

	s.scheduleSettle()
	return nil
}

// Seek passes through to the device.
func (s *Session) Seek(ctx context.Context, positionMs int) error {
	device, err := s.connectedDevice()
	if err != nil {
		return err
	}
	if err := device.Seek(ctx, max(positionMs, 0)); err != nil {
		s.flash("Failed to seek")
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

// SetVolume sets the device volume from a 0..100 percentage.
func (s *Session) SetVolume(ctx context.Context, percent int) error {
	device, err := s.connectedDevice()
	if err != nil {
		return err
	}

	percent = min(max(percent, 0), 100)
	if err := device.SetVolume(ctx, float64(percent)/100); err != nil {
		s.flash("Failed to set volume")
		return fmt.Errorf("failed to set volume: %w", err)
	}

	s.mu.Lock()
	s.volume = percent
	s.mu.Unlock()
	s.notify()
	return nil
}

// TransferPlayback moves the user's playback to this session's device and adopts the state the
// device reports afterwards. A call made while a transfer is pending returns
// [shared.ErrTransferInProgress] without contacting the service.
func (s *Session) TransferPlayback(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return shared.ErrSessionClosed
	case s.conn != Connected || s.deviceID == "":
		s.mu.Unlock()
		return shared.ErrNotConnected
	case s.transferring:
		s.mu.Unlock()
		return shared.ErrTransferInProgress
	case s.transferer == nil:
		s.mu.Unlock()
		return fmt.Errorf("%w: device cannot transfer playback", shared.ErrNotImplemented)
	}
	s.transferring = true
	deviceID, device, tr := s.deviceID, s.device, s.transferer
	s.mu.Unlock()
	s.notify()

	err := tr.TransferPlayback(ctx, deviceID)

	s.mu.Lock()
	s.transferring = false
	s.mu.Unlock()

	if err != nil {
		s.flash("Failed to transfer playback")
		s.logger.Error("transfer failed", "device_id", deviceID, "error", err)
		return fmt.Errorf("failed to transfer playback: %w", err)
	}

	pb, err := device.CurrentState(ctx)
	if err != nil {
		s.logger.Warn("state query after transfer failed", "error", err)
		s.notify()
		return nil
	}
	s.dispatch(Event{Type: Observed, Source: SourceTransfer, Playback: pb})
	return nil
}

func (s *Session) scheduleSettle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	stopTimer(&s.settleTimer)
	s.settleTimer = s.clock.AfterFunc(s.settleDelay, s.settle)
}

func (s *Session) settle() {
	s.dispatch(Event{Type: SettleStarted})

	device, err := s.connectedDevice()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	pb, err := device.CurrentState(ctx)
	if err != nil {
		s.logger.Warn("settle query failed", "error", err)
		return
	}
	s.dispatch(Event{Type: Observed, Source: SourceSettle, Playback: pb})
}

// schedulePollLocked arms the poll timer. s.mu must be held.
func (s *Session) schedulePollLocked() {
	stopTimer(&s.pollTimer)
	s.pollTimer = s.clock.AfterFunc(s.pollInterval, s.poll)
}

func (s *Session) poll() {
	device, err := s.connectedDevice()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	pb, err := device.CurrentState(ctx)
	cancel()

	if err != nil {
		s.logger.Debug("poll failed", "error", err)
	} else {
		s.dispatch(Event{Type: Observed, Source: SourcePoll, Playback: pb})
	}

	s.mu.Lock()
	if !s.closed && s.conn == Connected {
		s.schedulePollLocked()
	}
	s.mu.Unlock()
}

// flash shows msg until StatusTTL passes or another message replaces it.
func (s *Session) flash(msg string) {
	s.mu.Lock()
	s.status = msg
	s.statusGen++
	gen := s.statusGen
	stopTimer(&s.statusTimer)
	s.statusTimer = s.clock.AfterFunc(s.statusTTL, func() {
		s.mu.Lock()
		if s.statusGen == gen {
			s.status = ""
		}
		s.mu.Unlock()
		s.notify()
	})
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns the current session view with the position extrapolated to now.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Conn:           s.conn,
		DeviceID:       s.deviceID,
		Phase:          s.state.Phase,
		Playback:       s.state.Playback,
		PositionMs:     s.state.PositionAt(s.clock.Now()),
		Volume:         s.volume,
		IsTransferring: s.transferring,
		Status:         s.status,
		Error:          s.errMsg,
	}
}

// Close stops all timers and disconnects the device. The session cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopTimer(&s.pollTimer)
	stopTimer(&s.settleTimer)
	stopTimer(&s.statusTimer)
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	device := s.device
	s.device = nil
	s.conn = Disconnected
	s.deviceID = ""
	s.mu.Unlock()
	s.notify()

	if device == nil {
		return nil
	}
	return device.Disconnect()
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
