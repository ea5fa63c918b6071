package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, running due callbacks in order on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

type fakeDevice struct {
	mu           sync.Mutex
	events       chan DeviceEvent
	state        *Playback
	stateErr     error
	cmdErr       error
	connectErr   error
	calls        []string
	queries      int
	volume       float64
	transfers    []string
	transferGate chan struct{}
	disconnected bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{events: make(chan DeviceEvent, 16)}
}

func (d *fakeDevice) Connect(ctx context.Context, token TokenFunc) error {
	_, _ = token(ctx)
	return d.connectErr
}

func (d *fakeDevice) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = true
	return nil
}

func (d *fakeDevice) Events() <-chan DeviceEvent { return d.events }

func (d *fakeDevice) record(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, name)
	return d.cmdErr
}

func (d *fakeDevice) TogglePlay(context.Context) error    { return d.record("toggle") }
func (d *fakeDevice) NextTrack(context.Context) error     { return d.record("next") }
func (d *fakeDevice) PreviousTrack(context.Context) error { return d.record("previous") }
func (d *fakeDevice) Seek(context.Context, int) error     { return d.record("seek") }

func (d *fakeDevice) SetVolume(_ context.Context, v float64) error {
	d.mu.Lock()
	d.volume = v
	d.mu.Unlock()
	return d.record("volume")
}

func (d *fakeDevice) CurrentState(context.Context) (*Playback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries++
	if d.stateErr != nil {
		return nil, d.stateErr
	}
	if d.state == nil {
		return nil, nil
	}
	pb := *d.state
	return &pb, nil
}

func (d *fakeDevice) TransferPlayback(_ context.Context, id string) error {
	if d.transferGate != nil {
		<-d.transferGate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transfers = append(d.transfers, id)
	return nil
}

func (d *fakeDevice) setState(pb Playback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = &pb
}

func (d *fakeDevice) snapshot() (calls []string, queries int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...), d.queries
}

type countingTokens struct {
	calls     atomic.Int32
	expiresIn time.Duration
}

func (c *countingTokens) AccessToken(context.Context) (string, time.Duration, error) {
	n := c.calls.Add(1)
	return "token-" + string(rune('0'+n)), c.expiresIn, nil
}

// blockingTokens answers the first call and blocks later ones until release is closed.
type blockingTokens struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingTokens) AccessToken(ctx context.Context) (string, time.Duration, error) {
	if b.calls.Add(1) > 1 {
		select {
		case <-b.release:
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	return "token", time.Hour, nil
}

const wait = time.Second

func connectedSession(t *testing.T, opts Options) (*Session, *fakeDevice, *fakeClock) {
	t.Helper()

	device := newFakeDevice()
	clock := newFakeClock()
	opts.Device = device
	opts.Clock = clock
	if opts.Tokens == nil {
		opts.Tokens = &countingTokens{expiresIn: time.Hour}
	}

	s := NewSession(opts)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Connect(context.Background()))
	device.events <- DeviceEvent{Kind: EventReady, DeviceID: "dev-1"}
	require.Eventually(t, func() bool { return s.Snapshot().Conn == Connected }, wait, time.Millisecond)

	return s, device, clock
}

func observe(t *testing.T, s *Session, d *fakeDevice, pb Playback) {
	t.Helper()
	d.setState(pb)
	d.events <- DeviceEvent{Kind: EventStateChanged, Playback: &pb}
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Playback.TrackID() == pb.TrackID() && snap.Playback.PositionMs == pb.PositionMs
	}, wait, time.Millisecond)
}

func pausedOn(id string, pos int) Playback {
	return Playback{Track: track(id), PositionMs: pos, DurationMs: 200000, Repeat: models.RepeatOff}
}

func TestSession(t *testing.T) {
	t.Run("commands before connect fail without device calls", func(t *testing.T) {
		device := newFakeDevice()
		s := NewSession(Options{Device: device, Clock: newFakeClock()})

		assert.ErrorIs(t, s.TogglePlay(context.Background()), shared.ErrNotConnected)
		assert.ErrorIs(t, s.TransferPlayback(context.Background()), shared.ErrNotConnected)

		calls, _ := device.snapshot()
		assert.Empty(t, calls)
	})

	t.Run("ready and not ready", func(t *testing.T) {
		s, device, _ := connectedSession(t, Options{})
		assert.Equal(t, "dev-1", s.Snapshot().DeviceID)

		device.events <- DeviceEvent{Kind: EventNotReady, DeviceID: "dev-1"}
		require.Eventually(t, func() bool { return s.Snapshot().Conn == Disconnected }, wait, time.Millisecond)
		assert.Empty(t, s.Snapshot().DeviceID)
	})

	t.Run("connect failure records initialization error", func(t *testing.T) {
		device := newFakeDevice()
		device.connectErr = errors.New("sdk unavailable")
		s := NewSession(Options{Device: device, Clock: newFakeClock(), Tokens: &countingTokens{expiresIn: time.Hour}})

		err := s.Connect(context.Background())
		require.Error(t, err)

		snap := s.Snapshot()
		assert.Equal(t, Disconnected, snap.Conn)
		assert.Contains(t, snap.Error, "initialization error")
	})

	t.Run("toggle is optimistic then settles", func(t *testing.T) {
		s, device, clock := connectedSession(t, Options{})
		observe(t, s, device, pausedOn("a", 1000))

		playing := pausedOn("a", 1000)
		playing.IsPlaying = true
		device.setState(playing)

		require.NoError(t, s.TogglePlay(context.Background()))
		snap := s.Snapshot()
		assert.True(t, snap.Playback.IsPlaying)
		assert.Equal(t, Optimistic, snap.Phase)

		clock.Advance(DefaultSettleDelay)

		snap = s.Snapshot()
		assert.Equal(t, Authoritative, snap.Phase)
		assert.True(t, snap.Playback.IsPlaying)

		calls, queries := device.snapshot()
		assert.Equal(t, []string{"toggle"}, calls)
		assert.Equal(t, 1, queries)
	})

	t.Run("failed command reverts and flashes status", func(t *testing.T) {
		s, device, clock := connectedSession(t, Options{})
		observe(t, s, device, pausedOn("a", 1000))
		device.cmdErr = errors.New("boom")

		require.Error(t, s.TogglePlay(context.Background()))

		snap := s.Snapshot()
		assert.False(t, snap.Playback.IsPlaying)
		assert.Equal(t, Authoritative, snap.Phase)
		assert.Equal(t, "Failed to toggle playback", snap.Status)

		clock.Advance(DefaultStatusTTL)
		assert.Empty(t, s.Snapshot().Status)
	})

	t.Run("poll does not interrupt unsettled intent", func(t *testing.T) {
		s, device, clock := connectedSession(t, Options{PollInterval: time.Second, SettleDelay: 10 * time.Second})
		observe(t, s, device, pausedOn("a", 1000))

		require.NoError(t, s.TogglePlay(context.Background()))

		clock.Advance(time.Second)
		snap := s.Snapshot()
		assert.Equal(t, Optimistic, snap.Phase)
		assert.True(t, snap.Playback.IsPlaying)

		clock.Advance(9 * time.Second)
		snap = s.Snapshot()
		assert.Equal(t, Authoritative, snap.Phase)
		assert.False(t, snap.Playback.IsPlaying, "remote state should win after settle")
	})

	t.Run("poll applies only significant changes", func(t *testing.T) {
		s, device, clock := connectedSession(t, Options{})
		observe(t, s, device, pausedOn("a", 1000))

		device.setState(pausedOn("a", 2000))
		clock.Advance(DefaultPollInterval)
		assert.Equal(t, 1000, s.Snapshot().Playback.PositionMs)

		device.setState(pausedOn("a", 10000))
		clock.Advance(DefaultPollInterval)
		assert.Equal(t, 10000, s.Snapshot().Playback.PositionMs)

		device.setState(pausedOn("b", 10000))
		clock.Advance(DefaultPollInterval)
		assert.Equal(t, "b", s.Snapshot().Playback.TrackID())
	})

	t.Run("transfer ignores repeated requests", func(t *testing.T) {
		s, device, _ := connectedSession(t, Options{})
		device.transferGate = make(chan struct{})
		device.setState(pausedOn("c", 500))

		done := make(chan error, 1)
		go func() { done <- s.TransferPlayback(context.Background()) }()

		require.Eventually(t, func() bool { return s.Snapshot().IsTransferring }, wait, time.Millisecond)
		assert.ErrorIs(t, s.TransferPlayback(context.Background()), shared.ErrTransferInProgress)

		close(device.transferGate)
		require.NoError(t, <-done)

		snap := s.Snapshot()
		assert.False(t, snap.IsTransferring)
		assert.Equal(t, "c", snap.Playback.TrackID())

		device.mu.Lock()
		assert.Equal(t, []string{"dev-1"}, device.transfers)
		device.mu.Unlock()
	})

	t.Run("volume is clamped and scaled", func(t *testing.T) {
		s, device, _ := connectedSession(t, Options{})

		require.NoError(t, s.SetVolume(context.Background(), 150))
		assert.Equal(t, 100, s.Snapshot().Volume)

		require.NoError(t, s.SetVolume(context.Background(), 25))
		device.mu.Lock()
		assert.InDelta(t, 0.25, device.volume, 0.0001)
		device.mu.Unlock()
	})

	t.Run("authentication error refreshes token", func(t *testing.T) {
		tokens := &countingTokens{expiresIn: time.Hour}
		s, device, _ := connectedSession(t, Options{Tokens: tokens})
		assert.EqualValues(t, 1, tokens.calls.Load())

		device.events <- DeviceEvent{Kind: EventError, ErrKind: ErrAuthentication, Message: "expired"}
		require.Eventually(t, func() bool { return tokens.calls.Load() == 2 }, wait, time.Millisecond)
		require.Eventually(t, func() bool { return s.Snapshot().Error != "" }, wait, time.Millisecond)
		assert.Equal(t, "authentication error: expired", s.Snapshot().Error)
	})

	t.Run("authentication refresh does not block events", func(t *testing.T) {
		tokens := &blockingTokens{release: make(chan struct{})}
		s, device, _ := connectedSession(t, Options{Tokens: tokens})
		t.Cleanup(func() { close(tokens.release) })

		device.events <- DeviceEvent{Kind: EventError, ErrKind: ErrAuthentication, Message: "expired"}
		require.Eventually(t, func() bool { return tokens.calls.Load() == 2 }, wait, time.Millisecond)

		pb := Playback{IsPlaying: true, Track: track("a"), PositionMs: 1000, DurationMs: 200000}
		observe(t, s, device, pb)
		assert.EqualValues(t, 2, tokens.calls.Load())
	})

	t.Run("close disconnects device", func(t *testing.T) {
		s, device, _ := connectedSession(t, Options{})

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		device.mu.Lock()
		assert.True(t, device.disconnected)
		device.mu.Unlock()

		assert.ErrorIs(t, s.NextTrack(context.Background()), shared.ErrSessionClosed)
		assert.ErrorIs(t, s.Connect(context.Background()), shared.ErrSessionClosed)
		assert.Equal(t, Disconnected, s.Snapshot().Conn)
	})
}

func TestAccessToken(t *testing.T) {
	t.Run("cached until within refresh margin", func(t *testing.T) {
		tokens := &countingTokens{expiresIn: 2 * time.Minute}
		clock := newFakeClock()
		s := NewSession(Options{Device: newFakeDevice(), Clock: clock, Tokens: tokens})

		first, err := s.AccessToken(context.Background())
		require.NoError(t, err)
		second, err := s.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.EqualValues(t, 1, tokens.calls.Load())

		clock.Advance(61 * time.Second)
		third, err := s.AccessToken(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, first, third)
		assert.EqualValues(t, 2, tokens.calls.Load())
	})

	t.Run("source failure", func(t *testing.T) {
		src := TokenSourceFunc(func(context.Context) (string, time.Duration, error) {
			return "", 0, shared.ErrRefreshFailed
		})
		s := NewSession(Options{Device: newFakeDevice(), Clock: newFakeClock(), Tokens: src})

		_, err := s.AccessToken(context.Background())
		assert.ErrorIs(t, err, shared.ErrAuthFailed)
		assert.ErrorIs(t, err, shared.ErrRefreshFailed)
	})

	t.Run("no source", func(t *testing.T) {
		s := NewSession(Options{Device: newFakeDevice(), Clock: newFakeClock()})
		_, err := s.AccessToken(context.Background())
		assert.ErrorIs(t, err, shared.ErrMissingRefreshToken)
	})
}
