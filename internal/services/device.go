package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/player"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/zmb3/spotify"
)

// RemoteDevice drives one Spotify Connect device through the Web API with bearer tokens supplied by
// a [player.Session]. It implements [player.Device] and [player.Transferer].
type RemoteDevice struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	preferred  string

	mu       sync.Mutex
	token    player.TokenFunc
	deviceID string
	events   chan player.DeviceEvent
}

// RemoteDeviceOpts configures a [RemoteDevice].
//
// DeviceName selects a device by name (case-insensitive). When empty or not found the active device
// is used, then the first listed one.
type RemoteDeviceOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
	DeviceName string
}

// NewRemoteDevice creates a disconnected [RemoteDevice].
func NewRemoteDevice(opts RemoteDeviceOpts) *RemoteDevice {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &RemoteDevice{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		preferred:  opts.DeviceName,
		events:     make(chan player.DeviceEvent, 16),
	}
}

func (d *RemoteDevice) Events() <-chan player.DeviceEvent { return d.events }

func (d *RemoteDevice) emit(ev player.DeviceEvent) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("dropping device event", "kind", ev.Kind)
	}
}

// Connect picks a device and reports it ready, followed by its current playback.
func (d *RemoteDevice) Connect(ctx context.Context, token player.TokenFunc) error {
	d.mu.Lock()
	d.token = token
	d.mu.Unlock()

	resp, err := d.do(ctx, http.MethodGet, "/me/player/devices", nil)
	if err != nil {
		return err
	}
	devices, err := decodeDevices(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	device, ok := pickDevice(devices, d.preferred)
	if !ok {
		return fmt.Errorf("%w: no Spotify Connect devices available", shared.ErrNoActiveDevice)
	}

	d.mu.Lock()
	d.deviceID = device.ID
	d.mu.Unlock()

	d.logger.Info("using device", "name", device.Name, "type", device.Type, "id", device.ID)
	d.emit(player.DeviceEvent{Kind: player.EventReady, DeviceID: device.ID})

	if pb, err := d.CurrentState(ctx); err == nil {
		d.emit(player.DeviceEvent{Kind: player.EventStateChanged, Playback: pb})
	}
	return nil
}

func pickDevice(devices []models.Device, preferred string) (models.Device, bool) {
	if preferred != "" {
		for _, dev := range devices {
			if strings.EqualFold(dev.Name, preferred) {
				return dev, true
			}
		}
	}
	for _, dev := range devices {
		if dev.IsActive {
			return dev, true
		}
	}
	if len(devices) > 0 {
		return devices[0], true
	}
	return models.Device{}, false
}

// Disconnect forgets the device and token. The events channel stays open.
func (d *RemoteDevice) Disconnect() error {
	d.mu.Lock()
	id := d.deviceID
	d.deviceID = ""
	d.token = nil
	d.mu.Unlock()

	if id != "" {
		d.emit(player.DeviceEvent{Kind: player.EventNotReady, DeviceID: id})
	}
	return nil
}

// DeviceID returns the selected device or "".
func (d *RemoteDevice) DeviceID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceID
}

// TogglePlay pauses when the device reports playing and resumes otherwise.
func (d *RemoteDevice) TogglePlay(ctx context.Context) error {
	pb, err := d.CurrentState(ctx)
	if err != nil {
		return err
	}
	if pb != nil && pb.IsPlaying {
		return d.command(ctx, http.MethodPut, "/me/player/pause", nil, nil)
	}
	return d.command(ctx, http.MethodPut, "/me/player/play", nil, nil)
}

func (d *RemoteDevice) NextTrack(ctx context.Context) error {
	return d.command(ctx, http.MethodPost, "/me/player/next", nil, nil)
}

func (d *RemoteDevice) PreviousTrack(ctx context.Context) error {
	return d.command(ctx, http.MethodPost, "/me/player/previous", nil, nil)
}

func (d *RemoteDevice) Seek(ctx context.Context, positionMs int) error {
	q := url.Values{"position_ms": {fmt.Sprint(positionMs)}}
	return d.command(ctx, http.MethodPut, "/me/player/seek", q, nil)
}

func (d *RemoteDevice) SetVolume(ctx context.Context, volume float64) error {
	percent := int(min(max(volume, 0), 1)*100 + 0.5)
	q := url.Values{"volume_percent": {fmt.Sprint(percent)}}
	return d.command(ctx, http.MethodPut, "/me/player/volume", q, nil)
}

// CurrentState reads /me/player. Returns nil when nothing is playing.
func (d *RemoteDevice) CurrentState(ctx context.Context) (*player.Playback, error) {
	resp, err := d.do(ctx, http.MethodGet, "/me/player", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var raw spotify.PlayerState
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", shared.ErrFetchFailed, err)
	}

	pb := PlaybackFrom(NormalizePlayerState(&raw))
	return &pb, nil
}

// TransferPlayback makes deviceID active and starts playback there.
func (d *RemoteDevice) TransferPlayback(ctx context.Context, deviceID string) error {
	body := JSONBody(map[string]any{"device_ids": []string{deviceID}, "play": true})
	resp, err := d.do(ctx, http.MethodPut, "/me/player", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// PlaybackFrom converts a normalized player state into the session's playback copy.
func PlaybackFrom(state *models.PlayerState) player.Playback {
	return player.Playback{
		IsPlaying:  state.IsPlaying,
		Track:      state.CurrentTrack,
		PositionMs: state.PositionMs,
		DurationMs: state.DurationMs,
		Shuffle:    state.ShuffleState,
		Repeat:     state.RepeatState,
	}
}

// command targets the selected device via the device_id query parameter.
func (d *RemoteDevice) command(ctx context.Context, method, path string, q url.Values, body []byte) error {
	if q == nil {
		q = url.Values{}
	}
	if id := d.DeviceID(); id != "" {
		q.Set("device_id", id)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := d.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do performs an authenticated call. Non-2xx statuses are returned as errors and upstream 401/403
// are also reported on the events channel. A failing token callback is only returned.
func (d *RemoteDevice) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	d.mu.Lock()
	token := d.token
	d.mu.Unlock()
	if token == nil {
		return nil, shared.ErrNotConnected
	}

	accessToken, err := token(ctx)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	msg := readBody(resp)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		d.emit(player.DeviceEvent{Kind: player.EventError, ErrKind: player.ErrAuthentication, Message: msg})
	case http.StatusForbidden:
		d.emit(player.DeviceEvent{Kind: player.EventError, ErrKind: player.ErrAccount, Message: msg})
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", shared.ErrNoActiveDevice, msg)
	}
	return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: msg}
}

// RefreshTokenSource adapts a refresh-token exchange (local or through a dashx server) to
// [player.TokenSource]. A rotated refresh token replaces the one held here and is passed to
// onRotate when set.
func RefreshTokenSource(
	refreshToken string,
	exchange func(ctx context.Context, refreshToken string) (*TokenResponse, error),
	onRotate func(refreshToken string),
) player.TokenSource {
	var mu sync.Mutex
	return player.TokenSourceFunc(func(ctx context.Context) (string, time.Duration, error) {
		mu.Lock()
		rt := refreshToken
		mu.Unlock()

		token, err := exchange(ctx, rt)
		if err != nil {
			return "", 0, err
		}

		if token.RefreshToken != "" && token.RefreshToken != rt {
			mu.Lock()
			refreshToken = token.RefreshToken
			mu.Unlock()
			if onRotate != nil {
				onRotate(token.RefreshToken)
			}
		}
		return token.AccessToken, time.Duration(token.ExpiresIn) * time.Second, nil
	})
}
