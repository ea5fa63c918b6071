package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/dashx/internal/formatter"
	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/server"
	"github.com/desertthunder/dashx/internal/services"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// SpotifyAuth performs the OAuth2 authorization-code flow for Spotify.
//
// Starts a local HTTP server on the redirect URI, opens the browser for user authorization, and
// stores the refresh token in the config file.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	creds, err := r.requireCredentials()
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, creds, r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if r.configPath != "" {
		r.writePlain("✓ Refresh token saved to %s\n\n", r.configPath)
	}
	r.writePlain("You can now use: dashx serve, dashx player\n")
	return nil
}

// doOAuth serves the callback for redirectURI until a result arrives, the timeout expires or ctx ends.
func (r *Runner) doOAuth(ctx context.Context, creds services.Credentials, redirectURI string) (*oauth2.Token, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	addr := u.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}

	state := shared.GenerateID()
	handler := server.NewOAuthHandler(r.spotify.OAuthConfig(creds, redirectURI), state, u.Path)
	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(r.logger))
	router.Handler(handler)

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	serverErrors := make(chan error, 1)
	srv := server.NewServer(addr, router, r.logger)
	go func() {
		serverErrors <- srv.Run(ctx)
	}()

	authURL := r.spotify.AuthURL(creds, redirectURI, state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		if err != nil {
			return nil, fmt.Errorf("server error: %w", err)
		}
		return nil, authWaitError(ctx)
	case <-ctx.Done():
		return nil, authWaitError(ctx)
	}

	cancel()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, result.Error())
	}
	return result.Token, nil
}

func authWaitError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, authTimeout)
	}
	return fmt.Errorf("authorization cancelled: %w", ctx.Err())
}

// SpotifyToken exchanges the refresh token and prints the token response.
func (r *Runner) SpotifyToken(ctx context.Context, cmd *cli.Command) error {
	creds, rt, err := r.userCredentials(cmd)
	if err != nil {
		return err
	}

	token, err := r.spotify.Exchange(ctx, rt, creds)
	if err != nil {
		return err
	}
	if token.RefreshToken != "" && token.RefreshToken != rt && cmd.String("refresh-token") == "" {
		if err := r.saveTokens(&oauth2.Token{RefreshToken: token.RefreshToken}); err != nil {
			r.logger.Warn("failed to store rotated refresh token", "error", err)
		}
	}
	return r.writeJSON(token, cmd.Bool("pretty"))
}

// SpotifyState prints the current player state.
func (r *Runner) SpotifyState(ctx context.Context, cmd *cli.Command) error {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	creds, rt, err := r.userCredentials(cmd)
	if err != nil {
		return err
	}

	state, err := r.spotify.PlayerState(ctx, rt, creds)
	if err != nil {
		return err
	}

	out, err := formatter.RenderPlayerState(state, f)
	if err != nil {
		return err
	}
	return r.writeOutput(out, f)
}

// SpotifyControl sends one playback command.
func (r *Runner) SpotifyControl(ctx context.Context, cmd *cli.Command) error {
	action, err := services.ParseAction(cmd.StringArg("action"))
	if err != nil {
		return err
	}
	creds, rt, err := r.userCredentials(cmd)
	if err != nil {
		return err
	}

	result, err := r.spotify.Control(ctx, action, rt, creds)
	if err != nil {
		return err
	}

	switch state := result.State.(type) {
	case bool:
		return r.writePlain("✓ %s %s\n", result.Action, onOff(state))
	case string:
		return r.writePlain("✓ %s %s\n", result.Action, state)
	default:
		return r.writePlain("✓ %s\n", result.Action)
	}
}

// SpotifyTransfer makes the given device the active one.
func (r *Runner) SpotifyTransfer(ctx context.Context, cmd *cli.Command) error {
	device := strings.TrimSpace(cmd.StringArg("device"))
	if device == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}
	creds, rt, err := r.userCredentials(cmd)
	if err != nil {
		return err
	}

	if err := r.spotify.TransferPlayback(ctx, rt, creds, device, cmd.Bool("play")); err != nil {
		return err
	}
	return r.writePlain("✓ playback transferred to %s\n", device)
}

// SpotifyRecent prints recently played tracks.
func (r *Runner) SpotifyRecent(ctx context.Context, cmd *cli.Command) error {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	creds, rt, err := r.userCredentials(cmd)
	if err != nil {
		return err
	}

	raw, err := r.spotify.RecentTracks(ctx, rt, creds, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	tracks, err := services.DecodeRecentTracks(raw)
	if err != nil {
		return err
	}

	out, err := formatter.RenderRecentTracks(tracks, f)
	if err != nil {
		return err
	}
	return r.writeOutput(out, f)
}

func (r *Runner) userCredentials(cmd *cli.Command) (services.Credentials, string, error) {
	if r.spotify == nil {
		return services.Credentials{}, "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, errNoService)
	}
	creds, err := r.requireCredentials()
	if err != nil {
		return creds, "", err
	}
	rt, err := r.refreshToken(cmd)
	return creds, rt, err
}

func (r *Runner) writeOutput(out []byte, f formatter.Format) error {
	if err := r.writeBytes(out); err != nil {
		return err
	}
	if f == formatter.FormatJSON {
		return r.writeBytes([]byte("\n"))
	}
	return nil
}

// localRemote serves the player's history and shuffle/repeat keys straight from Spotify.
type localRemote struct {
	svc   *services.SpotifyService
	creds services.Credentials

	mu           sync.Mutex
	refreshToken string
}

func (l *localRemote) SetRefreshToken(rt string) {
	l.mu.Lock()
	l.refreshToken = rt
	l.mu.Unlock()
}

func (l *localRemote) token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshToken
}

func (l *localRemote) Control(ctx context.Context, action services.Action) (*services.ControlResult, error) {
	return l.svc.Control(ctx, action, l.token(), l.creds)
}

func (l *localRemote) RecentTracks(ctx context.Context) ([]models.RecentTrack, error) {
	raw, err := l.svc.RecentTracks(ctx, l.token(), l.creds, 0)
	if err != nil {
		return nil, err
	}
	return services.DecodeRecentTracks(raw)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
