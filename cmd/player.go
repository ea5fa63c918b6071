package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashx/internal/player"
	"github.com/desertthunder/dashx/internal/services"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/desertthunder/dashx/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Player launches the terminal player against the user's Spotify account.
//
// Access tokens come from a dashx server by default, so the client secret can stay on the server;
// --local exchanges with Spotify directly using the configured credentials.
func (r *Runner) Player(ctx context.Context, cmd *cli.Command) error {
	rt, err := r.refreshToken(cmd)
	if err != nil {
		return err
	}

	// Logs go to a file so they do not corrupt the rendered view.
	logger, logFile, err := newFileLogger(r.config.Player.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger.SetLevel(r.logger.GetLevel())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	var (
		exchange func(ctx context.Context, refreshToken string) (*services.TokenResponse, error)
		remote   ui.Remote
		rotate   func(string)
	)
	if cmd.Bool("local") {
		creds, err := r.requireCredentials()
		if err != nil {
			return err
		}
		exchange = func(ctx context.Context, refreshToken string) (*services.TokenResponse, error) {
			return r.spotify.Exchange(ctx, refreshToken, creds)
		}
		local := &localRemote{svc: r.spotify, creds: creds, refreshToken: rt}
		remote, rotate = local, local.SetRefreshToken
	} else {
		api := r.api
		if addr := cmd.String("server"); addr != "" {
			api = services.NewAPIService(addr, r.httpClient)
		}
		client := api.ForUser(rt)
		exchange = client.Exchange
		remote, rotate = client, client.SetRefreshToken
	}

	onRotate := func(next string) {
		rotate(next)
		if cmd.String("refresh-token") != "" {
			return
		}
		if err := r.saveTokens(&oauth2.Token{RefreshToken: next}); err != nil {
			logger.Warn("failed to store rotated refresh token", "error", err)
		}
	}

	device := services.NewRemoteDevice(services.RemoteDeviceOpts{
		BaseURL:    r.spotify.BaseURL(),
		Logger:     logger,
		DeviceName: cmd.String("device"),
	})
	session := player.NewSession(player.Options{
		Device:       device,
		Tokens:       services.RefreshTokenSource(rt, exchange, onRotate),
		Logger:       logger,
		PollInterval: r.config.Player.PollInterval.Duration,
		SettleDelay:  r.config.Player.SettleDelay.Duration,
		StatusTTL:    r.config.Player.StatusTTL.Duration,
	})
	defer session.Close()

	go func() {
		if err := session.Connect(ctx); err != nil {
			logger.Error("player connect failed", "error", err)
		}
	}()

	model := ui.NewModel(ctx, session, remote)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running player: %w", err)
	}
	return nil
}

func newFileLogger(path string) (*log.Logger, *os.File, error) {
	if path == "" {
		path = "dashx-player.log"
	}
	return shared.NewFileLogger(path)
}
