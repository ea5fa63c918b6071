package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashx/internal/repositories"
	"github.com/desertthunder/dashx/internal/services"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    *services.SpotifyService
	api        *services.APIService
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    *services.SpotifyService
	API        *services.APIService
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, spotifyCommand, playerCommand, apiCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Load reads the config file named by --config, applies environment overrides and builds the
// services commands share. Missing config files fall back to the embedded defaults.
func (r *Runner) Load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	r.configPath = path

	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		loaded, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		config = loaded
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}
	config.ApplyEnv()
	r.config = config

	level := config.Log.Level
	if l := cmd.String("log-level"); l != "" {
		level = l
	}
	shared.SetLogLevel(r.logger, level)

	if r.spotify == nil {
		r.spotify = services.NewSpotifyService(services.SpotifyOpts{HTTPClient: r.httpClient, Logger: r.logger})
	}
	if r.api == nil {
		r.api = services.NewAPIService(config.Player.ServerURL, r.httpClient)
	}
	return ctx, nil
}

// credentials returns the configured client credentials, which may be incomplete.
func (r *Runner) credentials() services.Credentials {
	return services.Credentials{
		ClientID:     r.config.Credentials.Spotify.ClientID,
		ClientSecret: r.config.Credentials.Spotify.ClientSecret,
	}
}

// refreshToken returns --refresh-token when given, else the configured token.
func (r *Runner) refreshToken(cmd *cli.Command) (string, error) {
	rt := strings.TrimSpace(cmd.String("refresh-token"))
	if rt == "" {
		rt = r.config.Credentials.Spotify.RefreshToken
	}
	if rt == "" {
		return "", fmt.Errorf("%w: run 'dashx spotify auth' or set SPOTIFY_REFRESH_TOKEN", shared.ErrMissingRefreshToken)
	}
	return rt, nil
}

// saveTokens stores the refresh token from token in the runner's config and writes it to
// configPath when one is set.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// openTokenCache builds the configured access token cache. The returned close function is never nil.
func (r *Runner) openTokenCache(ctx context.Context) (services.TokenCache, func(), error) {
	noop := func() {}

	switch backend := strings.ToLower(r.config.Cache.Backend); backend {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return services.NewMemoryTokenCache(), noop, nil
	case "sqlite":
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("failed to run migrations: %w", err)
		}
		repo := repositories.NewAccessTokenRepository(db)
		return services.NewSQLiteTokenCache(repo), func() { db.Close() }, nil
	case "redis":
		cache, err := services.NewRedisTokenCache(ctx, r.config.Cache.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return cache, func() { cache.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown cache backend %q", shared.ErrInvalidConfig, backend)
	}
}

// newSpotifyService returns the runner's service wired to the configured cache and reg.
func (r *Runner) newSpotifyService(ctx context.Context, reg prometheus.Registerer) (*services.SpotifyService, func(), error) {
	if r.spotify == nil {
		return nil, func() {}, errNoService
	}

	cache, closeCache, err := r.openTokenCache(ctx)
	if err != nil {
		return nil, closeCache, err
	}

	var metrics *services.Metrics
	if reg != nil {
		metrics = services.NewMetrics(reg)
	}
	return r.spotify.WithCache(cache, metrics), closeCache, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// requireCredentials fails early with a hint when the client credentials are not configured.
func (r *Runner) requireCredentials() (services.Credentials, error) {
	creds := r.credentials()
	if !creds.Valid() {
		return creds, fmt.Errorf("%w: set credentials.spotify.client_id/client_secret or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET", shared.ErrMissingCredentials)
	}
	return creds, nil
}

var errNoService = errors.New("spotify service not initialized")
