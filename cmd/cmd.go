// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/dashx/internal/formatter"
	"github.com/urfave/cli/v3"
)

func refreshTokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "refresh-token",
		Usage: "Spotify refresh token (defaults to credentials.spotify.refresh_token)",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table or markdown",
		Value:   string(formatter.FormatTable),
	}
}

// serveCommand runs the dashboard API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the dashboard API (token exchange, playback control, player state)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to [server] host:port)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml to --config",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the token cache database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// spotifyCommand handles Spotify operations that call the Web API directly
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify authorization and playback commands",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authorize dashx with Spotify and store the refresh token",
				Action: r.SpotifyAuth,
			},
			{
				Name:  "token",
				Usage: "Exchange the refresh token for an access token",
				Flags: []cli.Flag{
					refreshTokenFlag(),
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.SpotifyToken,
			},
			{
				Name:   "state",
				Usage:  "Show the current player state",
				Flags:  []cli.Flag{refreshTokenFlag(), formatFlag()},
				Action: r.SpotifyState,
			},
			{
				Name:      "control",
				Usage:     "Send a playback command: play, pause, next, previous, shuffle or repeat",
				ArgsUsage: "<action>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "action"},
				},
				Flags:  []cli.Flag{refreshTokenFlag()},
				Action: r.SpotifyControl,
			},
			{
				Name:      "transfer",
				Usage:     "Move playback to another Spotify Connect device",
				ArgsUsage: "<device-id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "device"},
				},
				Flags: []cli.Flag{
					refreshTokenFlag(),
					&cli.BoolFlag{
						Name:  "play",
						Usage: "Start playback on the new device",
					},
				},
				Action: r.SpotifyTransfer,
			},
			{
				Name:  "recent",
				Usage: "List recently played tracks",
				Flags: []cli.Flag{
					refreshTokenFlag(),
					formatFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of tracks (1-50)",
						Value: 20,
					},
				},
				Action: r.SpotifyRecent,
			},
		},
	}
}

// playerCommand launches the terminal player
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "player",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive terminal player",
		Flags: []cli.Flag{
			refreshTokenFlag(),
			&cli.StringFlag{
				Name:  "server",
				Usage: "dashx server URL used for token exchange (defaults to [player] server_url)",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Exchange tokens with Spotify directly instead of through a dashx server",
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "Preferred Spotify Connect device name",
			},
		},
		Action: r.Player,
	}
}

// apiCommand handles direct calls to a running dashx server
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API calls to a dashx server",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET to the server, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// cacheCommand manages the server-side access token cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the access token cache",
		Commands: []*cli.Command{
			{
				Name:   "prune",
				Usage:  "Delete expired access tokens from the configured cache",
				Action: r.CachePrune,
			},
		},
	}
}
