package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/dashx/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

// Serve runs the dashboard API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, closeFn, err := r.newAPIHandler(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	if !r.credentials().Valid() {
		r.logger.Warn("spotify client credentials are not configured; requests must supply clientId and clientSecret")
	}

	return server.NewServer(addr, handler, r.logger).Run(ctx)
}

// newAPIHandler builds the API with its own registry, cache and rate limiter.
func (r *Runner) newAPIHandler(ctx context.Context) (*server.BasicRouter, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, closeCache, err := r.newSpotifyService(ctx, reg)
	if err != nil {
		return nil, closeCache, fmt.Errorf("failed to configure token cache: %w", err)
	}
	r.logger.Info("token cache configured", "backend", r.cacheBackend())

	var limiter *server.RateLimiter
	if r.config.Server.RateLimit > 0 {
		limiter = server.NewRateLimiter(r.config.Server.RateLimit, r.config.Server.RateBurst)
	}

	handler := server.NewAPI(server.APIOpts{
		Spotify:     svc,
		Credentials: r.credentials(),
		Logger:      r.logger,
		Registry:    reg,
		RateLimiter: limiter,
		Version:     version,
	})
	return handler, closeCache, nil
}

func (r *Runner) cacheBackend() string {
	if r.config.Cache.Backend == "" {
		return "none"
	}
	return r.config.Cache.Backend
}
