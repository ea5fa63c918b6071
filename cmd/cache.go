package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/dashx/internal/repositories"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/urfave/cli/v3"
)

// CachePrune deletes expired rows from the SQLite token cache.
//
// The memory cache lives only inside a running server and Redis expires keys itself, so both are
// reported as nothing to do.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	backend := r.cacheBackend()
	if backend != "sqlite" {
		return r.writePlain("Nothing to prune for cache backend %q\n", backend)
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	n, err := repositories.NewAccessTokenRepository(db).DeleteExpired()
	if err != nil {
		return fmt.Errorf("failed to prune tokens: %w", err)
	}

	r.logger.Info("pruned expired access tokens", "count", n)
	return r.writePlain("✓ Removed %d expired access token(s)\n", n)
}
