package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/dashx/internal/shared"
)

// TokenRefreshMargin is how long before expiry a cached access token is replaced.
const TokenRefreshMargin = time.Minute

// TokenSource exchanges the session's refresh token for an access token and its lifetime.
type TokenSource interface {
	AccessToken(ctx context.Context) (token string, expiresIn time.Duration, err error)
}

// TokenSourceFunc adapts a function to [TokenSource].
type TokenSourceFunc func(ctx context.Context) (string, time.Duration, error)

func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, time.Duration, error) {
	return f(ctx)
}

// tokenCache holds one access token. Fetches are serialized so concurrent callers share a single
// exchange.
type tokenCache struct {
	mu        sync.Mutex
	source    TokenSource
	clock     Clock
	token     string
	expiresAt time.Time
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clock.Now().Add(TokenRefreshMargin).Before(c.expiresAt) {
		return c.token, nil
	}
	return c.fetch(ctx)
}

func (c *tokenCache) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetch(ctx)
}

func (c *tokenCache) fetch(ctx context.Context) (string, error) {
	if c.source == nil {
		return "", shared.ErrMissingRefreshToken
	}

	token, expiresIn, err := c.source.AccessToken(ctx)
	if err != nil {
		c.token = ""
		return "", fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	if token == "" {
		c.token = ""
		return "", fmt.Errorf("%w: empty access token", shared.ErrAuthFailed)
	}

	c.token = token
	c.expiresAt = c.clock.Now().Add(expiresIn)
	return token, nil
}
