package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/repositories"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/redis/go-redis/v9"
)

// Cache backends accepted in [shared.CacheConfig].
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// TokenCache stores access tokens between proxied calls.
//
// Get returns [shared.ErrCacheMiss] for unknown or expired keys.
type TokenCache interface {
	Get(ctx context.Context, key string) (*models.AccessToken, error)
	Set(ctx context.Context, token *models.AccessToken) error
}

// CacheKey derives the cache key for a client id and refresh token pair.
func CacheKey(clientID, refreshToken string) string {
	sum := sha256.Sum256([]byte(clientID + ":" + refreshToken))
	return hex.EncodeToString(sum[:])
}

// MemoryTokenCache is a thread-safe in-process [TokenCache].
type MemoryTokenCache struct {
	mu    sync.RWMutex
	items map[string]models.AccessToken
	now   func() time.Time
}

// NewMemoryTokenCache creates an empty [MemoryTokenCache].
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{items: make(map[string]models.AccessToken), now: time.Now}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (*models.AccessToken, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.items[key]
	if !ok || !c.now().Before(entry.ExpiresAt) {
		return nil, shared.ErrCacheMiss
	}
	return &entry, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, token *models.AccessToken) error {
	if err := token.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[token.ID()] = *token
	return nil
}

// Prune removes expired entries and returns how many were dropped.
func (c *MemoryTokenCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now, n := c.now(), 0
	for key, entry := range c.items {
		if !now.Before(entry.ExpiresAt) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// SQLiteTokenCache persists tokens through [repositories.AccessTokenRepository].
type SQLiteTokenCache struct {
	repo *repositories.AccessTokenRepository
}

// NewSQLiteTokenCache wraps repo as a [TokenCache].
func NewSQLiteTokenCache(repo *repositories.AccessTokenRepository) *SQLiteTokenCache {
	return &SQLiteTokenCache{repo: repo}
}

func (c *SQLiteTokenCache) Get(_ context.Context, key string) (*models.AccessToken, error) {
	return c.repo.Get(key)
}

func (c *SQLiteTokenCache) Set(_ context.Context, token *models.AccessToken) error {
	return c.repo.Upsert(token)
}

// Prune deletes expired rows.
func (c *SQLiteTokenCache) Prune() (int64, error) {
	return c.repo.DeleteExpired()
}

// RedisTokenCache stores tokens in Redis with a TTL matching their expiry.
type RedisTokenCache struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type redisToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Scope       string    `json:"scope"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewRedisTokenCache connects to the Redis instance at url and verifies it responds.
func NewRedisTokenCache(ctx context.Context, url string) (*RedisTokenCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", shared.ErrInvalidConfig, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisTokenCacheWithClient(client), nil
}

// NewRedisTokenCacheWithClient wraps an existing client.
func NewRedisTokenCacheWithClient(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, prefix: "dashx:token:", now: time.Now}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (*models.AccessToken, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry redisToken
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis decode: %w", err)
	}

	return models.NewAccessToken(key, entry.AccessToken, entry.TokenType, entry.Scope, entry.ExpiresAt), nil
}

func (c *RedisTokenCache) Set(ctx context.Context, token *models.AccessToken) error {
	if err := token.Validate(); err != nil {
		return err
	}

	ttl := token.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(redisToken{
		AccessToken: token.Token,
		TokenType:   token.TokenType,
		Scope:       token.Scope,
		ExpiresAt:   token.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}

	return c.client.Set(ctx, c.prefix+token.ID(), data, ttl).Err()
}

// Close closes the underlying client.
func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}
