package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
)

// AccessTokenRepository implements [models.Repository] for [models.AccessToken] persistence.
type AccessTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ models.Repository[*models.AccessToken] = (*AccessTokenRepository)(nil)

// NewAccessTokenRepository creates a new [AccessTokenRepository] with the given database connection
func NewAccessTokenRepository(db *sql.DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db, now: time.Now}
}

// Create inserts a new token. Fails if the key already exists.
func (r *AccessTokenRepository) Create(token *models.AccessToken) error {
	if err := token.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO access_tokens (key, access_token, token_type, scope, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, token.ID(), token.Token, token.TokenType, token.Scope,
		token.ExpiresAt.UTC(), token.CreatedAt().UTC(), token.UpdatedAt().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert access token: %w", err)
	}

	return nil
}

// Get retrieves an unexpired token by key. Expired or missing rows return [shared.ErrCacheMiss].
func (r *AccessTokenRepository) Get(key string) (*models.AccessToken, error) {
	query := `
		SELECT key, access_token, token_type, scope, expires_at, created_at, updated_at
		FROM access_tokens
		WHERE key = ? AND expires_at > ?
	`

	token, err := scanAccessToken(r.db.QueryRow(query, key, r.now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrCacheMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query access token: %w", err)
	}

	return token, nil
}

// Update replaces the token value and expiry for an existing key.
func (r *AccessTokenRepository) Update(token *models.AccessToken) error {
	if err := token.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := r.now()
	token.SetUpdatedAt(now)

	query := `
		UPDATE access_tokens
		SET access_token = ?, token_type = ?, scope = ?, expires_at = ?, updated_at = ?
		WHERE key = ?
	`

	result, err := r.db.Exec(query, token.Token, token.TokenType, token.Scope, token.ExpiresAt.UTC(), now.UTC(), token.ID())
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("access token not found: %s", token.ID())
	}

	return nil
}

// Upsert inserts token or replaces the row stored under the same key.
func (r *AccessTokenRepository) Upsert(token *models.AccessToken) error {
	if err := token.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO access_tokens (key, access_token, token_type, scope, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			access_token = excluded.access_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	now := r.now().UTC()
	_, err := r.db.Exec(query, token.ID(), token.Token, token.TokenType, token.Scope, token.ExpiresAt.UTC(), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert access token: %w", err)
	}
	return nil
}

// Delete removes a token by key
func (r *AccessTokenRepository) Delete(key string) error {
	result, err := r.db.Exec("DELETE FROM access_tokens WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("access token not found: %s", key)
	}

	return nil
}

// DeleteExpired removes every expired row and returns how many were deleted.
func (r *AccessTokenRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec("DELETE FROM access_tokens WHERE expires_at <= ?", r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired access tokens: %w", err)
	}
	return result.RowsAffected()
}

// List retrieves tokens matching criteria. Supported keys: "include_expired" (bool).
func (r *AccessTokenRepository) List(criteria map[string]any) ([]*models.AccessToken, error) {
	query := `
		SELECT key, access_token, token_type, scope, expires_at, created_at, updated_at
		FROM access_tokens
	`

	args := []any{}
	if includeExpired, _ := criteria["include_expired"].(bool); !includeExpired {
		query += " WHERE expires_at > ?"
		args = append(args, r.now().UTC())
	}

	query += " ORDER BY expires_at ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.AccessToken
	for rows.Next() {
		token, err := scanAccessToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tokens, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccessToken(row scanner) (*models.AccessToken, error) {
	var (
		key       string
		value     string
		tokenType string
		scope     string
		expiresAt time.Time
		createdAt time.Time
		updatedAt time.Time
	)

	if err := row.Scan(&key, &value, &tokenType, &scope, &expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	token := models.NewAccessToken(key, value, tokenType, scope, expiresAt)
	token.SetTimestamps(createdAt, updatedAt)
	return token, nil
}
