package models

import (
	"errors"
	"time"
)

// AccessToken is a short-lived Spotify access token cached under a key derived from
// the client id and refresh token. The refresh token itself is never stored.
type AccessToken struct {
	key       string
	Token     string
	TokenType string
	Scope     string
	ExpiresAt time.Time
	createdAt time.Time
	updatedAt time.Time
}

// NewAccessToken creates an [AccessToken] for key that expires at expiresAt.
func NewAccessToken(key, token, tokenType, scope string, expiresAt time.Time) *AccessToken {
	now := time.Now()
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &AccessToken{
		key:       key,
		Token:     token,
		TokenType: tokenType,
		Scope:     scope,
		ExpiresAt: expiresAt,
		createdAt: now,
		updatedAt: now,
	}
}

func (t *AccessToken) ID() string           { return t.key }
func (t *AccessToken) CreatedAt() time.Time { return t.createdAt }
func (t *AccessToken) UpdatedAt() time.Time { return t.updatedAt }

func (t *AccessToken) SetTimestamps(created, updated time.Time) {
	t.createdAt = created
	t.updatedAt = updated
}

func (t *AccessToken) SetUpdatedAt(updated time.Time) { t.updatedAt = updated }

// Validate checks the key, token and expiry are set.
func (t *AccessToken) Validate() error {
	switch {
	case t.key == "":
		return errors.New("access token key is required")
	case t.Token == "":
		return errors.New("access token value is required")
	case t.ExpiresAt.IsZero():
		return errors.New("access token expiry is required")
	}
	return nil
}

// ValidFor reports whether the token is still usable margin after now.
func (t *AccessToken) ValidFor(now time.Time, margin time.Duration) bool {
	return t.Token != "" && now.Add(margin).Before(t.ExpiresAt)
}
