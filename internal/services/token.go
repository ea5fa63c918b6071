package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/desertthunder/dashx/internal/shared"
	"golang.org/x/oauth2"
)

// Scopes requested by the authorization-code flow. Playback control needs the modify scope,
// recently played needs its own read scope.
var Scopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"user-read-recently-played",
	"streaming",
}

// TokenResponse is the result of a refresh grant.
//
// RefreshToken is set only when the authorization server rotated it.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ExpiresAt returns the absolute expiry relative to issued.
func (t *TokenResponse) ExpiresAt(issued time.Time) time.Time {
	return issued.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// OAuthConfig builds the [oauth2.Config] for creds against this service's token endpoint.
//
// Client credentials are sent with HTTP Basic authentication.
func (s *SpotifyService) OAuthConfig(creds Credentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   spotifyAuthURL,
			TokenURL:  s.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthURL returns the authorization URL the user visits to grant access.
func (s *SpotifyService) AuthURL(creds Credentials, redirectURI, state string) string {
	return s.OAuthConfig(creds, redirectURI).AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades refreshToken for a short-lived access token with a single POST
// (grant_type=refresh_token) to the token endpoint.
//
// A rejected grant or transport failure is returned as [*shared.TokenRefreshError].
// Nothing is retried or cached here.
func (s *SpotifyService) Exchange(ctx context.Context, refreshToken string, creds Credentials) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, shared.ErrMissingRefreshToken
	}
	if !creds.Valid() {
		return nil, shared.ErrMissingCredentials
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	issued := s.now()

	token, err := s.OAuthConfig(creds, "").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		s.metrics.observeExchange("error")
		return nil, refreshError(err)
	}
	s.metrics.observeExchange("ok")

	resp := &TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   expiresIn(token, issued),
	}
	if scope, ok := token.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		resp.RefreshToken = token.RefreshToken
	}
	if resp.TokenType == "" {
		resp.TokenType = "Bearer"
	}

	return resp, nil
}

func refreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &shared.TokenRefreshError{StatusCode: re.Response.StatusCode, Body: string(re.Body)}
	}
	return &shared.TokenRefreshError{Body: err.Error()}
}

// expiresIn prefers the server-declared expires_in and falls back to the parsed expiry.
func expiresIn(token *oauth2.Token, issued time.Time) int {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	if token.Expiry.IsZero() {
		return 0
	}
	return int(math.Round(token.Expiry.Sub(issued).Seconds()))
}
