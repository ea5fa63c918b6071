package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
)

// RequestOptions customizes a proxied call. Method defaults to GET.
type RequestOptions struct {
	Method string
	Body   []byte
	Header http.Header
}

// JSONBody marshals v into a request body.
func JSONBody(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("services: unmarshalable request body: %v", err))
	}
	return data
}

// APIResult is the raw upstream response together with the access token used to obtain it.
//
// The caller owns Response.Body.
type APIResult struct {
	Response    *http.Response
	AccessToken string
}

// OK reports whether the upstream status is 2xx.
func (r *APIResult) OK() bool {
	return r.Response.StatusCode >= 200 && r.Response.StatusCode < 300
}

// Close drains and closes the response body.
func (r *APIResult) Close() {
	io.Copy(io.Discard, r.Response.Body)
	r.Response.Body.Close()
}

// CallAPI exchanges refreshToken for an access token and performs one request against endpoint,
// which is either a path under the Web API base ("/me/player") or an absolute URL.
//
// Content-Type defaults to application/json. Caller headers override it, but Authorization is always
// the bearer token obtained here. The response is returned whatever its status; nothing is retried.
func (s *SpotifyService) CallAPI(ctx context.Context, endpoint, refreshToken string, creds Credentials, opts *RequestOptions) (*APIResult, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	accessToken, err := s.accessToken(ctx, refreshToken, creds)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.resolve(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, values := range opts.Header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.metrics.observeUpstream(method, req.URL.Path, 0)
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	s.metrics.observeUpstream(method, req.URL.Path, resp.StatusCode)

	s.logger.Debug("spotify api call", "method", method, "path", req.URL.Path, "status", resp.StatusCode)

	return &APIResult{Response: resp, AccessToken: accessToken}, nil
}

func (s *SpotifyService) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return s.baseURL + endpoint
}

// accessToken returns a token for the refresh grant, consulting the cache when one is configured.
// Any cache failure falls back to a fresh exchange.
func (s *SpotifyService) accessToken(ctx context.Context, refreshToken string, creds Credentials) (string, error) {
	if s.cache == nil {
		token, err := s.Exchange(ctx, refreshToken, creds)
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	}

	if refreshToken == "" {
		return "", shared.ErrMissingRefreshToken
	}

	key := CacheKey(creds.ClientID, refreshToken)
	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil && cached.ValidFor(s.now(), tokenMargin):
		s.metrics.observeCache("hit")
		return cached.Token, nil
	case err != nil && !errors.Is(err, shared.ErrCacheMiss):
		s.logger.Warn("token cache lookup failed", "error", err)
	}
	s.metrics.observeCache("miss")

	issued := s.now()
	token, err := s.Exchange(ctx, refreshToken, creds)
	if err != nil {
		return "", err
	}

	entry := models.NewAccessToken(key, token.AccessToken, token.TokenType, token.Scope, token.ExpiresAt(issued))
	if err := s.cache.Set(ctx, entry); err != nil {
		s.logger.Warn("token cache store failed", "error", err)
	}

	return token.AccessToken, nil
}

// readBody reads at most 64KiB of an upstream error body for diagnostics.
func readBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return string(data)
}
