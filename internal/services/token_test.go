package services

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/desertthunder/dashx/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExchange(t *testing.T) {
	t.Run("Successful Grant", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})

		token, err := svc.Exchange(context.Background(), "refresh-1", testCreds)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if token.AccessToken != "access-1" {
			t.Errorf("expected access-1, got %s", token.AccessToken)
		}
		if token.TokenType != "Bearer" {
			t.Errorf("expected Bearer, got %s", token.TokenType)
		}
		if token.ExpiresIn != 3600 {
			t.Errorf("expected expires_in 3600, got %d", token.ExpiresIn)
		}
		if token.Scope != "user-read-playback-state" {
			t.Errorf("expected scope to be passed through, got %q", token.Scope)
		}
		if token.RefreshToken != "" {
			t.Errorf("expected no rotated refresh token, got %q", token.RefreshToken)
		}

		form, id, secret := stub.LastGrant()
		if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "refresh-1" {
			t.Errorf("unexpected grant form: %v", form)
		}
		if form.Get("client_secret") != "" {
			t.Error("client secret must not be sent in the body")
		}
		if id != testCreds.ClientID || secret != testCreds.ClientSecret {
			t.Errorf("unexpected basic auth %s:%s", id, secret)
		}
		if len(stub.Calls()) != 0 {
			t.Error("exchange must not call the Web API")
		}
	})

	t.Run("Rotated Refresh Token", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})
		stub.RotateRefreshToken("refresh-2")

		token, err := svc.Exchange(context.Background(), "refresh-1", testCreds)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.RefreshToken != "refresh-2" {
			t.Errorf("expected rotated token, got %q", token.RefreshToken)
		}
	})

	t.Run("Rejected Grant", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		svc, stub := newTestService(t, SpotifyOpts{Metrics: NewMetrics(reg)})
		stub.FailTokens(http.StatusBadRequest)

		_, err := svc.Exchange(context.Background(), "revoked", testCreds)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}

		var refreshErr *shared.TokenRefreshError
		if !errors.As(err, &refreshErr) {
			t.Fatalf("expected TokenRefreshError, got %T", err)
		}
		if refreshErr.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", refreshErr.StatusCode)
		}
		if !strings.Contains(refreshErr.Body, "invalid_grant") {
			t.Errorf("expected upstream body, got %q", refreshErr.Body)
		}
		if stub.Exchanges() != 1 {
			t.Errorf("expected exactly one grant, got %d", stub.Exchanges())
		}
		if got := testutil.ToFloat64(svc.metrics.exchanges.WithLabelValues("error")); got != 1 {
			t.Errorf("expected one failed exchange recorded, got %v", got)
		}
	})

	t.Run("Missing Refresh Token", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})

		if _, err := svc.Exchange(context.Background(), "", testCreds); !errors.Is(err, shared.ErrMissingRefreshToken) {
			t.Errorf("expected ErrMissingRefreshToken, got %v", err)
		}
		if stub.Exchanges() != 0 {
			t.Error("expected no outbound call")
		}
	})

	t.Run("Missing Credentials", func(t *testing.T) {
		svc, stub := newTestService(t, SpotifyOpts{})

		if _, err := svc.Exchange(context.Background(), "refresh-1", Credentials{ClientID: "id"}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
		if stub.Exchanges() != 0 {
			t.Error("expected no outbound call")
		}
	})
}

func TestAuthURL(t *testing.T) {
	svc := NewSpotifyService(SpotifyOpts{})
	raw := svc.AuthURL(testCreds, "http://127.0.0.1:3000/callback", "state-123")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid auth url: %v", err)
	}

	q := u.Query()
	if q.Get("client_id") != testCreds.ClientID {
		t.Errorf("expected client_id, got %s", q.Get("client_id"))
	}
	if q.Get("state") != "state-123" {
		t.Errorf("expected state, got %s", q.Get("state"))
	}
	if !strings.Contains(q.Get("scope"), "user-modify-playback-state") {
		t.Errorf("expected modify scope, got %s", q.Get("scope"))
	}
	if q.Get("client_secret") != "" {
		t.Error("auth url must not contain the client secret")
	}
}
