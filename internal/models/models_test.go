package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAccessToken(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name    string
			token   *AccessToken
			wantErr bool
		}{
			{name: "valid", token: NewAccessToken("k", "tok", "", "", time.Now().Add(time.Hour))},
			{name: "missing key", token: NewAccessToken("", "tok", "", "", time.Now()), wantErr: true},
			{name: "missing value", token: NewAccessToken("k", "", "", "", time.Now()), wantErr: true},
			{name: "missing expiry", token: NewAccessToken("k", "tok", "", "", time.Time{}), wantErr: true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.token.Validate()
				if (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("defaults token type to Bearer", func(t *testing.T) {
		token := NewAccessToken("k", "tok", "", "", time.Now())
		if token.TokenType != "Bearer" {
			t.Errorf("expected Bearer, got %s", token.TokenType)
		}
	})

	t.Run("ValidFor", func(t *testing.T) {
		now := time.Now()
		token := NewAccessToken("k", "tok", "Bearer", "", now.Add(90*time.Second))

		if !token.ValidFor(now, time.Minute) {
			t.Error("expected token with 90s left to be valid for a 1m margin")
		}
		if token.ValidFor(now.Add(45*time.Second), time.Minute) {
			t.Error("expected token with 45s left to be invalid for a 1m margin")
		}
	})
}

func TestIdlePlayerState(t *testing.T) {
	state := IdlePlayerState(nil)

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	body := string(data)
	for _, want := range []string{
		`"is_playing":false`,
		`"current_track":null`,
		`"active_device":null`,
		`"devices":[]`,
		`"position_ms":0`,
		`"shuffle_state":false`,
		`"repeat_state":"off"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in %s", want, body)
		}
	}
}
