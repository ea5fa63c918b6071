package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/dashx/internal/models"
	"github.com/desertthunder/dashx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestAccessTokenRepository(t *testing.T) {
	hour := time.Now().Add(time.Hour).Truncate(time.Second)

	t.Run("Create and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		token := models.NewAccessToken("key-1", "access-1", "Bearer", "user-read-playback-state", hour)

		if err := repo.Create(token); err != nil {
			t.Fatalf("failed to create token: %v", err)
		}

		got, err := repo.Get("key-1")
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}

		if got.Token != "access-1" {
			t.Errorf("expected access-1, got %s", got.Token)
		}
		if got.Scope != "user-read-playback-state" {
			t.Errorf("expected scope to round-trip, got %s", got.Scope)
		}
		if !got.ExpiresAt.Equal(hour) {
			t.Errorf("expected expiry %v, got %v", hour, got.ExpiresAt)
		}
	})

	t.Run("Create duplicate fails", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		if err := repo.Create(models.NewAccessToken("dup", "a", "", "", hour)); err != nil {
			t.Fatalf("failed to create token: %v", err)
		}
		if err := repo.Create(models.NewAccessToken("dup", "b", "", "", hour)); err == nil {
			t.Fatal("expected error for duplicate key")
		}
	})

	t.Run("Create validates", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		if err := repo.Create(models.NewAccessToken("k", "", "", "", hour)); err == nil {
			t.Fatal("expected validation error for empty token")
		}
	})

	t.Run("Get expired is a miss", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		if err := repo.Create(models.NewAccessToken("old", "a", "", "", time.Now().Add(-time.Minute))); err != nil {
			t.Fatalf("failed to create token: %v", err)
		}

		_, err := repo.Get("old")
		if !errors.Is(err, shared.ErrCacheMiss) {
			t.Fatalf("expected ErrCacheMiss, got %v", err)
		}
	})

	t.Run("Get missing is a miss", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewAccessTokenRepository(db).Get("nope")
		if !errors.Is(err, shared.ErrCacheMiss) {
			t.Fatalf("expected ErrCacheMiss, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		token := models.NewAccessToken("key", "first", "", "", hour)
		if err := repo.Create(token); err != nil {
			t.Fatalf("failed to create token: %v", err)
		}

		token.Token = "second"
		if err := repo.Update(token); err != nil {
			t.Fatalf("failed to update token: %v", err)
		}

		got, err := repo.Get("key")
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}
		if got.Token != "second" {
			t.Errorf("expected second, got %s", got.Token)
		}

		t.Run("NotFound", func(t *testing.T) {
			missing := models.NewAccessToken("missing", "x", "", "", hour)
			if err := repo.Update(missing); err == nil {
				t.Fatal("expected error updating missing token")
			}
		})
	})

	t.Run("Upsert", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		if err := repo.Upsert(models.NewAccessToken("key", "first", "", "", hour)); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
		if err := repo.Upsert(models.NewAccessToken("key", "second", "", "", hour.Add(time.Hour))); err != nil {
			t.Fatalf("failed to replace: %v", err)
		}

		tokens, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(tokens) != 1 || tokens[0].Token != "second" {
			t.Fatalf("expected a single replaced token, got %+v", tokens)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		if err := repo.Create(models.NewAccessToken("key", "a", "", "", hour)); err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if err := repo.Delete("key"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if err := repo.Delete("key"); err == nil {
			t.Fatal("expected error deleting twice")
		}
	})

	t.Run("List and DeleteExpired", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAccessTokenRepository(db)
		for key, expiry := range map[string]time.Time{
			"live":    hour,
			"expired": time.Now().Add(-time.Hour),
		} {
			if err := repo.Create(models.NewAccessToken(key, "v", "", "", expiry)); err != nil {
				t.Fatalf("failed to create %s: %v", key, err)
			}
		}

		live, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(live) != 1 || live[0].ID() != "live" {
			t.Errorf("expected only the live token, got %d", len(live))
		}

		all, err := repo.List(map[string]any{"include_expired": true})
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 tokens, got %d", len(all))
		}

		n, err := repo.DeleteExpired()
		if err != nil {
			t.Fatalf("failed to delete expired: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 expired row deleted, got %d", n)
		}
	})
}
