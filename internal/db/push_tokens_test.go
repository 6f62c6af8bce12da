package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// testRepository connects to TEST_DATABASE_URL, which must point at a
// migrated database. Tests are skipped when it is unset.
func testRepository(t *testing.T) *Repository {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := New(ctx, Config{URL: url}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(database.Close)

	return NewRepository(database, zap.NewNop())
}

func createTestUser(t *testing.T, repo *Repository) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := repo.db.Pool().QueryRow(context.Background(),
		`INSERT INTO users (full_name) VALUES ('Token Tester') RETURNING id`,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	t.Cleanup(func() {
		repo.db.Pool().Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestDisablePushToken_Idempotent(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	userID := createTestUser(t, repo)
	token := "ExponentPushToken[" + uuid.NewString() + "]"

	if err := repo.UpsertPushToken(ctx, &PushToken{UserID: userID, Token: token}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := repo.DisablePushToken(ctx, token); err != nil {
		t.Fatalf("first disable: %v", err)
	}

	var first time.Time
	if err := repo.db.Pool().QueryRow(ctx,
		`SELECT disabled_at FROM push_tokens WHERE expo_push_token = $1`, token,
	).Scan(&first); err != nil {
		t.Fatalf("read disabled_at: %v", err)
	}

	if err := repo.DisablePushToken(ctx, token); err != nil {
		t.Fatalf("second disable: %v", err)
	}

	var (
		rows       int
		disabledAt *time.Time
	)
	if err := repo.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*), MAX(disabled_at) FROM push_tokens WHERE expo_push_token = $1`, token,
	).Scan(&rows, &disabledAt); err != nil {
		t.Fatalf("read row: %v", err)
	}

	if rows != 1 {
		t.Errorf("expected one row, got %d", rows)
	}
	if disabledAt == nil {
		t.Fatal("expected disabled_at to be set")
	}
	if !disabledAt.Equal(first) {
		t.Errorf("second disable moved disabled_at from %s to %s", first, disabledAt)
	}

	active, err := repo.ActiveTokensForUsers(ctx, []uuid.UUID{userID})
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active tokens, got %d", len(active))
	}
}

func TestDisablePushToken_UnknownToken(t *testing.T) {
	repo := testRepository(t)

	if err := repo.DisablePushToken(context.Background(), "ExponentPushToken[missing]"); err != nil {
		t.Errorf("disabling an unknown token should not fail, got %v", err)
	}
}
