package store_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/simon-b64/study-questions/internal/store"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("study"),
		tcpostgres.WithUsername("study"),
		tcpostgres.WithPassword("study"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresRemote_RoundTrip(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	remote, err := store.NewPostgresRemote(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresRemote() error = %v", err)
	}
	if !remote.Available() {
		t.Fatal("Available() = false")
	}

	p := sampleProgress(t)
	if err := remote.SaveProgress(ctx, "user-1", p); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	got, err := remote.LoadProgress(ctx, "user-1", "sample")
	if err != nil {
		t.Fatalf("LoadProgress() error = %v", err)
	}
	if got == nil {
		t.Fatal("LoadProgress() returned nil for saved record")
	}

	// Dates must round-trip exactly; compare the serialized forms to
	// sidestep time.Time location internals.
	wantJSON, _ := json.Marshal(p)
	gotJSON, _ := json.Marshal(*got)
	if !bytes.Equal(wantJSON, gotJSON) {
		t.Errorf("round trip mismatch:\ngot  %s\nwant %s", gotJSON, wantJSON)
	}
}

func TestPostgresRemote_PreservesNanosecondActivity(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	remote, err := store.NewPostgresRemote(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresRemote() error = %v", err)
	}

	// timestamptz only holds microseconds; a record written with
	// sub-microsecond activity must still compare equal after a reload,
	// otherwise every resolve sees the local copy as strictly newer.
	activity := time.Date(2026, 4, 1, 9, 30, 0, 123456789, time.UTC)
	p := sampleProgress(t)
	p.LastActivityAt = &activity

	if err := remote.SaveProgress(ctx, "user-1", p); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	got, err := remote.LoadProgress(ctx, "user-1", "sample")
	if err != nil {
		t.Fatalf("LoadProgress() error = %v", err)
	}
	if got == nil || got.LastActivityAt == nil {
		t.Fatal("LoadProgress() lost the activity timestamp")
	}
	if !got.LastActivityAt.Equal(activity) {
		t.Errorf("LastActivityAt = %v, want %v", got.LastActivityAt, activity)
	}
}

func TestPostgresRemote_LoadAbsent(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	remote, err := store.NewPostgresRemote(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresRemote() error = %v", err)
	}

	got, err := remote.LoadProgress(ctx, "user-1", "nope")
	if err != nil {
		t.Fatalf("LoadProgress() error = %v", err)
	}
	if got != nil {
		t.Errorf("LoadProgress() = %+v, want nil", got)
	}
}

func TestPostgresRemote_UpsertAndClear(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	remote, err := store.NewPostgresRemote(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresRemote() error = %v", err)
	}

	p := sampleProgress(t)
	if err := remote.SaveProgress(ctx, "user-1", p); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	p.CurrentStreak = 9
	if err := remote.SaveProgress(ctx, "user-1", p); err != nil {
		t.Fatalf("second SaveProgress() error = %v", err)
	}

	got, err := remote.LoadProgress(ctx, "user-1", "sample")
	if err != nil {
		t.Fatalf("LoadProgress() error = %v", err)
	}
	if got.CurrentStreak != 9 {
		t.Errorf("CurrentStreak = %d, want 9", got.CurrentStreak)
	}

	// Records are scoped per owner.
	other, err := remote.LoadProgress(ctx, "user-2", "sample")
	if err != nil {
		t.Fatalf("LoadProgress() for other owner error = %v", err)
	}
	if other != nil {
		t.Error("record leaked across owners")
	}

	if err := remote.ClearProgress(ctx, "user-1", "sample"); err != nil {
		t.Fatalf("ClearProgress() error = %v", err)
	}
	got, err = remote.LoadProgress(ctx, "user-1", "sample")
	if err != nil {
		t.Fatalf("LoadProgress() after clear error = %v", err)
	}
	if got != nil {
		t.Error("record still present after ClearProgress()")
	}

	// Clearing an absent record is fine.
	if err := remote.ClearProgress(ctx, "user-1", "sample"); err != nil {
		t.Fatalf("second ClearProgress() error = %v", err)
	}
}
