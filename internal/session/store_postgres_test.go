package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

// startPostgres spins up a throwaway Postgres and returns a connected pool.
// Skipped when Docker is not available.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lessons"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresStore_Roundtrip(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store, err := session.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	if err := store.Schema(ctx); err != nil {
		t.Fatalf("Schema() error = %v", err)
	}

	id, err := store.Create(ctx, session.Session{
		UserID:   "42",
		LessonID: "linear-eq-1",
		Subject:  "math",
		State:    tutor.NewState(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.AddMessage(ctx, id, session.TranscriptEntry{
		Role:         "assistant",
		Content:      "안녕하세요!",
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: 5,
	}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	next := tutor.State{
		Stage:          tutor.StagePractice,
		Idx:            0,
		Awaiting:       tutor.AwaitFreeAnswer,
		ExpectedAnswer: "4",
		LastAsked:      tutor.AskedFreeAnswer,
	}
	if err := store.SaveState(ctx, id, next); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LessonID != "linear-eq-1" || got.Subject != "math" {
		t.Errorf("session = %+v", got)
	}
	if got.State != next {
		t.Errorf("State = %+v, want %+v (jsonb round trip)", got.State, next)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].Model != "mock" {
		t.Errorf("Transcript = %+v", got.Transcript)
	}

	active, found := store.Active(ctx, "42")
	if !found || active.ID != id {
		t.Errorf("Active() = (%+v, %v), want the open session", active, found)
	}

	if err := store.End(ctx, id); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, found := store.Active(ctx, "42"); found {
		t.Error("Active() should not find an ended session")
	}
}

func TestPostgresStore_EventLogger(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store, err := session.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	if err := store.Schema(ctx); err != nil {
		t.Fatalf("Schema() error = %v", err)
	}

	id, err := store.Create(ctx, session.Session{UserID: "7", LessonID: "a"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	logger := session.NewPostgresEventLogger(pool)
	if err := logger.LogEvent(ctx, session.Event{
		SessionID: id,
		UserID:    "7",
		Type:      session.EventTurnCompleted,
		Data:      map[string]any{"stage": "key_points"},
	}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM session_events WHERE session_id = $1::uuid`, id,
	).Scan(&count); err != nil {
		t.Fatalf("counting events: %v", err)
	}
	if count != 1 {
		t.Errorf("events = %d, want 1", count)
	}

	err = logger.LogEvent(ctx, session.Event{
		SessionID: "00000000-0000-0000-0000-000000000000",
		UserID:    "7",
		Type:      session.EventTurnCompleted,
	})
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("LogEvent() error = %v, want ErrNotFound for missing session", err)
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store, err := session.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	if err := store.Schema(ctx); err != nil {
		t.Fatalf("Schema() error = %v", err)
	}

	missing := "00000000-0000-0000-0000-000000000000"
	if _, err := store.Get(ctx, missing); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := store.End(ctx, missing); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("End() error = %v, want ErrNotFound", err)
	}
}
