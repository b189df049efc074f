package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Session state is kept as a
// jsonb column so cursor fields can evolve without migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Schema creates the tables the store needs. Callers run it once at
// startup; it is idempotent.
func (s *PostgresStore) Schema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id    text NOT NULL,
			lesson_id  text NOT NULL,
			subject    text,
			state      jsonb NOT NULL DEFAULT '{}'::jsonb,
			started_at timestamptz NOT NULL DEFAULT now(),
			ended_at   timestamptz
		);
		CREATE INDEX IF NOT EXISTS sessions_active_idx
			ON sessions (user_id) WHERE ended_at IS NULL;
		CREATE TABLE IF NOT EXISTS session_messages (
			id            bigserial PRIMARY KEY,
			session_id    uuid NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role          text NOT NULL,
			content       text NOT NULL,
			model         text,
			input_tokens  int,
			output_tokens int,
			created_at    timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS session_messages_session_idx
			ON session_messages (session_id, created_at);
		CREATE TABLE IF NOT EXISTS session_events (
			id         bigserial PRIMARY KEY,
			session_id uuid NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id    text NOT NULL,
			event_type text NOT NULL,
			data       jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, sess Session) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	stateJSON, err := json.Marshal(sess.State)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}

	startedAt := sess.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO sessions (user_id, lesson_id, subject, state, started_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)
		 RETURNING id::text`,
		sess.UserID,
		sess.LessonID,
		nullIfEmpty(sess.Subject),
		string(stateJSON),
		startedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	for _, entry := range sess.Transcript {
		if err := s.AddMessage(ctx, id, entry); err != nil {
			return "", fmt.Errorf("save initial transcript: %w", err)
		}
	}

	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sess, err := s.scanSession(ctx,
		`SELECT id::text, user_id, lesson_id, subject, state, started_at, ended_at
		 FROM sessions
		 WHERE id = $1::uuid
		 LIMIT 1`,
		id,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT role, content, model, input_tokens, output_tokens, created_at
		 FROM session_messages
		 WHERE session_id = $1::uuid
		 ORDER BY created_at ASC, id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry TranscriptEntry
		var model *string
		var inputTokens, outputTokens *int
		if err := rows.Scan(
			&entry.Role,
			&entry.Content,
			&model,
			&inputTokens,
			&outputTokens,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		if model != nil {
			entry.Model = *model
		}
		if inputTokens != nil {
			entry.InputTokens = *inputTokens
		}
		if outputTokens != nil {
			entry.OutputTokens = *outputTokens
		}
		sess.Transcript = append(sess.Transcript, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}

	return sess, nil
}

func (s *PostgresStore) Active(ctx context.Context, userID string) (*Session, bool) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sess, err := s.scanSession(ctx,
		`SELECT id::text, user_id, lesson_id, subject, state, started_at, ended_at
		 FROM sessions
		 WHERE user_id = $1
		   AND ended_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userID,
	)
	if err != nil {
		return nil, false
	}
	return sess, true
}

func (s *PostgresStore) AddMessage(ctx context.Context, sessionID string, entry TranscriptEntry) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if entry.Role == "" {
		return fmt.Errorf("message role is required")
	}
	if entry.Content == "" {
		return fmt.Errorf("message content is required")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO session_messages (session_id, role, content, model, input_tokens, output_tokens, created_at)
		 SELECT $1::uuid, $2, $3, $4, $5, $6, $7
		 WHERE EXISTS (SELECT 1 FROM sessions WHERE id = $1::uuid)`,
		sessionID,
		entry.Role,
		entry.Content,
		nullIfEmpty(entry.Model),
		nullIfZero(entry.InputTokens),
		nullIfZero(entry.OutputTokens),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	return nil
}

func (s *PostgresStore) SaveState(ctx context.Context, sessionID string, state tutor.State) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE sessions SET state = $2::jsonb WHERE id = $1::uuid`,
		sessionID,
		string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	return nil
}

func (s *PostgresStore) End(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = now() WHERE id = $1::uuid AND ended_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func (s *PostgresStore) scanSession(ctx context.Context, query string, args ...any) (*Session, error) {
	sess := &Session{}
	var subject *string
	var endedAt *time.Time
	var stateBytes []byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.LessonID,
		&subject,
		&stateBytes,
		&sess.StartedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if subject != nil {
		sess.Subject = *subject
	}
	sess.EndedAt = endedAt
	sess.Transcript = []TranscriptEntry{}
	if len(stateBytes) > 0 {
		if err := json.Unmarshal(stateBytes, &sess.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
	}

	return sess, nil
}

func nullIfZero(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
