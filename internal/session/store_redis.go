package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

// RedisStore keeps sessions as JSON blobs with a TTL. It suits deployments
// where sessions are short-lived and the transcript does not need to
// outlive the lesson; durable history belongs in PostgresStore.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store. Sessions expire after
// ttl of inactivity; zero means 24 hours.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "session:" + id
}

func activeKey(userID string) string {
	return "session:active:" + userID
}

func (s *RedisStore) Create(ctx context.Context, sess Session) (string, error) {
	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	sess.ID = uuid.NewString()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	if sess.Transcript == nil {
		sess.Transcript = []TranscriptEntry{}
	}

	if err := s.save(ctx, &sess); err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, activeKey(sess.UserID), sess.ID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("mark active session: %w", err)
	}
	return sess.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Active(ctx context.Context, userID string) (*Session, bool) {
	id, err := s.client.Get(ctx, activeKey(userID)).Result()
	if err != nil {
		return nil, false
	}

	sess, err := s.Get(ctx, id)
	if err != nil || sess.EndedAt != nil {
		return nil, false
	}
	return sess, true
}

func (s *RedisStore) AddMessage(ctx context.Context, sessionID string, entry TranscriptEntry) error {
	return s.update(ctx, sessionID, func(sess *Session) {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now()
		}
		sess.Transcript = append(sess.Transcript, entry)
	})
}

func (s *RedisStore) SaveState(ctx context.Context, sessionID string, state tutor.State) error {
	return s.update(ctx, sessionID, func(sess *Session) {
		sess.State = state
	})
}

func (s *RedisStore) End(ctx context.Context, id string) error {
	return s.update(ctx, id, func(sess *Session) {
		now := time.Now()
		sess.EndedAt = &now
	})
}

// update applies fn to the stored session and writes it back. Callers are
// serialized per user by the service layer, so read-modify-write is safe.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*Session)) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(sess)
	return s.save(ctx, sess)
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
