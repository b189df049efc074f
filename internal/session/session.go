// Package session persists tutoring sessions: the pedagogical cursor, the
// transcript, and the analytics events a session emits.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session: not found")

// TranscriptEntry is a single message in a session's transcript.
type TranscriptEntry struct {
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is one student's run through one lesson.
type Session struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	LessonID   string            `json:"lesson_id"`
	Subject    string            `json:"subject,omitempty"`
	State      tutor.State       `json:"state"`
	Transcript []TranscriptEntry `json:"transcript"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
}

// Store persists sessions. The state written by SaveState must be visible
// to the next Get for the same session.
type Store interface {
	Create(ctx context.Context, s Session) (string, error)
	Get(ctx context.Context, id string) (*Session, error)
	Active(ctx context.Context, userID string) (*Session, bool)
	AddMessage(ctx context.Context, sessionID string, entry TranscriptEntry) error
	SaveState(ctx context.Context, sessionID string, state tutor.State) error
	End(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (s *MemoryStore) Create(_ context.Context, sess Session) (string, error) {
	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	sess.ID = id
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	if sess.Transcript == nil {
		sess.Transcript = []TranscriptEntry{}
	}
	s.sessions[id] = &sess
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *sess
	copied.Transcript = append([]TranscriptEntry{}, sess.Transcript...)
	return &copied, nil
}

func (s *MemoryStore) Active(_ context.Context, userID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.EndedAt == nil {
			copied := *sess
			copied.Transcript = append([]TranscriptEntry{}, sess.Transcript...)
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) AddMessage(_ context.Context, sessionID string, entry TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	sess.Transcript = append(sess.Transcript, entry)
	return nil
}

func (s *MemoryStore) SaveState(_ context.Context, sessionID string, state tutor.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	sess.State = state
	return nil
}

func (s *MemoryStore) End(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := time.Now()
	sess.EndedAt = &now
	return nil
}
