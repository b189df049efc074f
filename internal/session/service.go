package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/p-n-ai/lesson-bot/internal/curriculum"
	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

// TurnClient is the per-user completion service the dialogue engine uses.
type TurnClient interface {
	tutor.Generator
	tutor.Judge
}

// Reply is the service's answer to one student message.
type Reply struct {
	Text             string
	SuggestedReplies []string
}

// ServiceConfig holds the session service's collaborators.
type ServiceConfig struct {
	Store  Store
	Events EventLogger
	// ClientFor binds the completion service to a user so budgets apply
	// per student. Nil means every turn is synthesized locally.
	ClientFor     func(userID string) TurnClient
	Lessons       *curriculum.Loader
	DefaultLesson string
}

// Service runs tutoring sessions: command handling, per-user serialization,
// one engine turn per message, and persistence of the resulting state.
type Service struct {
	store         Store
	events        EventLogger
	clientFor     func(userID string) TurnClient
	lessons       *curriculum.Loader
	defaultLesson string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a session service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Service{
		store:         store,
		events:        events,
		clientFor:     cfg.ClientFor,
		lessons:       cfg.Lessons,
		defaultLesson: cfg.DefaultLesson,
		locks:         make(map[string]*sync.Mutex),
	}
}

// HandleMessage processes one student message. Turns for the same user run
// strictly in order; different users proceed concurrently.
func (s *Service) HandleMessage(ctx context.Context, userID, text string) (Reply, error) {
	if userID == "" {
		return Reply{}, fmt.Errorf("user id is required")
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	slog.Info("handling message", "user_id", userID, "text_len", len(text))

	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return s.handleCommand(ctx, userID, strings.TrimSpace(text))
	}

	sess, found := s.store.Active(ctx, userID)
	if !found {
		created, err := s.startSession(ctx, userID, s.defaultLesson)
		if err != nil {
			return Reply{}, err
		}
		sess = created
	}

	return s.runTurn(ctx, sess, text)
}

func (s *Service) handleCommand(ctx context.Context, userID, text string) (Reply, error) {
	fields := strings.Fields(text)
	cmd := fields[0]

	switch cmd {
	case "/start":
		lessonID := s.defaultLesson
		if len(fields) > 1 {
			lessonID = fields[1]
		}
		return s.restart(ctx, userID, lessonID)

	case "/lesson":
		if len(fields) < 2 {
			return Reply{Text: "수업 이름을 함께 보내 주세요. 예: /lesson linear-eq-1"}, nil
		}
		return s.restart(ctx, userID, fields[1])

	case "/lessons":
		return s.listLessons(), nil

	default:
		return Reply{Text: fmt.Sprintf("알 수 없는 명령이에요: %s\n/start 로 수업을 시작할 수 있어요.", cmd)}, nil
	}
}

// restart ends any active session and begins the lesson from the top.
func (s *Service) restart(ctx context.Context, userID, lessonID string) (Reply, error) {
	if _, err := s.lesson(lessonID); err != nil {
		return Reply{Text: fmt.Sprintf("'%s' 수업을 찾을 수 없어요. /lessons 로 수업 목록을 확인해 주세요.", lessonID)}, nil
	}

	if active, found := s.store.Active(ctx, userID); found {
		if err := s.store.End(ctx, active.ID); err != nil {
			slog.Error("failed to end session", "session_id", active.ID, "error", err)
		}
	}

	sess, err := s.startSession(ctx, userID, lessonID)
	if err != nil {
		return Reply{}, err
	}

	// The first turn runs with no student input: the engine produces the
	// greeting and the first item.
	return s.runTurn(ctx, sess, "")
}

func (s *Service) startSession(ctx context.Context, userID, lessonID string) (*Session, error) {
	lesson, err := s.lesson(lessonID)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Create(ctx, Session{
		UserID:   userID,
		LessonID: lesson.ID,
		Subject:  lesson.Subject,
		State:    tutor.NewState(),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logEvent(ctx, Event{
		SessionID: id,
		UserID:    userID,
		Type:      EventSessionStarted,
		Data:      map[string]any{"lesson_id": lesson.ID},
	})

	return s.store.Get(ctx, id)
}

func (s *Service) runTurn(ctx context.Context, sess *Session, text string) (Reply, error) {
	lesson, err := s.lesson(sess.LessonID)
	if err != nil {
		return Reply{}, err
	}

	engine := tutor.NewEngine(tutor.EngineConfig{
		Generator: s.generatorFor(sess.UserID),
		Judge:     s.judgeFor(sess.UserID),
	})

	resp, err := engine.Turn(ctx, tutor.TurnRequest{
		State:          sess.State,
		StudentMessage: text,
		Source:         lesson.Source(),
		Subject:        lesson.Subject,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("turn failed: %w", err)
	}

	s.persistTurn(ctx, sess, text, resp)

	return Reply{
		Text:             resp.Message,
		SuggestedReplies: resp.SuggestedReplies,
	}, nil
}

// persistTurn records the exchange. Persistence failures are logged, not
// surfaced: the student already has a valid reply.
func (s *Service) persistTurn(ctx context.Context, sess *Session, text string, resp tutor.TurnResponse) {
	if strings.TrimSpace(text) != "" {
		if err := s.store.AddMessage(ctx, sess.ID, TranscriptEntry{Role: "user", Content: text}); err != nil {
			slog.Error("failed to store user message", "session_id", sess.ID, "error", err)
		}
	}
	if err := s.store.AddMessage(ctx, sess.ID, TranscriptEntry{Role: "assistant", Content: resp.Message}); err != nil {
		slog.Error("failed to store assistant message", "session_id", sess.ID, "error", err)
	}
	if err := s.store.SaveState(ctx, sess.ID, resp.NextState); err != nil {
		slog.Error("failed to save state", "session_id", sess.ID, "error", err)
	}

	s.logEvent(ctx, Event{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Type:      EventTurnCompleted,
		Data: map[string]any{
			"stage": string(resp.NextState.Stage),
			"idx":   resp.NextState.Idx,
		},
	})

	if resp.Evaluation != nil {
		s.logEvent(ctx, Event{
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Type:      EventAnswerEvaluated,
			Data: map[string]any{
				"is_correct": resp.Evaluation.IsCorrect,
				"confidence": resp.Evaluation.Confidence,
			},
		})
	}

	// Reaching wrap-up finishes the lesson; the next message starts fresh.
	if resp.NextState.Stage == tutor.StageWrapUp && sess.State.Stage != tutor.StageWrapUp {
		s.logEvent(ctx, Event{
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Type:      EventLessonFinished,
			Data:      map[string]any{"lesson_id": sess.LessonID},
		})
		if err := s.store.End(ctx, sess.ID); err != nil {
			slog.Error("failed to end session", "session_id", sess.ID, "error", err)
		}
	}
}

func (s *Service) listLessons() Reply {
	if s.lessons == nil {
		return Reply{Text: "등록된 수업이 없어요."}
	}

	all := s.lessons.AllLessons()
	if len(all) == 0 {
		return Reply{Text: "등록된 수업이 없어요."}
	}

	var b strings.Builder
	b.WriteString("수업 목록이에요:\n")
	for _, lesson := range all {
		fmt.Fprintf(&b, "- %s: %s\n", lesson.ID, lesson.Title)
	}
	b.WriteString("\n/lesson <이름> 으로 시작할 수 있어요.")
	return Reply{Text: b.String()}
}

func (s *Service) lesson(id string) (curriculum.Lesson, error) {
	if s.lessons == nil {
		return curriculum.Lesson{}, fmt.Errorf("no lesson library configured")
	}
	lesson, ok := s.lessons.Lesson(id)
	if !ok {
		return curriculum.Lesson{}, fmt.Errorf("lesson not found: %s", id)
	}
	return lesson, nil
}

func (s *Service) generatorFor(userID string) tutor.Generator {
	if s.clientFor == nil {
		return nil
	}
	return s.clientFor(userID)
}

func (s *Service) judgeFor(userID string) tutor.Judge {
	if s.clientFor == nil {
		return nil
	}
	return s.clientFor(userID)
}

func (s *Service) logEvent(ctx context.Context, event Event) {
	if err := s.events.LogEvent(ctx, event); err != nil {
		slog.Warn("failed to log event", "type", event.Type, "error", err)
	}
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}
