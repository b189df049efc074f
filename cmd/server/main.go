package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/p-n-ai/lesson-bot/internal/ai"
	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/curriculum"
	"github.com/p-n-ai/lesson-bot/internal/platform/cache"
	"github.com/p-n-ai/lesson-bot/internal/platform/config"
	"github.com/p-n-ai/lesson-bot/internal/platform/database"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.gateway.StartAll(ctx, a.handleInbound); err != nil {
		slog.Error("starting channels failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      a.newMux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	a.gateway.StopAll()
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// app holds every wired component for the lifetime of the process.
type app struct {
	cfg     *config.Config
	db      *database.DB
	cache   *cache.Cache
	router  *ai.Router
	client  *ai.Client
	lessons *curriculum.Loader
	svc     *session.Service
	gateway *chat.Gateway
	ws      *chat.WebSocketChannel
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	lessons, err := curriculum.NewLoader(cfg.Engine.LessonPath)
	if err != nil {
		return nil, fmt.Errorf("loading lessons from %s: %w", cfg.Engine.LessonPath, err)
	}
	a.lessons = lessons
	slog.Info("lessons loaded", "path", cfg.Engine.LessonPath, "count", len(lessons.AllLessons()))

	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.db = db
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		a.cache = c
	}

	if err := a.buildAIClient(); err != nil {
		a.close()
		return nil, err
	}

	store, events, err := a.buildSessionBackend(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var clientFor func(string) session.TurnClient
	if a.client != nil {
		clientFor = func(userID string) session.TurnClient {
			return a.client.ForUser(userID)
		}
	}
	a.svc = session.NewService(session.ServiceConfig{
		Store:         store,
		Events:        events,
		ClientFor:     clientFor,
		Lessons:       lessons,
		DefaultLesson: cfg.Engine.DefaultLesson,
	})

	a.gateway = chat.NewGateway()
	a.ws = chat.NewWebSocketChannel()
	a.gateway.Register("websocket", a.ws)
	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			a.close()
			return nil, err
		}
		a.gateway.Register("telegram", tg)
	}

	return a, nil
}

func (a *app) buildAIClient() error {
	if !a.cfg.HasAIProvider() {
		slog.Warn("no AI provider configured, turns will use scripted lesson content only")
		return nil
	}

	router := ai.NewRouter()
	if key := a.cfg.AI.OpenAI.APIKey; key != "" {
		router.Register("openai", ai.NewOpenAIProvider(key))
	}
	if key := a.cfg.AI.Anthropic.APIKey; key != "" {
		p, err := ai.NewAnthropicProvider(key)
		if err != nil {
			return fmt.Errorf("configuring anthropic: %w", err)
		}
		router.Register("anthropic", p)
	}
	if key := a.cfg.AI.DeepSeek.APIKey; key != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(key))
	}
	if a.cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(ai.WithBaseURL(a.cfg.AI.Ollama.URL)))
	}
	a.router = router

	var budget ai.BudgetChecker
	if a.cache != nil {
		budget = ai.NewRedisBudget(a.cache.Client, a.cfg.AI.DailyTokenBudget)
	} else {
		if a.cfg.AI.DailyTokenBudget > 0 {
			slog.Warn("daily token budget requires a cache, running unlimited")
		}
		budget = ai.NewInMemoryBudget()
	}

	a.client = ai.NewClient(ai.ClientConfig{
		Router:        router,
		Budget:        budget,
		Limiter:       rate.NewLimiter(rate.Limit(a.cfg.AI.RateRPS), a.cfg.AI.RateBurst),
		TeachingModel: a.cfg.AI.TeachingModel,
		GradingModel:  a.cfg.AI.GradingModel,
		MaxTokens:     a.cfg.AI.MaxTokens,
	})
	return nil
}

func (a *app) buildSessionBackend(ctx context.Context) (session.Store, session.EventLogger, error) {
	switch a.cfg.Engine.SessionStore {
	case "postgres":
		store, err := session.NewPostgresStore(a.db.Pool)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Schema(ctx); err != nil {
			return nil, nil, fmt.Errorf("applying schema: %w", err)
		}
		return store, session.NewPostgresEventLogger(a.db.Pool), nil
	case "redis":
		return session.NewRedisStore(a.cache.Client, 0), session.NopEventLogger{}, nil
	default:
		return session.NewMemoryStore(), session.NopEventLogger{}, nil
	}
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// handleInbound runs one turn for a channel message and sends the reply back
// on the same channel.
func (a *app) handleInbound(msg chat.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_ = a.gateway.SendTyping(ctx, msg.Channel, msg.UserID)

	reply, err := a.svc.HandleMessage(ctx, msg.UserID, msg.Text)
	if err != nil {
		slog.Error("turn failed", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		reply = session.Reply{Text: "죄송해요, 잠시 문제가 생겼어요. 다시 한 번 보내 주세요."}
	}

	if err := a.gateway.Send(ctx, chat.OutboundMessage{
		Channel:          msg.Channel,
		UserID:           msg.UserID,
		Text:             reply.Text,
		SuggestedReplies: reply.SuggestedReplies,
	}); err != nil {
		slog.Error("sending reply failed", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
	}
}

// newMux creates the HTTP router.
func (a *app) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.HandleFunc("GET /v1/lessons", a.handleLessons)
	mux.HandleFunc("POST /v1/turn", a.handleTurn)
	if a.ws != nil {
		mux.Handle("GET /ws", a.ws)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if a.db != nil {
		if err := a.db.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
			return
		}
	}
	if a.cache != nil {
		if err := a.cache.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "cache unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *app) handleLessons(w http.ResponseWriter, _ *http.Request) {
	type item struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Subject string `json:"subject"`
	}
	var out []item
	for _, l := range a.lessons.AllLessons() {
		out = append(out, item{ID: l.ID, Title: l.Title, Subject: l.Subject})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lessons": out})
}

// turnRequest is the stateless turn API: the caller holds the state.
type turnRequest struct {
	LessonID string       `json:"lesson_id"`
	State    *tutor.State `json:"state"`
	Message  string       `json:"message"`
}

func (a *app) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	lesson, ok := a.lessons.Lesson(req.LessonID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown lesson: %s", req.LessonID)})
		return
	}

	state := tutor.NewState()
	if req.State != nil {
		state = *req.State
	}

	var gen tutor.Generator
	var judge tutor.Judge
	if a.client != nil {
		gen, judge = a.client, a.client
	}
	engine := tutor.NewEngine(tutor.EngineConfig{Generator: gen, Judge: judge})

	resp, err := engine.Turn(r.Context(), tutor.TurnRequest{
		State:          state,
		StudentMessage: req.Message,
		Source:         lesson.Source(),
		Subject:        lesson.Subject,
	})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}
