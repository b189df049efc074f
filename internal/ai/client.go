package ai

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

// ClientConfig wires a Client to its router and policies.
type ClientConfig struct {
	Router *Router
	Budget BudgetChecker
	// Limiter is shared by every user of this client; the engine's two
	// sequential calls per turn both pass through it. Nil means unlimited.
	Limiter       *rate.Limiter
	TeachingModel string
	GradingModel  string
	MaxTokens     int
}

// Client is the engine-facing completion service. It satisfies both of the
// dialogue engine's ports: turn generation and answer judging. A client is
// bound to one user with ForUser so budgets apply per student.
type Client struct {
	cfg    ClientConfig
	userID string
}

// NewClient creates a completion client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg}
}

// ForUser returns a copy of the client whose budget is charged to userID.
func (c *Client) ForUser(userID string) *Client {
	bound := *c
	bound.userID = userID
	return &bound
}

// Generate produces one tutoring turn. Structured mode asks providers for a
// JSON-object response; free-form leaves the output format to the model.
func (c *Client) Generate(ctx context.Context, p tutor.Prompt, mode tutor.Mode) (string, error) {
	resp, err := c.complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Model:      c.cfg.TeachingModel,
		Structured: mode == tutor.ModeStructured,
		Task:       TaskTeaching,
		MaxTokens:  c.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Judge grades a student answer against the given rubric prompt.
func (c *Client) Judge(ctx context.Context, rubric string) (string, error) {
	resp, err := c.complete(ctx, CompletionRequest{
		Messages:   []Message{{Role: "user", Content: rubric}},
		Model:      c.cfg.GradingModel,
		Structured: true,
		Task:       TaskGrading,
		MaxTokens:  c.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return CompletionResponse{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if c.cfg.Budget != nil && c.userID != "" {
		ok, err := c.cfg.Budget.Check(ctx, c.userID)
		if err != nil {
			return CompletionResponse{}, fmt.Errorf("checking budget: %w", err)
		}
		if !ok {
			return CompletionResponse{}, fmt.Errorf("%w: user %s", ErrBudgetExhausted, c.userID)
		}
	}

	resp, err := c.cfg.Router.Complete(ctx, req)
	if err != nil {
		return CompletionResponse{}, err
	}

	if c.cfg.Budget != nil && c.userID != "" {
		if err := c.cfg.Budget.Record(ctx, c.userID, resp.TotalTokens()); err != nil {
			// Usage accounting must not fail the turn.
			slog.Warn("recording token usage failed", "user", c.userID, "error", err)
		}
	}

	return resp, nil
}
