// Package ai provides a provider-agnostic completion gateway with ordered
// fallback, per-user token budgets, and client-side rate limiting.
package ai

import "context"

// TaskType defines the kind of completion for routing and model selection.
type TaskType int

const (
	TaskTeaching TaskType = iota
	TaskGrading
)

func (t TaskType) String() string {
	switch t {
	case TaskTeaching:
		return "teaching"
	case TaskGrading:
		return "grading"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a completion. Structured asks the
// provider for a JSON-object response where the API supports it; providers
// without native support fall back to a system-prompt instruction.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Structured  bool      `json:"structured,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
}

// CompletionResponse is the output from a completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all completion providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}
