package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExhausted is returned by the client when a user has spent their
// token allowance.
var ErrBudgetExhausted = errors.New("ai: token budget exhausted")

// BudgetChecker checks and records per-user token usage against budgets.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining.
	Check(ctx context.Context, userID string) (bool, error)
	// Record records token usage for a user.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns current usage and limit for a user.
	Usage(ctx context.Context, userID string) (used int64, budget int64, err error)
}

// InMemoryBudget is an in-process budget tracker for development and tests.
// Deployments that share budgets across replicas use RedisBudget.
type InMemoryBudget struct {
	mu      sync.RWMutex
	budgets map[string]int64 // userID -> budget limit
	usage   map[string]int64 // userID -> tokens used
}

// NewInMemoryBudget creates a new in-memory budget tracker.
func NewInMemoryBudget() *InMemoryBudget {
	return &InMemoryBudget{
		budgets: make(map[string]int64),
		usage:   make(map[string]int64),
	}
}

// SetBudget sets the token budget for a user.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[userID] = tokens
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	budget, hasBudget := b.budgets[userID]
	if !hasBudget {
		// No budget set means unlimited.
		return true, nil
	}

	return b.usage[userID] < budget, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.usage[userID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.usage[userID], b.budgets[userID], nil
}
