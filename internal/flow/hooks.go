package flow

import (
	"context"
	"sync"

	"wellness-quiz-engine/internal/domain"
)

// FinishFunc is invoked when a quiz completes. Returning true suppresses the
// default summary render; returning false lets it proceed afterwards, so
// hooks can either replace or merely augment the response. The result
// context carries the precomputed default summary.
type FinishFunc func(ctx context.Context, userID string, def *domain.QuizDefinition, result *domain.ResultContext) (bool, error)

// Registry maps quiz names to completion hooks. At most one hook per quiz;
// the last registration wins.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]FinishFunc
}

func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]FinishFunc)}
}

func (r *Registry) Register(quiz string, fn FinishFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[quiz] = fn
}

func (r *Registry) get(quiz string) (FinishFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.hooks[quiz]
	return fn, ok
}
