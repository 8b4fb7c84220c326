package memory

import (
	"context"
	"sync"
	"time"
)

// InteractionGuard throttles repeat starts per (user, key) with an in-memory
// cooldown window.
type InteractionGuard struct {
	cooldown time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	started map[string]time.Time
}

func NewInteractionGuard(cooldown time.Duration) *InteractionGuard {
	return &InteractionGuard{
		cooldown: cooldown,
		clock:    time.Now,
		started:  make(map[string]time.Time),
	}
}

// Cooldown returns the remaining wait for (userID, key), recording the
// attempt when none is pending.
func (g *InteractionGuard) Cooldown(_ context.Context, userID, key string) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	mapKey := userID + "|" + key
	if last, ok := g.started[mapKey]; ok {
		if remaining := g.cooldown - now.Sub(last); remaining > 0 {
			return remaining, nil
		}
	}
	g.started[mapKey] = now
	return 0, nil
}
