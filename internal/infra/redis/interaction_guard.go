package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InteractionGuard throttles repeat quiz starts across instances with a
// SET NX cooldown marker per (user, key).
type InteractionGuard struct {
	client   *redis.Client
	cooldown time.Duration
}

func NewInteractionGuard(client *redis.Client, cooldown time.Duration) *InteractionGuard {
	return &InteractionGuard{client: client, cooldown: cooldown}
}

// Cooldown records the attempt when no marker exists and returns 0;
// otherwise it returns the marker's remaining TTL.
func (g *InteractionGuard) Cooldown(ctx context.Context, userID, key string) (time.Duration, error) {
	redisKey := "quiz:guard:" + userID + ":" + key
	set, err := g.client.SetNX(ctx, redisKey, "1", g.cooldown).Result()
	if err != nil {
		return 0, fmt.Errorf("guard setnx: %w", err)
	}
	if set {
		return 0, nil
	}
	remaining, err := g.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("guard pttl: %w", err)
	}
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
