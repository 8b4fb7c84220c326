package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"wellness-quiz-engine/internal/override"
	"wellness-quiz-engine/internal/quizdef"
)

// DefinitionCache is a quizdef.Source that caches raw documents in Redis
// (JSON under quizdef:{name}) and falls back to the wrapped source on a
// miss, so multiple instances share one backing-store load.
type DefinitionCache struct {
	client *redis.Client
	source quizdef.Source
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewDefinitionCache(client *redis.Client, source quizdef.Source, ttl time.Duration) *DefinitionCache {
	return &DefinitionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *DefinitionCache) LoadDocument(ctx context.Context, name string) (override.Document, error) {
	key := c.key(name)

	if doc, ok := c.cached(ctx, key); ok {
		return doc, nil
	}

	result, err, _ := c.sf.Do(name, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if doc, ok := c.cached(ctx, key); ok {
			return doc, nil
		}

		doc, err := c.source.LoadDocument(ctx, name)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode quiz document %s: %w", name, err)
		}
		// best-effort: a failed cache write only costs the next load
		_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(override.Document), nil
}

// Names delegates to the wrapped source when it can enumerate.
func (c *DefinitionCache) Names(ctx context.Context) ([]string, error) {
	if lister, ok := c.source.(quizdef.Lister); ok {
		return lister.Names(ctx)
	}
	return nil, nil
}

// Invalidate drops the cached document for name, e.g. after an editor saves.
func (c *DefinitionCache) Invalidate(ctx context.Context, name string) error {
	return c.client.Del(ctx, c.key(name)).Err()
}

func (c *DefinitionCache) cached(ctx context.Context, key string) (override.Document, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var doc override.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

func (c *DefinitionCache) key(name string) string {
	return "quizdef:" + name
}

func (c *DefinitionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
