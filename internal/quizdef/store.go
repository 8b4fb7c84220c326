// Package quizdef loads, validates, and caches quiz definitions from a
// configuration source, with optional editor overrides merged in before
// validation.
package quizdef

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"wellness-quiz-engine/internal/domain"
	"wellness-quiz-engine/internal/override"
)

// Source provides raw base documents keyed by quiz name.
type Source interface {
	LoadDocument(ctx context.Context, name string) (override.Document, error)
}

// OverrideSource provides optional patch documents keyed by the same name.
// Absence of a patch is reported as (nil, nil).
type OverrideSource interface {
	LoadOverride(ctx context.Context, name string) (override.Document, error)
}

// Lister is implemented by sources that can enumerate available quiz names.
type Lister interface {
	Names(ctx context.Context) ([]string, error)
}

// Store caches validated definitions per name with a TTL.
type Store struct {
	source    Source
	overrides OverrideSource
	ttl       time.Duration
	clock     func() time.Time
	sf        singleflight.Group
	rnd       *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedDefinition
}

type cachedDefinition struct {
	def       *domain.QuizDefinition
	expiresAt time.Time
}

// New builds a Store. overrides may be nil when no patch source is
// configured.
func New(source Source, overrides OverrideSource, ttl time.Duration) *Store {
	return &Store{
		source:    source,
		overrides: overrides,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:     make(map[string]cachedDefinition),
	}
}

// Load returns the cached definition for name, loading and validating it on
// a miss.
func (s *Store) Load(ctx context.Context, name string) (*domain.QuizDefinition, error) {
	return s.load(ctx, name, false)
}

// Refresh bypasses the cache and repopulates it; used after an editor saves
// a patch.
func (s *Store) Refresh(ctx context.Context, name string) (*domain.QuizDefinition, error) {
	return s.load(ctx, name, true)
}

// Names lists available quizzes when the source supports enumeration.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	if lister, ok := s.source.(Lister); ok {
		return lister.Names(ctx)
	}
	return nil, nil
}

func (s *Store) load(ctx context.Context, name string, refresh bool) (*domain.QuizDefinition, error) {
	now := s.clock()

	if !refresh {
		s.mu.RLock()
		if entry, ok := s.cache[name]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.def, nil
		}
		s.mu.RUnlock()
	}

	result, err, _ := s.sf.Do(name, func() (interface{}, error) {
		now := s.clock()
		if !refresh {
			s.mu.RLock()
			if entry, ok := s.cache[name]; ok && entry.expiresAt.After(now) {
				s.mu.RUnlock()
				return entry.def, nil
			}
			s.mu.RUnlock()
		}

		def, err := s.build(ctx, name)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[name] = cachedDefinition{
			def:       def,
			expiresAt: now.Add(s.ttlWithJitter()),
		}
		s.mu.Unlock()
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.QuizDefinition), nil
}

// build loads the base document, applies an optional patch, and validates.
// Override failures degrade to the base document: a broken patch must never
// take a quiz offline.
func (s *Store) build(ctx context.Context, name string) (*domain.QuizDefinition, error) {
	doc, err := s.source.LoadDocument(ctx, name)
	if err != nil {
		return nil, err
	}

	if s.overrides != nil {
		patch, err := s.overrides.LoadOverride(ctx, name)
		switch {
		case err != nil:
			log.Printf("quiz %s: override load failed, using base: %v", name, err)
		case len(patch) > 0:
			merged, err := override.Apply(doc, patch)
			if err != nil {
				if !errors.Is(err, domain.ErrOverrideInvalid) {
					return nil, err
				}
				log.Printf("quiz %s: override rejected, using base: %v", name, err)
			} else {
				doc = merged
			}
		}
	}

	return Decode(name, doc)
}

func (s *Store) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
