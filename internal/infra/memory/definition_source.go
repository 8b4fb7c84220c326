package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"wellness-quiz-engine/internal/domain"
	"wellness-quiz-engine/internal/override"
)

// StaticSource serves quiz documents from in-memory maps (useful for tests
// and for running without a database). It implements quizdef.Source,
// quizdef.OverrideSource, and quizdef.Lister.
type StaticSource struct {
	mu        sync.RWMutex
	documents map[string]override.Document
	overrides map[string]override.Document
}

func NewStaticSource(documents map[string]override.Document) *StaticSource {
	if documents == nil {
		documents = make(map[string]override.Document)
	}
	return &StaticSource{
		documents: documents,
		overrides: make(map[string]override.Document),
	}
}

func (s *StaticSource) LoadDocument(_ context.Context, name string) (override.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrDefinitionNotFound, name)
	}
	return doc, nil
}

func (s *StaticSource) LoadOverride(_ context.Context, name string) (override.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrides[name], nil
}

// SetOverride registers or replaces the patch for a quiz name.
func (s *StaticSource) SetOverride(name string, patch override.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[name] = patch
}

func (s *StaticSource) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.documents))
	for name := range s.documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
