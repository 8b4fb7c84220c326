package quizdef

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"wellness-quiz-engine/internal/callback"
	"wellness-quiz-engine/internal/domain"
	"wellness-quiz-engine/internal/override"
)

// FileSource reads quiz documents from `<dir>/<name>.yaml` and patches from
// `<dir>/overrides/<name>.yaml`. It implements Source, OverrideSource, and
// Lister.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) LoadDocument(ctx context.Context, name string) (override.Document, error) {
	if !callback.IsSlug(name) {
		// also keeps names from escaping the data dir
		return nil, fmt.Errorf("%w: %q", domain.ErrDefinitionNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name+".yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", domain.ErrDefinitionNotFound, name)
		}
		return nil, fmt.Errorf("read quiz %s: %w", name, err)
	}
	var doc override.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDefinitionInvalid, name, err)
	}
	return doc, nil
}

func (s *FileSource) LoadOverride(ctx context.Context, name string) (override.Document, error) {
	if !callback.IsSlug(name) {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, "overrides", name+".yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read override %s: %w", name, err)
	}
	var doc override.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrOverrideInvalid, name, err)
	}
	return doc, nil
}

// Names lists quiz names derived from the *.yaml files in the data dir.
func (s *FileSource) Names(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}
