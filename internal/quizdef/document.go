package quizdef

import (
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"wellness-quiz-engine/internal/callback"
	"wellness-quiz-engine/internal/domain"
	"wellness-quiz-engine/internal/override"
)

// MinQuestions is the smallest flow worth shipping; shorter definitions are
// rejected as invalid.
const MinQuestions = 5

// rawDefinition mirrors the external document contract: top-level `title`,
// optional `cover`, `questions`, and `result.thresholds`.
type rawDefinition struct {
	Title     string                `yaml:"title"`
	Cover     string                `yaml:"cover"`
	Questions []domain.QuizQuestion `yaml:"questions"`
	Result    struct {
		Thresholds []domain.QuizThreshold `yaml:"thresholds"`
	} `yaml:"result"`
}

// Decode converts a raw document into a validated definition. The document
// round-trips through YAML so that sources decoding from JSONB and from YAML
// files produce identical results.
func Decode(name string, doc override.Document) (*domain.QuizDefinition, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDefinitionInvalid, name, err)
	}
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDefinitionInvalid, name, err)
	}

	def := &domain.QuizDefinition{
		Name:       name,
		Title:      raw.Title,
		Cover:      raw.Cover,
		Questions:  raw.Questions,
		Thresholds: raw.Result.Thresholds,
	}
	if def.Title == "" {
		def.Title = name
	}
	if err := validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func validate(def *domain.QuizDefinition) error {
	if len(def.Questions) < MinQuestions {
		return invalidf(def.Name, "needs at least %d questions, has %d", MinQuestions, len(def.Questions))
	}
	if len(def.Thresholds) == 0 {
		return invalidf(def.Name, "no result thresholds defined")
	}

	questionIDs := make(map[string]struct{}, len(def.Questions))
	for i, question := range def.Questions {
		if question.ID == "" {
			return invalidf(def.Name, "question %d has no id", i)
		}
		if _, dup := questionIDs[question.ID]; dup {
			return invalidf(def.Name, "duplicate question id %q", question.ID)
		}
		questionIDs[question.ID] = struct{}{}
		if len(question.Options) == 0 {
			return invalidf(def.Name, "question %q has no options", question.ID)
		}
		optionKeys := make(map[string]struct{}, len(question.Options))
		for _, opt := range question.Options {
			if !callback.IsSlug(opt.Key) {
				return invalidf(def.Name, "question %q has invalid option key %q", question.ID, opt.Key)
			}
			if _, dup := optionKeys[opt.Key]; dup {
				return invalidf(def.Name, "question %q has duplicate option key %q", question.ID, opt.Key)
			}
			optionKeys[opt.Key] = struct{}{}
		}
	}

	for i, t := range def.Thresholds {
		if t.Min > t.Max {
			return invalidf(def.Name, "threshold %d has min %d > max %d", i, t.Min, t.Max)
		}
		if i > 0 && t.Min > def.Thresholds[i-1].Max+1 {
			// Gaps are tolerated; a score landing in one falls back to the
			// last threshold, which usually means incomplete coverage.
			log.Printf("quiz %s: gap between thresholds [%d,%d] and [%d,%d]",
				def.Name, def.Thresholds[i-1].Min, def.Thresholds[i-1].Max, t.Min, t.Max)
		}
	}
	return nil
}

func invalidf(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrDefinitionInvalid, name, fmt.Sprintf(format, args...))
}
