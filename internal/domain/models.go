package domain

import "time"

// QuizOption is a single selectable answer. Key is stable and unique within
// its question; Score is added to the running total and Tags are merged into
// the session's accumulated set.
type QuizOption struct {
	Key   string   `json:"key" yaml:"key"`
	Text  string   `json:"text" yaml:"text"`
	Score int      `json:"score" yaml:"score"`
	Tags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// QuizQuestion is one step of the flow.
type QuizQuestion struct {
	ID      string       `json:"id" yaml:"id"`
	Text    string       `json:"text" yaml:"text"`
	Image   string       `json:"image,omitempty" yaml:"image,omitempty"`
	Options []QuizOption `json:"options" yaml:"options"`
}

// Option returns the option with the given key.
func (q QuizQuestion) Option(key string) (QuizOption, bool) {
	for _, opt := range q.Options {
		if opt.Key == key {
			return opt, true
		}
	}
	return QuizOption{}, false
}

// QuizThreshold maps an inclusive score range to a result outcome.
type QuizThreshold struct {
	Min    int      `json:"min" yaml:"min"`
	Max    int      `json:"max" yaml:"max"`
	Label  string   `json:"label" yaml:"label"`
	Advice string   `json:"advice" yaml:"advice"`
	Tags   []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Contains reports whether score falls inside the threshold's range.
func (t QuizThreshold) Contains(score int) bool {
	return t.Min <= score && score <= t.Max
}

// QuizDefinition is the immutable, named configuration for one quiz.
type QuizDefinition struct {
	Name       string          `json:"name" yaml:"name"`
	Title      string          `json:"title" yaml:"title"`
	Cover      string          `json:"cover,omitempty" yaml:"cover,omitempty"`
	Questions  []QuizQuestion  `json:"questions" yaml:"questions"`
	Thresholds []QuizThreshold `json:"thresholds" yaml:"thresholds"`
}

// Question returns the question at index.
func (d *QuizDefinition) Question(index int) (QuizQuestion, bool) {
	if index < 0 || index >= len(d.Questions) {
		return QuizQuestion{}, false
	}
	return d.Questions[index], true
}

// FindThreshold selects the first threshold whose range contains score.
// Scores past every range fall back to the last defined threshold; the
// validator warns about range gaps so authors notice incomplete coverage.
func (d *QuizDefinition) FindThreshold(score int) (QuizThreshold, bool) {
	for _, t := range d.Thresholds {
		if t.Contains(score) {
			return t, true
		}
	}
	if len(d.Thresholds) > 0 {
		return d.Thresholds[len(d.Thresholds)-1], false
	}
	return QuizThreshold{}, false
}

// SessionState is the persisted per-user, per-attempt progress record.
// The current FSM state is the integer Index, bound-checked against the
// definition's question count on every transition.
type SessionState struct {
	Quiz      string            `json:"quiz"`
	Index     int               `json:"index"`
	Score     int               `json:"score"`
	Tags      []string          `json:"tags,omitempty"`
	Answers   map[string]string `json:"answers,omitempty"`
	MessageID string            `json:"messageId,omitempty"`
	AskedAt   time.Time         `json:"askedAt"`
}

// ResultContext is built once when a session crosses the last question and is
// handed to completion hooks.
type ResultContext struct {
	TotalScore int
	Answers    map[string]QuizOption
	Tags       []string
	Threshold  QuizThreshold
	// Summary is the default render, precomputed so hooks can augment the
	// response instead of rebuilding it.
	Summary string
}

// MergeTags appends the tags from extra that are not yet present, preserving
// first-seen order.
func MergeTags(base []string, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, tag := range base {
		seen[tag] = struct{}{}
	}
	out := base
	for _, tag := range extra {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
