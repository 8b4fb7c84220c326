package quizdef_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"wellness-quiz-engine/internal/domain"
	"wellness-quiz-engine/internal/infra/memory"
	"wellness-quiz-engine/internal/override"
	"wellness-quiz-engine/internal/quizdef"
)

func validDocument() override.Document {
	questions := make([]any, 0, 5)
	ids := []string{"q1", "q2", "q3", "q4", "q5"}
	for _, id := range ids {
		questions = append(questions, override.Document{
			"id":   id,
			"text": "Prompt " + id,
			"options": []any{
				override.Document{"key": "no", "text": "No", "score": 0},
				override.Document{"key": "yes", "text": "Yes", "score": 1, "tags": []any{"tag_" + id}},
			},
		})
	}
	return override.Document{
		"title":     "Sleep check",
		"questions": questions,
		"result": override.Document{
			"thresholds": []any{
				override.Document{"min": 0, "max": 2, "label": "Low", "advice": "ok"},
				override.Document{"min": 3, "max": 5, "label": "High", "advice": "rest", "tags": []any{"high"}},
			},
		},
	}
}

func TestLoadDecodesAndValidates(t *testing.T) {
	source := memory.NewStaticSource(map[string]override.Document{"sleep": validDocument()})
	store := quizdef.New(source, source, time.Minute)

	def, err := store.Load(context.Background(), "sleep")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Name != "sleep" || def.Title != "Sleep check" {
		t.Fatalf("unexpected header: %+v", def)
	}
	if len(def.Questions) != 5 || len(def.Thresholds) != 2 {
		t.Fatalf("unexpected shape: %d questions, %d thresholds", len(def.Questions), len(def.Thresholds))
	}
	if def.Questions[0].Options[1].Score != 1 {
		t.Fatalf("option score lost in decode: %+v", def.Questions[0].Options[1])
	}
}

func TestLoadUnknownQuizFails(t *testing.T) {
	source := memory.NewStaticSource(nil)
	store := quizdef.New(source, source, time.Minute)

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDefinitionNotFound) {
		t.Fatalf("expected ErrDefinitionNotFound, got %v", err)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]func(doc override.Document){
		"too few questions": func(doc override.Document) {
			doc["questions"] = doc["questions"].([]any)[:4]
		},
		"no thresholds": func(doc override.Document) {
			doc["result"] = override.Document{"thresholds": []any{}}
		},
		"threshold min above max": func(doc override.Document) {
			doc["result"] = override.Document{"thresholds": []any{
				override.Document{"min": 5, "max": 1, "label": "broken"},
			}}
		},
		"question without options": func(doc override.Document) {
			doc["questions"].([]any)[0].(override.Document)["options"] = []any{}
		},
		"invalid option key": func(doc override.Document) {
			doc["questions"].([]any)[0].(override.Document)["options"] = []any{
				override.Document{"key": "Not Valid!", "text": "x", "score": 0},
			}
		},
		"duplicate option key": func(doc override.Document) {
			doc["questions"].([]any)[0].(override.Document)["options"] = []any{
				override.Document{"key": "yes", "text": "a", "score": 0},
				override.Document{"key": "yes", "text": "b", "score": 1},
			}
		},
		"duplicate question id": func(doc override.Document) {
			questions := doc["questions"].([]any)
			questions[1].(override.Document)["id"] = "q1"
		},
	}

	for name, corrupt := range cases {
		doc := validDocument()
		corrupt(doc)
		source := memory.NewStaticSource(map[string]override.Document{"sleep": doc})
		store := quizdef.New(source, source, time.Minute)
		if _, err := store.Load(context.Background(), "sleep"); !errors.Is(err, domain.ErrDefinitionInvalid) {
			t.Fatalf("%s: expected ErrDefinitionInvalid, got %v", name, err)
		}
	}
}

func TestLoadCachesPerName(t *testing.T) {
	source := &countingSource{StaticSource: memory.NewStaticSource(map[string]override.Document{"sleep": validDocument()})}
	store := quizdef.New(source, nil, time.Minute)

	if _, err := store.Load(context.Background(), "sleep"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := store.Load(context.Background(), "sleep"); err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}

	if _, err := store.Refresh(context.Background(), "sleep"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected refresh to bypass cache, source calls=%d", source.calls)
	}
}

func TestOverrideAppliedBeforeValidation(t *testing.T) {
	source := memory.NewStaticSource(map[string]override.Document{"sleep": validDocument()})
	source.SetOverride("sleep", override.Document{
		"title": "Sleep check v2",
		"questions": []any{
			override.Document{"id": "q6", "text": "Extra question", "options": []any{
				override.Document{"key": "yes", "text": "Yes", "score": 1},
			}},
		},
	})
	store := quizdef.New(source, source, time.Minute)

	def, err := store.Load(context.Background(), "sleep")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Title != "Sleep check v2" {
		t.Fatalf("override title not applied: %q", def.Title)
	}
	if len(def.Questions) != 6 {
		t.Fatalf("expected patched question appended, got %d", len(def.Questions))
	}
	if def.Questions[5].ID != "q6" {
		t.Fatalf("expected q6 last, got %q", def.Questions[5].ID)
	}
}

func TestBrokenOverrideDegradesToBase(t *testing.T) {
	source := memory.NewStaticSource(map[string]override.Document{"sleep": validDocument()})
	source.SetOverride("sleep", override.Document{"questions": "not-a-sequence"})
	store := quizdef.New(source, source, time.Minute)

	def, err := store.Load(context.Background(), "sleep")
	if err != nil {
		t.Fatalf("a broken override must not take the quiz offline: %v", err)
	}
	if len(def.Questions) != 5 || def.Title != "Sleep check" {
		t.Fatalf("expected base definition, got %+v", def)
	}
}

func TestFileSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/gut.yaml", `
title: Gut check
questions:
  - id: q1
    text: Prompt 1
    options:
      - {key: "no", text: "No", score: 0}
      - {key: "yes", text: "Yes", score: 1}
  - id: q2
    text: Prompt 2
    options: [{key: "no", text: "No", score: 0}, {key: "yes", text: "Yes", score: 1}]
  - id: q3
    text: Prompt 3
    options: [{key: "no", text: "No", score: 0}, {key: "yes", text: "Yes", score: 1}]
  - id: q4
    text: Prompt 4
    options: [{key: "no", text: "No", score: 0}, {key: "yes", text: "Yes", score: 1}]
  - id: q5
    text: Prompt 5
    options: [{key: "no", text: "No", score: 0}, {key: "yes", text: "Yes", score: 1}]
result:
  thresholds:
    - {min: 0, max: 5, label: OK, advice: fine}
`)

	source := quizdef.NewFileSource(dir)
	store := quizdef.New(source, source, time.Minute)

	def, err := store.Load(context.Background(), "gut")
	if err != nil {
		t.Fatalf("load from files: %v", err)
	}
	if def.Title != "Gut check" || len(def.Questions) != 5 {
		t.Fatalf("unexpected definition: %+v", def)
	}

	names, err := store.Names(context.Background())
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 1 || names[0] != "gut" {
		t.Fatalf("unexpected names: %v", names)
	}

	if _, err := store.Load(context.Background(), "../etc/passwd"); !errors.Is(err, domain.ErrDefinitionNotFound) {
		t.Fatalf("expected not found for traversal name, got %v", err)
	}
}

type countingSource struct {
	*memory.StaticSource
	calls int
}

func (s *countingSource) LoadDocument(ctx context.Context, name string) (override.Document, error) {
	s.calls++
	return s.StaticSource.LoadDocument(ctx, name)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
