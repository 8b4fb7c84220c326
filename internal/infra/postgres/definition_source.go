package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"wellness-quiz-engine/internal/domain"
	"wellness-quiz-engine/internal/override"
)

// DefinitionSource loads quiz definition and override documents from JSONB
// columns. It implements quizdef.Source, quizdef.OverrideSource, and
// quizdef.Lister.
type DefinitionSource struct {
	pool *pgxpool.Pool
}

func NewDefinitionSource(pool *pgxpool.Pool) *DefinitionSource {
	return &DefinitionSource{pool: pool}
}

func (s *DefinitionSource) LoadDocument(ctx context.Context, name string) (override.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_definitions WHERE name=$1`, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", domain.ErrDefinitionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz %s: %w", name, err)
	}
	var doc override.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDefinitionInvalid, name, err)
	}
	return doc, nil
}

func (s *DefinitionSource) LoadOverride(ctx context.Context, name string) (override.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_overrides WHERE name=$1`, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load override %s: %w", name, err)
	}
	var doc override.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrOverrideInvalid, name, err)
	}
	return doc, nil
}

func (s *DefinitionSource) Names(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM quiz_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan quiz name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
