// Package override applies partial, editor-maintained patch documents on top
// of base quiz definitions. Patches let non-developers tweak copy without
// republishing the canonical configuration; a broken patch must never make a
// quiz unplayable, so callers log and continue with the base document.
package override

import (
	"fmt"

	"wellness-quiz-engine/internal/domain"
)

// Document is a raw quiz definition or patch, as decoded from YAML or JSONB.
type Document = map[string]any

// Apply returns base with patch merged on top. base is never mutated; an
// empty patch returns base as-is. Shape errors wrap domain.ErrOverrideInvalid.
//
// Sections are merged by identity: questions by `id` (nested options by
// `key`), result.thresholds by the `(min, max)` pair. Matched entries are
// updated field by field with the identity fields left untouched; unmatched
// patch entries are appended. Every other top-level key is replaced
// wholesale. The merge is idempotent.
func Apply(base, patch Document) (Document, error) {
	if len(patch) == 0 {
		return base, nil
	}

	merged := deepCopyMap(base)
	for key, value := range patch {
		switch key {
		case "questions":
			questions, err := mergeQuestions(base["questions"], value)
			if err != nil {
				return nil, err
			}
			merged["questions"] = questions
		case "result":
			result, err := mergeResult(base["result"], value)
			if err != nil {
				return nil, err
			}
			merged["result"] = result
		default:
			merged[key] = deepCopy(value)
		}
	}
	return merged, nil
}

func mergeQuestions(base, patch any) ([]any, error) {
	return upsertByKey("questions", base, patch,
		func(item Document) (string, bool) {
			id, _ := item["id"].(string)
			return id, id != ""
		},
		func(target, item Document) error {
			for field, value := range item {
				switch field {
				case "id":
					// identity, never overwritten
				case "options":
					options, err := mergeOptions(target["options"], value)
					if err != nil {
						return err
					}
					target["options"] = options
				default:
					target[field] = deepCopy(value)
				}
			}
			return nil
		})
}

func mergeOptions(base, patch any) ([]any, error) {
	return upsertByKey("options", base, patch,
		func(item Document) (string, bool) {
			key, _ := item["key"].(string)
			return key, key != ""
		},
		func(target, item Document) error {
			for field, value := range item {
				if field == "key" {
					continue
				}
				target[field] = deepCopy(value)
			}
			return nil
		})
}

func mergeResult(base, patch any) (Document, error) {
	merged := Document{}
	if baseMap, ok := base.(Document); ok {
		merged = deepCopyMap(baseMap)
	}
	if patch == nil {
		return merged, nil
	}
	patchMap, ok := patch.(Document)
	if !ok {
		return nil, fmt.Errorf("%w: result override must be a mapping", domain.ErrOverrideInvalid)
	}
	for key, value := range patchMap {
		if key == "thresholds" {
			thresholds, err := mergeThresholds(merged["thresholds"], value)
			if err != nil {
				return nil, err
			}
			merged["thresholds"] = thresholds
			continue
		}
		merged[key] = deepCopy(value)
	}
	return merged, nil
}

func mergeThresholds(base, patch any) ([]any, error) {
	return upsertByKey("thresholds", base, patch,
		func(item Document) (string, bool) {
			return rangeKey(item), true
		},
		func(target, item Document) error {
			for field, value := range item {
				target[field] = deepCopy(value)
			}
			return nil
		})
}

// upsertByKey is the one generic list merge all three sections use: entries
// are matched by an extracted identity key, matched entries are updated via
// update, unmatched patch entries are appended. Patch entries that are not
// mappings or carry no identity are skipped.
func upsertByKey(
	section string,
	base, patch any,
	keyOf func(Document) (string, bool),
	update func(target, item Document) error,
) ([]any, error) {
	var out []any
	switch typed := base.(type) {
	case nil:
	case []any:
		out = make([]any, 0, len(typed))
		for _, entry := range typed {
			if m, ok := entry.(Document); ok {
				out = append(out, deepCopyMap(m))
			} else {
				out = append(out, Document{})
			}
		}
	default:
		return nil, fmt.Errorf("%w: base %s payload must be a sequence", domain.ErrOverrideInvalid, section)
	}

	if patch == nil {
		return out, nil
	}
	patchList, ok := patch.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s override must be a sequence", domain.ErrOverrideInvalid, section)
	}

	index := make(map[string]Document, len(out))
	for _, entry := range out {
		m := entry.(Document)
		if key, ok := keyOf(m); ok {
			index[key] = m
		}
	}

	for _, entry := range patchList {
		item, ok := entry.(Document)
		if !ok {
			continue
		}
		key, ok := keyOf(item)
		if !ok {
			continue
		}
		target, exists := index[key]
		if !exists {
			copied := deepCopyMap(item)
			out = append(out, copied)
			index[key] = copied
			continue
		}
		if err := update(target, item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rangeKey normalizes the (min, max) identity so that e.g. YAML int and JSON
// float64 representations of the same bounds still match.
func rangeKey(item Document) string {
	return fmt.Sprintf("%v|%v", normNumber(item["min"]), normNumber(item["max"]))
}

func normNumber(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch typed := v.(type) {
	case Document:
		return deepCopyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m Document) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}
