package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/abhisek/assessor/internal/difficulty"
)

// documentSchema describes an importable catalog file. Difficulty may be a
// 1-10 score or one of the level names.
var documentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"domain": map[string]any{"type": "string", "minLength": 1},
		"items": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":    map[string]any{"type": "string", "minLength": 1},
					"topic": map[string]any{"type": "string", "minLength": 1},
					"difficulty": map[string]any{
						"oneOf": []any{
							map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
							map[string]any{"type": "string", "enum": []any{"easy", "medium", "hard", "advanced"}},
						},
					},
					"content": map[string]any{"type": "string", "minLength": 1},
					"options": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"correct_answer": map[string]any{"type": "string", "minLength": 1},
					"explanation":    map[string]any{"type": "string"},
				},
				"required":             []any{"id", "topic", "difficulty", "content", "correct_answer"},
				"additionalProperties": false,
			},
		},
	},
	"required": []any{"items"},
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// compiledSchema compiles documentSchema once.
func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		// The compiler wants a plain decoded JSON value.
		raw, err := json.Marshal(documentSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		const url = "schema://catalog.json"
		if err := c.AddResource(url, doc); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(url)
	})
	return compiled, compileErr
}

type document struct {
	Domain string        `json:"domain"`
	Items  []documentRow `json:"items"`
}

type documentRow struct {
	ID            string          `json:"id"`
	Topic         string          `json:"topic"`
	Difficulty    json.RawMessage `json:"difficulty"`
	Content       string          `json:"content"`
	Options       []string        `json:"options"`
	CorrectAnswer string          `json:"correct_answer"`
	Explanation   string          `json:"explanation"`
}

// Decode validates a catalog document and returns its items. domain
// overrides the document's own domain when non-empty.
func Decode(r io.Reader, domain string) ([]Item, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidCatalog, err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if domain == "" {
		domain = doc.Domain
	}
	if domain == "" {
		return nil, fmt.Errorf("%w: no domain in document or arguments", ErrInvalidCatalog)
	}

	seen := make(map[string]bool, len(doc.Items))
	items := make([]Item, 0, len(doc.Items))
	for _, row := range doc.Items {
		if seen[row.ID] {
			return nil, fmt.Errorf("%w: duplicate item id %q", ErrInvalidCatalog, row.ID)
		}
		seen[row.ID] = true

		score, err := parseDifficulty(row.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("%w: item %s: %w", ErrInvalidCatalog, row.ID, err)
		}
		it := Item{
			ID:            row.ID,
			Domain:        domain,
			Topic:         row.Topic,
			Difficulty:    score,
			Content:       row.Content,
			Options:       row.Options,
			CorrectAnswer: ResolveAnswer(row.Options, row.CorrectAnswer),
			Explanation:   row.Explanation,
		}
		if err := it.Validate(); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// LoadFile reads and validates a catalog file.
func LoadFile(path, domain string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Decode(f, domain)
}

// parseDifficulty accepts either representation and returns the score.
func parseDifficulty(raw json.RawMessage) (int, error) {
	var score int
	if err := json.Unmarshal(raw, &score); err == nil {
		return difficulty.ClampScore(score), nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return 0, fmt.Errorf("difficulty: %w", err)
	}
	lvl, err := difficulty.ParseLevel(name)
	if err != nil {
		return 0, err
	}
	return lvl.Score(), nil
}
