// Package catalog defines the item bank contract and the helpers that turn
// stored items into presentable multiple-choice questions.
package catalog

import (
	"errors"
	"fmt"

	"github.com/abhisek/assessor/internal/difficulty"
)

// ErrInvalidCatalog is returned when a catalog document fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Item is an immutable practice question.
type Item struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Topic  string `json:"topic"`
	// Difficulty is the canonical 1-10 score.
	Difficulty    int      `json:"difficulty"`
	Content       string   `json:"content"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Level returns the item's position on the ordered difficulty scale.
func (it Item) Level() difficulty.Level {
	return difficulty.LevelOf(it.Difficulty)
}

// Validate checks the fields the engine depends on.
func (it Item) Validate() error {
	switch {
	case it.ID == "":
		return fmt.Errorf("%w: item id is required", ErrInvalidCatalog)
	case it.Topic == "":
		return fmt.Errorf("%w: item %s: topic is required", ErrInvalidCatalog, it.ID)
	case it.Difficulty < difficulty.MinScore || it.Difficulty > difficulty.MaxScore:
		return fmt.Errorf("%w: item %s: difficulty %d out of range", ErrInvalidCatalog, it.ID, it.Difficulty)
	case it.CorrectAnswer == "":
		return fmt.Errorf("%w: item %s: correct answer is required", ErrInvalidCatalog, it.ID)
	}
	return nil
}

// Filter narrows a catalog query. Empty fields match everything.
type Filter struct {
	Domain string
	Topics []string
	Band   *difficulty.Band
}
