package catalog

import (
	"math/rand"
	"slices"
	"strings"
)

// letterIndex maps a single-letter A-D answer to its option index.
func letterIndex(answer string) (int, bool) {
	if len(answer) != 1 {
		return 0, false
	}
	c := answer[0]
	if c < 'A' || c > 'D' {
		return 0, false
	}
	return int(c - 'A'), true
}

// ResolveAnswer turns a catalog answer into option text. A bare letter
// resolves to the option prefixed "X." if one exists, else to the option at
// that position. Anything else is returned unchanged.
func ResolveAnswer(options []string, answer string) string {
	idx, ok := letterIndex(answer)
	if !ok {
		return answer
	}
	for _, opt := range options {
		if strings.HasPrefix(opt, answer+".") {
			return opt
		}
	}
	if idx < len(options) {
		return options[idx]
	}
	return answer
}

// Presentation is an item with its options in display order.
type Presentation struct {
	Options []string `json:"options"`
	// Correct is the resolved correct option text.
	Correct      string `json:"correct"`
	CorrectIndex int    `json:"correct_index"`
}

// Present resolves the correct answer and shuffles the options with rng.
// The correct text survives the permutation; CorrectIndex is -1 for free
// response items whose answer is not among the options.
func Present(it Item, rng *rand.Rand) Presentation {
	correct := ResolveAnswer(it.Options, it.CorrectAnswer)
	opts := slices.Clone(it.Options)
	rng.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	return Presentation{
		Options:      opts,
		Correct:      correct,
		CorrectIndex: slices.Index(opts, correct),
	}
}

// Check reports whether answer matches the presentation's correct option.
// Matching is tried exact, then trimmed, then case-insensitively; a bare
// letter picks the option at that position in display order.
func (p Presentation) Check(answer string) bool {
	if matches(answer, p.Correct) {
		return true
	}
	if idx, ok := letterIndex(strings.ToUpper(strings.TrimSpace(answer))); ok && idx < len(p.Options) {
		return p.Options[idx] == p.Correct
	}
	return false
}

func matches(answer, correct string) bool {
	if answer == "" || correct == "" {
		return false
	}
	if answer == correct {
		return true
	}
	a, c := strings.TrimSpace(answer), strings.TrimSpace(correct)
	if a == c {
		return true
	}
	return strings.EqualFold(a, c)
}
