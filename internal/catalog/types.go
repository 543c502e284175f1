package catalog

import (
	"fmt"
	"strings"
)

// Concept is a discrete unit of knowledge tracked independently for mastery.
type Concept struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// Kind is the presentation format of an item. It determines how likely a
// correct answer is to be a guess.
type Kind string

const (
	KindOpen      Kind = "open"
	KindMCQ       Kind = "mcq"
	KindTrueFalse Kind = "true_false"
	KindFillBlank Kind = "fill_blank"
)

// ParseKind maps a loose label onto a Kind. Empty input yields KindOpen.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return KindOpen, nil
	case "mcq", "multiple_choice":
		return KindMCQ, nil
	case "true_false", "tf", "truefalse":
		return KindTrueFalse, nil
	case "fill_blank", "fill", "cloze":
		return KindFillBlank, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, s)
	}
}

// GuessRate is the probability of answering correctly without knowing the concept.
func (k Kind) GuessRate() float64 {
	switch k {
	case KindMCQ:
		return 0.25
	case KindTrueFalse:
		return 0.5
	default:
		return 0
	}
}

// Item is a single piece of content tagged to one concept.
// PayloadRef is opaque to the engine.
type Item struct {
	ID         string  `json:"id"`
	ConceptID  string  `json:"concept_id"`
	Difficulty float64 `json:"difficulty"`
	Kind       Kind    `json:"kind,omitempty"`
	PayloadRef string  `json:"payload_ref,omitempty"`
}

func (it Item) validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidItem)
	}
	if it.ConceptID == "" {
		return fmt.Errorf("%w: concept id is required for item %s", ErrInvalidItem, it.ID)
	}
	if it.Difficulty < 0 || it.Difficulty > 1 || it.Difficulty != it.Difficulty {
		return fmt.Errorf("%w: difficulty %v out of range [0, 1] for item %s", ErrInvalidItem, it.Difficulty, it.ID)
	}
	return nil
}
