package spacing

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Phase is the position of a (learner, item) pair in the review state machine.
type Phase int

const (
	New       Phase = iota + 1 // Never attempted.
	Learning                   // Attempted, not yet graduated.
	Reviewing                  // Graduated into spaced review.
)

var (
	phaseNames  = [...]string{New: "New", Learning: "Learning", Reviewing: "Reviewing"}
	phaseByName = map[string]Phase{
		"New":       New,
		"Learning":  Learning,
		"Reviewing": Reviewing,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Phase(0)
	_ json.Marshaler           = Phase(0)
	_ json.Unmarshaler         = (*Phase)(nil)
	_ encoding.TextMarshaler   = Phase(0)
	_ encoding.TextUnmarshaler = (*Phase)(nil)
)

func (p Phase) isValid() bool {
	return p >= New && p <= Reviewing
}

// String returns the name of the phase. For invalid values it returns "Phase(n)".
func (p Phase) String() string {
	if p.isValid() {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.isValid() {
		return nil, fmt.Errorf("spacing: invalid phase: %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	v, ok := phaseByName[string(text)]
	if !ok {
		return fmt.Errorf("spacing: invalid phase: %q", text)
	}
	*p = v
	return nil
}

// MarshalJSON implements json.Marshaler. Phase serializes as a JSON string.
func (p Phase) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("spacing: invalid phase: %s", data)
	}
	return p.UnmarshalText([]byte(s))
}
