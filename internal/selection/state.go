package selection

import (
	"slices"
	"time"
)

// SessionState is the per-session memory of what has been offered. It is
// owned by a single session and is not safe for concurrent use.
type SessionState struct {
	StartedAt time.Time
	concepts  []string
	offered   []string
	seen      map[string]struct{}
}

// NewSessionState starts an empty session. With no concepts the session
// draws from the whole catalog.
func NewSessionState(startedAt time.Time, concepts ...string) *SessionState {
	return &SessionState{
		StartedAt: startedAt,
		concepts:  slices.Clone(concepts),
		seen:      make(map[string]struct{}),
	}
}

// Offered reports whether the item was already offered in this session.
func (s *SessionState) Offered(itemID string) bool {
	_, ok := s.seen[itemID]
	return ok
}

// Record marks an item as offered. Recording an item twice is a no-op.
func (s *SessionState) Record(itemID string) {
	if s.Offered(itemID) {
		return
	}
	s.seen[itemID] = struct{}{}
	s.offered = append(s.offered, itemID)
}

// OfferedItems returns the offered item IDs in offer order.
func (s *SessionState) OfferedItems() []string {
	return slices.Clone(s.offered)
}

// Concepts returns the concept scope; empty means every concept.
func (s *SessionState) Concepts() []string {
	return slices.Clone(s.concepts)
}

// Len returns the number of items offered so far.
func (s *SessionState) Len() int {
	return len(s.offered)
}
