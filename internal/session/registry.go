package session

import (
	"context"
	"fmt"
	"sync"
)

// Registry maps learner IDs to their single active session. Acquire fails
// fast with ErrSessionConflict instead of replacing a holder.
type Registry interface {
	Acquire(ctx context.Context, learnerID, sessionID string) error
	// Release frees the learner only if sessionID is still the holder.
	Release(ctx context.Context, learnerID, sessionID string) error
	// Holder returns the active session for a learner, if any.
	Holder(ctx context.Context, learnerID string) (string, bool, error)
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	holders map[string]string
	mu      sync.Mutex
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{holders: make(map[string]string)}
}

func (r *MemoryRegistry) Acquire(_ context.Context, learnerID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.holders[learnerID]; ok {
		return fmt.Errorf("%w: learner %s holds %s", ErrSessionConflict, learnerID, holder)
	}
	r.holders[learnerID] = sessionID
	return nil
}

func (r *MemoryRegistry) Release(_ context.Context, learnerID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders[learnerID] == sessionID {
		delete(r.holders, learnerID)
	}
	return nil
}

func (r *MemoryRegistry) Holder(_ context.Context, learnerID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, ok := r.holders[learnerID]
	return holder, ok, nil
}
