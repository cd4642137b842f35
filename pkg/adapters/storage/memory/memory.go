// Package memory implements StateStorage over an in-process map.
package memory

import (
	"context"
	"sync"

	"github.com/phasekit/phaserun/pkg/domain"
)

// StateStorage implements ports.StateStorage using an in-memory map. Suited
// to single-node deployments and tests; state does not survive restarts.
type StateStorage struct {
	states map[string]*domain.OrchestrationState
	mu     sync.RWMutex
}

// NewStateStorage creates a new in-memory state storage
func NewStateStorage() *StateStorage {
	return &StateStorage{
		states: make(map[string]*domain.OrchestrationState),
	}
}

// SaveState stores a snapshot of the run state keyed by execution id.
func (s *StateStorage) SaveState(ctx context.Context, state *domain.OrchestrationState) error {
	if state == nil {
		return domain.Errorf(domain.ErrValidation, "state is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.ExecutionID] = state.Snapshot()
	return nil
}

// GetState retrieves the state of an execution.
func (s *StateStorage) GetState(ctx context.Context, executionID string) (*domain.OrchestrationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[executionID]
	if !ok {
		return nil, domain.Errorf(domain.ErrExecution, "state not found: %s", executionID)
	}
	return state.Snapshot(), nil
}

// ListStates returns the state of every known execution.
func (s *StateStorage) ListStates(ctx context.Context) ([]*domain.OrchestrationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*domain.OrchestrationState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state.Snapshot())
	}
	return states, nil
}

// DeleteState removes the state of an execution.
func (s *StateStorage) DeleteState(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, executionID)
	return nil
}
