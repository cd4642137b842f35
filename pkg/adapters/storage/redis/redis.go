// Package redis implements StateStorage over Redis, so several service
// instances can answer status queries for the same runs.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
)

const stateKeyPrefix = "phaserun:state:"

// StateStorage implements ports.StateStorage using Redis
type StateStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStateStorage creates a new Redis state storage
func NewStateStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StateStorage {
	return &StateStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveState stores a run state snapshot with the configured TTL.
func (s *StateStorage) SaveState(ctx context.Context, state *domain.OrchestrationState) error {
	if state == nil {
		return domain.Errorf(domain.ErrValidation, "state is nil")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	key := stateKey(state.ExecutionID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.Debug("state saved",
		zap.String("execution_id", state.ExecutionID),
		zap.Int("completed_phases", len(state.CompletedPhases)))

	return nil
}

// GetState retrieves the state of an execution.
func (s *StateStorage) GetState(ctx context.Context, executionID string) (*domain.OrchestrationState, error) {
	data, err := s.client.Get(ctx, stateKey(executionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.Errorf(domain.ErrExecution, "state not found: %s", executionID)
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	var state domain.OrchestrationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// ListStates returns the state of every execution still within its TTL.
func (s *StateStorage) ListStates(ctx context.Context) ([]*domain.OrchestrationState, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, stateKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	states := make([]*domain.OrchestrationState, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var state domain.OrchestrationState
		if err := json.Unmarshal(data, &state); err != nil {
			s.logger.Warn("skipping undecodable state", zap.String("key", key), zap.Error(err))
			continue
		}

		states = append(states, &state)
	}

	return states, nil
}

// DeleteState removes the state of an execution.
func (s *StateStorage) DeleteState(ctx context.Context, executionID string) error {
	if err := s.client.Del(ctx, stateKey(executionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}

	s.logger.Debug("state deleted",
		zap.String("execution_id", executionID))

	return nil
}

// stateKey returns the Redis key for a run state
func stateKey(executionID string) string {
	return stateKeyPrefix + executionID
}
