package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo keeps the buyer's purchase-flow step in Redis, per tenant and user.
type StateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewStateRepo(client RedisClient, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 30 * time.Minute // long enough to pay a PIX charge
	}
	return &StateRepo{client: client, ttl: ttl}
}

func (s *StateRepo) stateKey(tenantID string, tgID int64) string {
	return fmt.Sprintf("conv_state:%s:%d", tenantID, tgID)
}

func (s *StateRepo) SetState(ctx context.Context, tenantID string, tgID int64, state *repository.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(tenantID, tgID), data, s.ttl)
}

// GetState returns nil, nil when no flow is in progress.
func (s *StateRepo) GetState(ctx context.Context, tenantID string, tgID int64) (*repository.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(tenantID, tgID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state repository.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, tenantID string, tgID int64) error {
	return s.client.Del(ctx, s.stateKey(tenantID, tgID))
}
