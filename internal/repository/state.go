package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gideonfinance/gideon-auth/internal/domain"
)

// OAuthState captures the state/PKCE tuple persisted between the redirect to
// the provider and its callback.
type OAuthState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Provider     string    `json:"provider"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// OAuthStateStore persists one-time OAuth state.
type OAuthStateStore interface {
	SaveState(ctx context.Context, state OAuthState, ttl time.Duration) error
	// ConsumeState returns the stored state and deletes it, so a state value
	// can be redeemed at most once.
	ConsumeState(ctx context.Context, state string) (OAuthState, error)
}

var _ OAuthStateStore = (*RedisStateStore)(nil)

const stateKeyPrefix = "oauth:state:"

// RedisStateStore implements OAuthStateStore on Redis with TTL expiry.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) SaveState(ctx context.Context, state OAuthState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode oauth state: %w", err)
	}
	if err := s.client.Set(ctx, stateKeyPrefix+state.State, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) ConsumeState(ctx context.Context, state string) (OAuthState, error) {
	key := stateKeyPrefix + state
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return OAuthState{}, domain.ErrInvalidState
		}
		return OAuthState{}, fmt.Errorf("load oauth state: %w", err)
	}

	var stored OAuthState
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return OAuthState{}, fmt.Errorf("decode oauth state: %w", err)
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return OAuthState{}, fmt.Errorf("consume oauth state: %w", err)
	}
	return stored, nil
}
