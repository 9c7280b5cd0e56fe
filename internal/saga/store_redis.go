package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"policybridge/pkg/platform/sentinel"
)

// RedisStore persists saga state in Redis for deployments where the gateway
// restarts mid-saga. Keys carry a TTL; a saga older than the TTL is only
// reachable through the WAL, not through this store. List scans the
// name-scoped index set, which is good enough for the operator-facing
// listing this store serves.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: 7 * 24 * time.Hour}
}

// WithTTL overrides the default 7-day state retention.
func (s *RedisStore) WithTTL(ttl time.Duration) *RedisStore {
	s.ttl = ttl
	return s
}

func stateKey(id string) string { return "policybridge:saga:state:" + id }

const indexKey = "policybridge:saga:index"

func (s *RedisStore) Create(ctx context.Context, state *State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal saga state: %w", err)
	}
	ok, err := s.client.SetNX(ctx, stateKey(state.ID), doc, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create saga state: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	if err := s.client.RPush(ctx, indexKey, state.ID).Err(); err != nil {
		return fmt.Errorf("index saga state: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	doc, err := s.client.Get(ctx, stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get saga state: %w", err)
	}
	var state State
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, fmt.Errorf("unmarshal saga state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Update(ctx context.Context, state *State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal saga state: %w", err)
	}
	ok, err := s.client.SetXX(ctx, stateKey(state.ID), doc, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("update saga state: %w", err)
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*State, error) {
	ids, err := s.client.LRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list saga index: %w", err)
	}

	var out []*State
	for _, id := range ids {
		state, err := s.Get(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Expired state; the index entry outlived the key.
			continue
		}
		if err != nil {
			return nil, err
		}
		if !filter.matches(state) {
			continue
		}
		out = append(out, state)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
