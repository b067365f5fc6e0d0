package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/internal/model"
)

// RedisStore keeps state in Redis under one key per participant and posts
// comments without a marker. Commit is a compare-and-set on last_updated, so a
// concurrent run surfaces as ErrStateConflict instead of a silent overwrite.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "concierge:state"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + ":" + k.String()
}

func (s *RedisStore) Load(ctx context.Context, key Key, _ []model.Comment) (*model.ConversationState, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	var st model.ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.key(key), err)
	}
	return &st, nil
}

func (s *RedisStore) Prepare(_ context.Context, _ Key, body string, _ *model.ConversationState) (string, error) {
	return Strip(body), nil
}

func (s *RedisStore) Commit(ctx context.Context, key Key, prev, next *model.ConversationState) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	k := s.key(key)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get state: %w", err)
		}
		if !sameVersion(current, prev) {
			return ErrStateConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, 0)
			return nil
		})
		return err
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrStateConflict
	}
	return err
}

// sameVersion reports whether the stored value is still the one prev was read from.
func sameVersion(current []byte, prev *model.ConversationState) bool {
	if prev == nil {
		return len(current) == 0
	}
	if len(current) == 0 {
		return false
	}
	var stored model.ConversationState
	if err := json.Unmarshal(current, &stored); err != nil {
		return false
	}
	return stored.LastUpdated.Equal(prev.LastUpdated)
}
