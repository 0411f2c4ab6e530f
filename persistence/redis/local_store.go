package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	onchain "github.com/basenote/onchain"
)

// Key prefix for the user lists
const (
	localKeyPrefix = "basenote:local:" // raw value by list key
)

// LocalStore keeps the user's lists (notes, todos, investments) in Redis.
// It implements the onchain.LocalStore interface.
type LocalStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// LocalStoreOption configures a LocalStore.
type LocalStoreOption func(*LocalStore)

// WithLocalStoreKeyPrefix sets a custom prefix for all Redis keys, e.g. one
// per user.
func WithLocalStoreKeyPrefix(prefix string) LocalStoreOption {
	return func(s *LocalStore) {
		s.keyPrefix = prefix
	}
}

// NewLocalStore creates a new Redis-based local store.
func NewLocalStore(client redis.UniversalClient, opts ...LocalStoreOption) *LocalStore {
	s := &LocalStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStore) key(key string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + ":" + localKeyPrefix + key
	}
	return localKeyPrefix + key
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

var _ onchain.LocalStore = (*LocalStore)(nil)
