package configstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// DefaultRedisPrefix is used when RedisStore is created without a prefix.
const DefaultRedisPrefix = "graylogic"

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Address  string
	Username string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

// RedisStore serves items from a provisioning Redis.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
//
// Parameters:
//   - ctx: Bounds the initial PING
//   - opts: Address, credentials, database and key prefix
//
// Returns:
//   - *RedisStore: Connected store; call Close to release it
//   - error: ErrUnavailable wrapping the connection failure
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: redis %s: %w", ErrUnavailable, opts.Address, err)
	}
	return newRedisStore(client, opts.Prefix), nil
}

func newRedisStore(client redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// RedisKey returns the Redis key holding k.
func (s *RedisStore) RedisKey(k transport.ConfigKey) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, k.Scope, k.Store, k.Key)
}

// Fetch implements Store with a single MGET.
func (s *RedisStore) Fetch(ctx context.Context, keys []transport.ConfigKey) ([]Item, error) {
	items := make([]Item, len(keys))
	names := make([]string, 0, len(keys))
	index := make([]int, 0, len(keys))
	for i, k := range keys {
		if err := validateKey(k); err != nil {
			items[i] = Item{Result: transport.ConfigKeyReadFailed}
			continue
		}
		names = append(names, s.RedisKey(k))
		index = append(index, i)
	}
	if len(names) == 0 {
		return items, nil
	}

	values, err := s.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: MGET: %w", ErrUnavailable, err)
	}
	if len(values) != len(names) {
		return nil, fmt.Errorf("%w: MGET returned %d values for %d keys", ErrUnavailable, len(values), len(names))
	}

	for j, v := range values {
		i := index[j]
		switch val := v.(type) {
		case nil:
			items[i] = Item{Result: transport.ConfigKeyNotFound}
		case string:
			items[i] = Item{Result: transport.ConfigKeyOK, Data: []byte(val)}
		case []byte:
			items[i] = Item{Result: transport.ConfigKeyOK, Data: val}
		default:
			items[i] = Item{Result: transport.ConfigKeyReadFailed}
		}
	}
	return items, nil
}

// Put implements Writer. Values never expire.
func (s *RedisStore) Put(ctx context.Context, key transport.ConfigKey, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.RedisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("storing %s: %w", key.Key, err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
