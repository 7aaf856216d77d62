package configstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// fakeRedis is an in-memory redisClient.
type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	err    error
	mgets  [][]string
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mgets = append(f.mgets, keys)
	if f.err != nil {
		return redis.NewSliceResult(nil, f.err)
	}
	vals := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			vals[i] = v
		}
	}
	return redis.NewSliceResult(vals, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestRedisStore_Key(t *testing.T) {
	tests := []struct {
		prefix string
		key    transport.ConfigKey
		want   string
	}{
		{"", hostKey, "graylogic:device:config:broker-host"},
		{"fleet-a", keyKey, "fleet-a:device:secret:private-key"},
		{"fleet-a", caKey, "fleet-a:account:config:root-ca"},
	}
	for _, tt := range tests {
		s := newRedisStore(newFakeRedis(), tt.prefix)
		if got := s.RedisKey(tt.key); got != tt.want {
			t.Errorf("RedisKey(%v) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestRedisStore_FetchSingleMGET(t *testing.T) {
	fr := newFakeRedis()
	s := newRedisStore(fr, "")
	ctx := context.Background()

	if err := s.Put(ctx, hostKey, []byte("mqtt.example.com")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	items, err := s.Fetch(ctx, []transport.ConfigKey{hostKey, {Scope: 9, Store: transport.StoreConfig, Key: "x"}, caKey})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(fr.mgets) != 1 {
		t.Fatalf("MGET calls = %d, want 1", len(fr.mgets))
	}
	if len(fr.mgets[0]) != 2 {
		t.Errorf("MGET keys = %v, want the two valid keys", fr.mgets[0])
	}

	want := []transport.ConfigKeyResult{transport.ConfigKeyOK, transport.ConfigKeyReadFailed, transport.ConfigKeyNotFound}
	for i, w := range want {
		if items[i].Result != w {
			t.Errorf("items[%d].Result = %v, want %v", i, items[i].Result, w)
		}
	}
	if string(items[0].Data) != "mqtt.example.com" {
		t.Errorf("Data = %q, want mqtt.example.com", items[0].Data)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	fr := newFakeRedis()
	fr.err = errors.New("dial tcp: connection refused")
	s := newRedisStore(fr, "")

	_, err := s.Fetch(context.Background(), []transport.ConfigKey{hostKey})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUnavailable", err)
	}
}

func TestRedisStore_Close(t *testing.T) {
	fr := newFakeRedis()
	s := newRedisStore(fr, "")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fr.closed {
		t.Error("client not closed")
	}
}
