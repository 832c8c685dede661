// Package artifactstore holds generated binary artifacts (images, speech) keyed by
// entity and variant. Slots are write-once: the first value stored for a key wins.
package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// PutIfAbsent stores value only when the slot is empty and reports whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
}

type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[key]
	return v, ok, nil
}

func (m *Memory) PutIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[key]; ok {
		return false, nil
	}
	m.slots[key] = append([]byte(nil), value...)
	return true, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

type Redis struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis stores artifacts under "<prefix>:artifact:<key>". ttl=0 keeps them forever.
func NewRedis(rdb *goredis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix != "" {
		prefix += ":"
	}
	return &Redis{rdb: rdb, prefix: prefix + "artifact:", ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("artifact get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, value, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("artifact put %s: %w", key, err)
	}
	return ok, nil
}
