package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/upcycleai/internal/observability"
	"github.com/yungbote/upcycleai/internal/platform/artifactstore"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

const (
	ArtifactImage = "image"
	ArtifactAudio = "audio"
)

func ProjectImageKey(projectID string) string {
	return "project:" + projectID + ":image"
}

func StepImageKey(projectID string, step int) string {
	return "project:" + projectID + ":step:" + strconv.Itoa(step) + ":image"
}

func StepAudioKey(projectID string, step int) string {
	return "project:" + projectID + ":step:" + strconv.Itoa(step) + ":audio"
}

// FetchFunc produces an artifact on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// ArtifactCache keeps one generated artifact per key. A slot is filled at most once,
// and concurrent misses for the same key share a single fetch. The shared fetch runs
// until every caller waiting on it has gone; one caller leaving early does not fail
// the others.
type ArtifactCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetOrCreate(ctx context.Context, key string, kind string, fetch FetchFunc) ([]byte, error)
}

type artifactCache struct {
	log     *logger.Logger
	store   artifactstore.Store
	pending singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context of one shared fetch, cancelled when its last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewArtifactCache(log *logger.Logger, store artifactstore.Store) ArtifactCache {
	if store == nil {
		store = artifactstore.NewMemory()
	}
	return &artifactCache{
		log:     log.With("service", "ArtifactCache"),
		store:   store,
		flights: map[string]*flight{},
	}
}

func (c *artifactCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.store.Get(ctx, key)
}

func (c *artifactCache) GetOrCreate(ctx context.Context, key string, kind string, fetch FetchFunc) ([]byte, error) {
	if v, ok, err := c.store.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		observability.Current().ObserveCacheLookup(kind, "hit")
		return v, nil
	}

	f, ch := c.join(ctx, key, fetch)
	defer c.leave(key, f)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			observability.Current().ObserveCacheLookup(kind, "shared")
		} else {
			observability.Current().ObserveCacheLookup(kind, "miss")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// join registers the caller on the key's flight and subscribes it to the shared
// fetch. Both happen under mu so a caller never waits on a fetch whose flight it
// does not hold.
func (c *artifactCache) join(ctx context.Context, key string, fetch FetchFunc) (*flight, <-chan singleflight.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	ch := c.pending.DoChan(key, func() (any, error) {
		return c.fill(f.ctx, key, fetch)
	})
	return f, ch
}

func (c *artifactCache) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
		// A cancelled fetch may still be unwinding; later callers start afresh.
		c.pending.Forget(key)
	}
}

func (c *artifactCache) fill(ctx context.Context, key string, fetch FetchFunc) (any, error) {
	// Another process may have filled the slot while we waited on the store.
	if v, ok, err := c.store.Get(ctx, key); err == nil && ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("empty artifact for %s", key)
	}
	stored, err := c.store.PutIfAbsent(ctx, key, v)
	if err != nil {
		return nil, err
	}
	if !stored {
		winner, ok, err := c.store.Get(ctx, key)
		if err == nil && ok {
			c.log.Debug("artifact slot already filled", "key", key)
			return winner, nil
		}
	}
	return v, nil
}
