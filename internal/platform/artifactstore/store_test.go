package artifactstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/upcycleai/internal/platform/kvstore"
)

func exerciseWriteOnce(t *testing.T, s Store, key string) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, key); ok || err != nil {
		t.Fatalf("empty slot: ok=%v err=%v", ok, err)
	}
	stored, err := s.PutIfAbsent(ctx, key, []byte("first"))
	if err != nil || !stored {
		t.Fatalf("first put: stored=%v err=%v", stored, err)
	}
	stored, err = s.PutIfAbsent(ctx, key, []byte("second"))
	if err != nil || stored {
		t.Fatalf("second put: stored=%v err=%v", stored, err)
	}
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok || string(v) != "first" {
		t.Fatalf("get: want=first got=%s ok=%v err=%v", v, ok, err)
	}
}

func TestMemoryWriteOnce(t *testing.T) {
	m := NewMemory()
	exerciseWriteOnce(t, m, "project:p1:image")
	if m.Len() != 1 {
		t.Fatalf("len: want=1 got=%d", m.Len())
	}
}

func TestRedisWriteOnce(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := kvstore.DialRedis(context.Background(), addr)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer rdb.Close()
	exerciseWriteOnce(t, NewRedis(rdb, "test", 0), "project:"+uuid.NewString()+":image")
}
