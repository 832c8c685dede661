package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/upcycleai/internal/platform/artifactstore"
	"github.com/yungbote/upcycleai/internal/platform/kvstore"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

var (
	dialRedis = kvstore.DialRedis
	openSQL   = kvstore.OpenSQL
)

type StoreBootstrapErrorCode string

const (
	StoreBootstrapErrorInvalidDriver StoreBootstrapErrorCode = "invalid_driver"
	StoreBootstrapErrorMissingDSN    StoreBootstrapErrorCode = "missing_dsn"
	StoreBootstrapErrorConnectFailed StoreBootstrapErrorCode = "connect_failed"
)

type StoreBootstrapError struct {
	Code   StoreBootstrapErrorCode
	Store  string
	Driver string
	Cause  error
}

func (e *StoreBootstrapError) Error() string {
	if e == nil {
		return "store bootstrap failed"
	}
	return fmt.Sprintf("%s store bootstrap failed (code=%s driver=%q): %v", e.Store, e.Code, e.Driver, e.Cause)
}

func (e *StoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Stores are the persistence backends shared by the services. Redis is set whenever
// REDIS_ADDR is configured, even if only the event bus uses it.
type Stores struct {
	KV        kvstore.Store
	Artifacts artifactstore.Store
	Redis     *goredis.Client
}

func (s *Stores) Close() {
	if s == nil {
		return
	}
	if s.KV != nil {
		_ = s.KV.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

func resolveStores(ctx context.Context, log *logger.Logger, cfg Config) (*Stores, error) {
	out := &Stores{}

	if cfg.RedisAddr != "" {
		rdb, err := dialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			err = &StoreBootstrapError{Code: StoreBootstrapErrorConnectFailed, Store: "redis", Driver: KVDriverRedis, Cause: err}
			log.Error("Redis bootstrap failed", "addr", cfg.RedisAddr, "error", err)
			return nil, err
		}
		out.Redis = rdb
	}

	kv, err := resolveKVStore(log, cfg, out.Redis)
	if err != nil {
		out.Close()
		log.Error("KV store bootstrap failed", "driver", cfg.KVDriver, "error_code", bootstrapErrorCode(err), "error", err)
		return nil, err
	}
	if cfg.KVPrefix != "" {
		kv = kvstore.WithPrefix(kv, cfg.KVPrefix)
	}
	out.KV = kv

	switch cfg.ArtifactStore {
	case ArtifactStoreRedis:
		if out.Redis == nil {
			out.Close()
			return nil, &StoreBootstrapError{
				Code:   StoreBootstrapErrorMissingDSN,
				Store:  "artifact",
				Driver: ArtifactStoreRedis,
				Cause:  errors.New("REDIS_ADDR not set"),
			}
		}
		out.Artifacts = artifactstore.NewRedis(out.Redis, cfg.KVPrefix, cfg.ArtifactTTL)
	case ArtifactStoreMemory, "":
		out.Artifacts = artifactstore.NewMemory()
	default:
		out.Close()
		return nil, &StoreBootstrapError{
			Code:   StoreBootstrapErrorInvalidDriver,
			Store:  "artifact",
			Driver: cfg.ArtifactStore,
			Cause:  fmt.Errorf("unsupported artifact store %q", cfg.ArtifactStore),
		}
	}

	log.Info("Stores ready", "kv_driver", cfg.KVDriver, "artifact_store", cfg.ArtifactStore, "redis", out.Redis != nil)
	return out, nil
}

func resolveKVStore(log *logger.Logger, cfg Config, rdb *goredis.Client) (kvstore.Store, error) {
	switch cfg.KVDriver {
	case kvstore.DriverSQLite, kvstore.DriverPostgres:
		if cfg.KVDSN == "" {
			return nil, &StoreBootstrapError{
				Code:   StoreBootstrapErrorMissingDSN,
				Store:  "kv",
				Driver: cfg.KVDriver,
				Cause:  errors.New("KV_DSN not set"),
			}
		}
		s, err := openSQL(log, cfg.KVDriver, cfg.KVDSN)
		if err != nil {
			return nil, &StoreBootstrapError{Code: StoreBootstrapErrorConnectFailed, Store: "kv", Driver: cfg.KVDriver, Cause: err}
		}
		return s, nil
	case KVDriverRedis:
		if rdb == nil {
			return nil, &StoreBootstrapError{
				Code:   StoreBootstrapErrorMissingDSN,
				Store:  "kv",
				Driver: cfg.KVDriver,
				Cause:  errors.New("REDIS_ADDR not set"),
			}
		}
		return kvstore.NewRedis(log, rdb), nil
	case KVDriverMemory:
		return kvstore.NewMemory(), nil
	default:
		return nil, &StoreBootstrapError{
			Code:   StoreBootstrapErrorInvalidDriver,
			Store:  "kv",
			Driver: cfg.KVDriver,
			Cause:  fmt.Errorf("unsupported kv driver %q", cfg.KVDriver),
		}
	}
}

func bootstrapErrorCode(err error) StoreBootstrapErrorCode {
	var be *StoreBootstrapError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	return StoreBootstrapErrorConnectFailed
}
