package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/yungbote/upcycleai/internal/platform/kvstore"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

const envPrefix = "UPCYCLE"

const (
	KVDriverMemory = "memory"
	KVDriverRedis  = "redis"

	ArtifactStoreMemory = "memory"
	ArtifactStoreRedis  = "redis"
)

// Config is read from UPCYCLE_* environment variables. Unprefixed names are accepted
// as a fallback, so a plain GEMINI_API_KEY works.
type Config struct {
	LogMode string `envconfig:"LOG_MODE" default:"development"`

	// Local API
	Addr           string   `envconfig:"ADDR" default:"127.0.0.1:8080"`
	AllowedOrigins []string `envconfig:"CORS_ORIGINS"`

	// Persistence: sqlite | postgres | redis | memory
	KVDriver     string `envconfig:"KV_DRIVER" default:"sqlite"`
	KVDSN        string `envconfig:"KV_DSN"`
	KVPrefix     string `envconfig:"KV_PREFIX" default:"upcycle"`
	HistoryLimit int    `envconfig:"HISTORY_LIMIT" default:"100"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	ArtifactStore string        `envconfig:"ARTIFACT_STORE" default:"memory"`
	ArtifactTTL   time.Duration `envconfig:"ARTIFACT_TTL" default:"168h"`
	EventsChannel string        `envconfig:"EVENTS_CHANNEL" default:"upcycle:events"`

	// Generative backend
	GeminiAPIKey     string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL    string        `envconfig:"GEMINI_BASE_URL"`
	GeminiTimeout    time.Duration `envconfig:"GEMINI_TIMEOUT" default:"120s"`
	GeminiMaxRetries int           `envconfig:"GEMINI_MAX_RETRIES" default:"0"`
	IdentifyModel    string        `envconfig:"IDENTIFY_MODEL"`
	TipModel         string        `envconfig:"TIP_MODEL"`
	GroundingModel   string        `envconfig:"GROUNDING_MODEL"`
	SpeechModel      string        `envconfig:"SPEECH_MODEL"`
	Voice            string        `envconfig:"VOICE"`

	PrefetchConcurrency int  `envconfig:"PREFETCH_CONCURRENCY" default:"2"`
	PlaybackRealtime    bool `envconfig:"PLAYBACK_REALTIME" default:"true"`

	// Observability
	MetricsEnabled  bool              `envconfig:"METRICS_ENABLED" default:"true"`
	OtelEnabled     bool              `envconfig:"OTEL_ENABLED" default:"false"`
	OtelEndpoint    string            `envconfig:"OTEL_ENDPOINT"`
	OtelHeaders     map[string]string `envconfig:"OTEL_HEADERS"`
	OtelInsecure    bool              `envconfig:"OTEL_INSECURE" default:"true"`
	OtelSampleRatio float64           `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
	Environment     string            `envconfig:"ENVIRONMENT" default:"local"`
	Version         string            `envconfig:"VERSION" default:"dev"`
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Could not read .env file", "error", err)
	}
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return Config{}, err
	}
	log.Info("Config loaded",
		"addr", cfg.Addr,
		"kv_driver", cfg.KVDriver,
		"artifact_store", cfg.ArtifactStore,
		"history_limit", cfg.HistoryLimit,
		"gemini_key_present", cfg.GeminiAPIKey != "",
		"metrics", cfg.MetricsEnabled,
		"otel", cfg.OtelEnabled,
	)
	return cfg, nil
}

// ResolveDefaults validates drivers and derives the sqlite path when none is given.
func (c *Config) ResolveDefaults() error {
	c.KVDriver = strings.ToLower(strings.TrimSpace(c.KVDriver))
	c.ArtifactStore = strings.ToLower(strings.TrimSpace(c.ArtifactStore))

	switch c.KVDriver {
	case kvstore.DriverSQLite:
		if c.KVDSN == "" {
			c.KVDSN = defaultSQLitePath()
		}
	case kvstore.DriverPostgres:
		if c.KVDSN == "" {
			return fmt.Errorf("KV_DSN required for kv driver %q", c.KVDriver)
		}
	case KVDriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR required for kv driver %q", c.KVDriver)
		}
	case KVDriverMemory:
	default:
		return fmt.Errorf("unsupported KV_DRIVER: %s", c.KVDriver)
	}

	switch c.ArtifactStore {
	case ArtifactStoreMemory:
	case ArtifactStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR required for artifact store %q", c.ArtifactStore)
		}
	default:
		return fmt.Errorf("unsupported ARTIFACT_STORE: %s", c.ArtifactStore)
	}

	if c.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must be >= 0, got %d", c.HistoryLimit)
	}
	if c.PrefetchConcurrency < 1 {
		c.PrefetchConcurrency = 1
	}
	return nil
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "upcycle.db"
	}
	return filepath.Join(dir, "upcycle", "upcycle.db")
}
