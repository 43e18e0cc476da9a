// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dtecho/folio/internal/decision"
)

// Config holds all application configuration.
type Config struct {
	// ENVIRONMENT=production forbids degraded fallbacks; anything else
	// permits them with a logged warning.
	Environment string

	// Store settings. A configured DSN selects the networked backend;
	// otherwise the embedded single-file engine under StateDir is used.
	PostgresDSNs []string // Failover list, tried in order.
	PoolSize     int
	StateDir     string

	// Redis settings. When set they enable the distributed advisory lock
	// and the sync event fan-out.
	RedisHost string
	RedisPort int

	// Predictor loading.
	MLflowTrackingURI string
	ModelName         string
	ModelVersion      string
	ModelPath         string

	// A/B assignment.
	ABSplit    string
	ABStickyBy string
	ABForce    string

	// External journal system.
	OJSBaseURL string
	OJSAPIKey  string

	// Synchronizer settings.
	SyncInterval    time.Duration
	SyncConcurrency int
	SyncBatchSize   int
	SyncRetryLimit  int
	SyncStrategy    string
	SyncMergeFields []string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults, collecting every malformed value into one error.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		Environment:       envStr("ENVIRONMENT", "development"),
		PostgresDSNs:      postgresDSNs(),
		StateDir:          envStr("FOLIO_STATE_DIR", "."),
		RedisHost:         envStr("REDIS_HOST", ""),
		MLflowTrackingURI: envStr("MLFLOW_TRACKING_URI", ""),
		ModelName:         envStr("DECISION_MODEL_NAME", ""),
		ModelVersion:      envStr("DECISION_MODEL_VERSION", ""),
		ModelPath:         envStr("DECISION_MODEL_PATH", ""),
		ABSplit:           envStr("DECISION_AB_SPLIT", "control:50,variant:50"),
		ABStickyBy:        envStr("DECISION_AB_STICKY_BY", decision.DefaultStickyField),
		ABForce:           envStr("DECISION_AB_FORCE", ""),
		OJSBaseURL:        envStr("OJS_BASE_URL", ""),
		OJSAPIKey:         envStr("OJS_API_KEY", ""),
		SyncStrategy:      envStr("FOLIO_SYNC_STRATEGY", "latest_wins"),
		SyncMergeFields:   envList("FOLIO_SYNC_MERGE_FIELDS"),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "folio"),
		LogLevel:          envStr("FOLIO_LOG_LEVEL", "info"),
	}

	var err error
	cfg.PoolSize, err = envInt("POSTGRES_POOL_SIZE", 5)
	collect(err)
	cfg.RedisPort, err = envInt("REDIS_PORT", 6379)
	collect(err)
	cfg.SyncInterval, err = envDuration("FOLIO_SYNC_INTERVAL", 30*time.Second)
	collect(err)
	cfg.SyncConcurrency, err = envInt("FOLIO_SYNC_CONCURRENCY", 4)
	collect(err)
	cfg.SyncBatchSize, err = envInt("FOLIO_SYNC_BATCH_SIZE", 10)
	collect(err)
	cfg.SyncRetryLimit, err = envInt("FOLIO_SYNC_RETRY_LIMIT", 3)
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// postgresDSNs assembles the failover list: POSTGRESQL_URLS wins, then
// the single-DSN keys.
func postgresDSNs() []string {
	if urls := os.Getenv("POSTGRESQL_URLS"); urls != "" {
		var out []string
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	for _, key := range []string{"POSTGRES_DSN", "POSTGRESQL_URL"} {
		if dsn := os.Getenv(key); dsn != "" {
			return []string{dsn}
		}
	}
	return nil
}

// Validate checks that configuration is coherent.
func (c Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("config: POSTGRES_POOL_SIZE must be positive")
	}
	if _, err := decision.ParseABSplit(c.ABSplit); err != nil {
		return fmt.Errorf("config: DECISION_AB_SPLIT: %w", err)
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("config: FOLIO_SYNC_CONCURRENCY must be positive")
	}
	if c.Production() && c.ModelName == "" {
		return fmt.Errorf("config: DECISION_MODEL_NAME is required in production")
	}
	return nil
}

// Production reports whether fallback paths are forbidden.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// UseNetworkedStore reports whether a Postgres DSN is configured.
func (c Config) UseNetworkedStore() bool {
	return len(c.PostgresDSNs) > 0
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// StorePath is the embedded engine's database file location.
func (c Config) StorePath() string {
	return filepath.Join(c.StateDir, "folio.db")
}

// ABConfig assembles the decision engine's variant assignment.
func (c Config) ABConfig() (decision.ABConfig, error) {
	buckets, err := decision.ParseABSplit(c.ABSplit)
	if err != nil {
		return decision.ABConfig{}, fmt.Errorf("config: DECISION_AB_SPLIT: %w", err)
	}
	return decision.ABConfig{Buckets: buckets, StickyBy: c.ABStickyBy, Force: c.ABForce}, nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
