package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.PoolSize != 5 {
		t.Fatalf("expected default pool size 5, got %d", cfg.PoolSize)
	}
	if cfg.ABSplit != "control:50,variant:50" {
		t.Fatalf("unexpected default split: %s", cfg.ABSplit)
	}
	if cfg.ABStickyBy != "submission_id" {
		t.Fatalf("unexpected default sticky field: %s", cfg.ABStickyBy)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Fatalf("unexpected default sync interval: %s", cfg.SyncInterval)
	}
	if cfg.UseNetworkedStore() {
		t.Fatal("no DSN configured, expected embedded store")
	}
	if cfg.Production() {
		t.Fatal("default environment should not be production")
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("POSTGRES_POOL_SIZE", "abc")
	t.Setenv("FOLIO_SYNC_INTERVAL", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "POSTGRES_POOL_SIZE") {
		t.Fatalf("error should mention POSTGRES_POOL_SIZE, got: %s", got)
	}
	if !contains(got, "FOLIO_SYNC_INTERVAL") {
		t.Fatalf("error should mention FOLIO_SYNC_INTERVAL, got: %s", got)
	}
}

func TestPostgresURLsFailoverList(t *testing.T) {
	t.Setenv("POSTGRESQL_URLS", "postgres://a/db, postgres://b/db ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.PostgresDSNs) != 2 {
		t.Fatalf("expected 2 DSNs, got %v", cfg.PostgresDSNs)
	}
	if cfg.PostgresDSNs[0] != "postgres://a/db" || cfg.PostgresDSNs[1] != "postgres://b/db" {
		t.Fatalf("unexpected DSN order: %v", cfg.PostgresDSNs)
	}
	if !cfg.UseNetworkedStore() {
		t.Fatal("DSNs configured, expected networked store")
	}
}

func TestSingleDSNKeys(t *testing.T) {
	t.Setenv("POSTGRESQL_URL", "postgres://solo/db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.PostgresDSNs) != 1 || cfg.PostgresDSNs[0] != "postgres://solo/db" {
		t.Fatalf("unexpected DSNs: %v", cfg.PostgresDSNs)
	}
}

func TestLoadRejectsBadSplit(t *testing.T) {
	t.Setenv("DECISION_AB_SPLIT", "control:60,variant:60")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to reject split that does not sum to 100")
	}
	if !contains(err.Error(), "DECISION_AB_SPLIT") {
		t.Fatalf("error should mention DECISION_AB_SPLIT, got: %s", err)
	}
}

func TestProductionRequiresModelName(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail in production without a model name")
	}

	t.Setenv("DECISION_MODEL_NAME", "manuscript_scorer")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Production() {
		t.Fatal("expected production mode")
	}
}

func TestRedisAddr(t *testing.T) {
	cfg := Config{RedisHost: "", RedisPort: 6379}
	if got := cfg.RedisAddr(); got != "" {
		t.Fatalf("expected empty addr without a host, got %q", got)
	}
	cfg.RedisHost = "cache.internal"
	if got := cfg.RedisAddr(); got != "cache.internal:6379" {
		t.Fatalf("unexpected addr: %q", got)
	}
}

func TestMergeFieldsList(t *testing.T) {
	t.Setenv("FOLIO_SYNC_MERGE_FIELDS", "quality_score, agent_analysis")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.SyncMergeFields) != 2 || cfg.SyncMergeFields[1] != "agent_analysis" {
		t.Fatalf("unexpected merge fields: %v", cfg.SyncMergeFields)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
