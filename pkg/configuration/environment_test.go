package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "PLACEMENT_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "internship")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("PLACEMENT_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("PLACEMENT_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("PLACEMENT_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestConfiguration_Validate(t *testing.T) {
	valid := func() *Configuration {
		return &Configuration{
			RateLimit:          RateLimitOptions{GlobalRPS: 10, Storage: "memory"},
			QueueCache:         QueueCacheOptions{Backend: "memory"},
			StoreBackend:       "Postgres",
			PreferenceMaxRanks: 5,
			Replicas:           1,
		}
	}

	c := valid()
	require.NoError(t, c.Validate())
	require.Equal(t, "postgres", c.StoreBackend)

	c = valid()
	c.PreferenceMaxRanks = 6
	require.ErrorContains(t, c.Validate(), "PREFERENCE_MAX_RANKS")

	c = valid()
	c.StoreBackend = "sqlite"
	require.ErrorContains(t, c.Validate(), "STORE_BACKEND")

	c = valid()
	c.QueueCache = QueueCacheOptions{Backend: "redis"}
	require.ErrorContains(t, c.Validate(), "RedisURL")

	c = valid()
	c.Replicas = 3
	require.ErrorContains(t, c.Validate(), "REPLICAS=3")
	c.QueueCache = QueueCacheOptions{Backend: "redis", RedisURL: "redis://localhost:6379/0"}
	require.NoError(t, c.Validate())

	c = valid()
	c.Replicas = 0
	require.ErrorContains(t, c.Validate(), "REPLICAS")

	c = valid()
	c.RateLimit.Storage = "disk"
	require.ErrorContains(t, c.Validate(), "rate limit")
}

func TestConfiguration_CorsAllowedOrigins(t *testing.T) {
	c := &Configuration{CorsOrigins: " http://a.test , ,http://b.test"}
	require.Equal(t, []string{"http://a.test", "http://b.test"}, c.CorsAllowedOrigins())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
