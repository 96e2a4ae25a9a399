package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-highlevel-auth/credentials"
	"github.com/jrsteele09/go-highlevel-auth/internal/config"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
client_id: app123-xyz
client_secret: from-file
agency_access_token: agency-file
log_level: debug
sessions:
  store: redis
  seal_key: c2VhbA==
  redis:
    addr: redis:6380
    db: 3
    prefix: tenant-a
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"HL_PRIVATE_INTEGRATION_TOKEN", "HL_AGENCY_ACCESS_TOKEN", "HL_LOCATION_ACCESS_TOKEN",
		"HL_CLIENT_ID", "HL_CLIENT_SECRET", "HL_SESSION_STORE", "HL_POSTGRES_DSN",
		"HL_REDIS_ADDR", "HL_REDIS_DB", "HL_REDIS_PREFIX", "HL_SEAL_KEY", "HL_API_BASE_URL", "LOG_LEVEL", "PORT",
	} {
		t.Setenv(name, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := config.New()

	require.Equal(t, config.MemoryStore, cfg.GetSessionStore())
	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, "localhost:6379", cfg.GetRedisAddr())
	require.Equal(t, 0, cfg.GetRedisDB())
	require.Equal(t, "hlauth", cfg.GetRedisPrefix())
	require.Equal(t, "info", cfg.GetLogLevel())
	require.Equal(t, "https://services.leadconnectorhq.com", cfg.GetAPIBaseURL())
	require.Empty(t, cfg.GetSealKey())
	require.Equal(t, credentials.Config{}, config.Credentials(cfg))
}

func TestNew_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("HL_CLIENT_ID", "app123-xyz")
	t.Setenv("HL_CLIENT_SECRET", "secret")
	t.Setenv("HL_PRIVATE_INTEGRATION_TOKEN", "pit")
	t.Setenv("HL_SESSION_STORE", "postgres")
	t.Setenv("HL_POSTGRES_DSN", "postgres://localhost/hl")
	t.Setenv("HL_REDIS_DB", "not-a-number")
	t.Setenv("PORT", ":9090")

	cfg := config.New()
	require.Equal(t, config.PostgresStore, cfg.GetSessionStore())
	require.Equal(t, "postgres://localhost/hl", cfg.GetPostgresDSN())
	require.Equal(t, 0, cfg.GetRedisDB())
	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, credentials.Config{
		PrivateIntegrationToken: "pit",
		ClientID:                "app123-xyz",
		ClientSecret:            "secret",
	}, config.Credentials(cfg))
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "hlauth.yaml", yamlConfig)

	t.Run("file values", func(t *testing.T) {
		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, config.RedisStore, cfg.GetSessionStore())
		require.Equal(t, "redis:6380", cfg.GetRedisAddr())
		require.Equal(t, 3, cfg.GetRedisDB())
		require.Equal(t, "tenant-a", cfg.GetRedisPrefix())
		require.Equal(t, "c2VhbA==", cfg.GetSealKey())
		require.Equal(t, "debug", cfg.GetLogLevel())
		require.Equal(t, "agency-file", cfg.GetAgencyAccessToken())
		require.Equal(t, "from-file", cfg.GetClientSecret())
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("HL_CLIENT_SECRET", "from-env")
		t.Setenv("HL_REDIS_DB", "5")
		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "from-env", cfg.GetClientSecret())
		require.Equal(t, 5, cfg.GetRedisDB())
		require.Equal(t, "app123-xyz", cfg.GetClientID())
	})

	t.Run("no path", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		require.Equal(t, config.MemoryStore, cfg.GetSessionStore())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed file", func(t *testing.T) {
		_, err := config.Load(writeFile(t, "bad.yaml", "sessions: [unterminated"))
		require.Error(t, err)
	})
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	t.Run("loads unset variables", func(t *testing.T) {
		path := writeFile(t, ".env", "HL_CLIENT_ID=app9-dotenv\nHL_SESSION_STORE=redis\n")
		t.Setenv("HL_SESSION_STORE", "postgres")
		os.Unsetenv("HL_CLIENT_ID")

		require.NoError(t, config.LoadEnvFile(path, true))
		t.Cleanup(func() { os.Unsetenv("HL_CLIENT_ID") })

		cfg := config.New()
		require.Equal(t, "app9-dotenv", cfg.GetClientID())
		require.Equal(t, config.PostgresStore, cfg.GetSessionStore())
	})

	t.Run("missing optional file", func(t *testing.T) {
		require.NoError(t, config.LoadEnvFile(filepath.Join(t.TempDir(), ".env"), false))
	})

	t.Run("missing required file", func(t *testing.T) {
		require.Error(t, config.LoadEnvFile(filepath.Join(t.TempDir(), ".env"), true))
	})
}
