package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `server:
  address: 127.0.0.1
  port: 9090
storage:
  db_path: /var/lib/chatsphere
cache:
  ttl_seconds: 10
  capacity: 50
security:
  cors:
    allowed_origins: ["https://chat.example.com"]
  rate_limit:
    rps: 20
    burst: 40
  admin:
    username: admin
    password_hash: $2a$10$abcdefghijklmnopqrstuv
polls:
  sweep_cron: "*/2 * * * *"
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatsphere.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", c.Addr())
	require.Equal(t, "/var/lib/chatsphere", c.Storage.DBPath)
	require.Equal(t, 10, c.CacheTTLSeconds())
	require.Equal(t, 50, c.CacheCapacity())
	require.Equal(t, []string{"https://chat.example.com"}, c.Security.CORS.AllowedOrigins)
	require.Equal(t, 20.0, c.Security.RateLimit.RPS)
	require.Equal(t, "admin", c.Security.Admin.Username)
	require.Equal(t, "*/2 * * * *", c.Polls.SweepCron)
	require.Equal(t, "debug", c.Logging.Level)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a map"))
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	var c Config
	require.Equal(t, ":8080", c.Addr())
	require.Equal(t, 30, c.CacheTTLSeconds())
	require.Equal(t, 1000, c.CacheCapacity())
}

func TestAddrWithoutPort(t *testing.T) {
	var c Config
	c.Server.Address = ":9999"
	require.Equal(t, ":9999", c.Addr())
}

func TestLoadEffectiveEnvOverrides(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	t.Setenv("CHATSPHERE_ADDR", "0.0.0.0:7000")
	t.Setenv("CHATSPHERE_DB_PATH", "/tmp/override")
	t.Setenv("CHATSPHERE_LOG_LEVEL", "warn")

	c, envUsed, err := LoadEffective(path)
	require.NoError(t, err)
	require.True(t, envUsed)
	require.Equal(t, "0.0.0.0:7000", c.Addr())
	require.Equal(t, "/tmp/override", c.Storage.DBPath)
	require.Equal(t, "warn", c.Logging.Level)
	// untouched file values survive
	require.Equal(t, "admin", c.Security.Admin.Username)
}

func TestLoadEffectiveWithoutFile(t *testing.T) {
	c, envUsed, err := LoadEffective("")
	require.NoError(t, err)
	require.False(t, envUsed)
	require.Equal(t, ":8080", c.Addr())
}

func TestResolveConfigPathPrecedence(t *testing.T) {
	require.Equal(t, "/etc/cs.yaml", ResolveConfigPath("/etc/cs.yaml", true), "explicit flag wins")

	t.Setenv("CHATSPHERE_CONFIG", "/env/cs.yaml")
	require.Equal(t, "/env/cs.yaml", ResolveConfigPath("ignored", false))
}
