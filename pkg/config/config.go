package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Cache struct {
		// TTLSeconds is the snapshot freshness window; entries older than
		// this are treated as a miss. Zero means the 30s default.
		TTLSeconds int `yaml:"ttl_seconds"`
		// Capacity bounds resident keys; overflow evicts the oldest insert.
		Capacity int `yaml:"capacity"`
	} `yaml:"cache"`
	Security struct {
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		Admin struct {
			Username string `yaml:"username"`
			// PasswordHash is a bcrypt hash; plaintext is never configured.
			PasswordHash string `yaml:"password_hash"`
		} `yaml:"admin"`
	} `yaml:"security"`
	Notify struct {
		VAPIDPublicKey  string `yaml:"vapid_public_key"`
		VAPIDPrivateKey string `yaml:"vapid_private_key"`
		Contact         string `yaml:"contact"`
		QueueCapacity   int    `yaml:"queue_capacity"`
		Workers         int    `yaml:"workers"`
	} `yaml:"notify"`
	Polls struct {
		// SweepCron schedules the expiry sweeper; empty disables it.
		SweepCron string `yaml:"sweep_cron"`
	} `yaml:"polls"`
	Logging struct {
		Level    string `yaml:"level"`
		AuditDir string `yaml:"audit_dir"`
	} `yaml:"logging"`
}

// Addr returns the listen address, combining address and port when both are
// set. Falls back to ":8080".
func (c *Config) Addr() string {
	host := c.Server.Address
	if c.Server.Port > 0 {
		return net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
	}
	if host != "" {
		return host
	}
	return ":8080"
}

// CacheTTLSeconds returns the configured freshness window or the default.
func (c *Config) CacheTTLSeconds() int {
	if c.Cache.TTLSeconds > 0 {
		return c.Cache.TTLSeconds
	}
	return 30
}

// CacheCapacity returns the configured key bound or the default.
func (c *Config) CacheCapacity() int {
	if c.Cache.Capacity > 0 {
		return c.Cache.Capacity
	}
	return 1000
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

// ParseCommandFlags parses the process flags and reports which were
// explicitly set so callers can apply precedence (flags > env > file).
func ParseCommandFlags() (addr, dbPath, cfgPath string, set map[string]bool) {
	a := flag.String("addr", ":8080", "listen address")
	d := flag.String("db", "./data", "path to pebble database directory")
	c := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *a, *d, *c, set
}

// LoadEffective merges file config with CHATSPHERE_* environment overrides.
// The returned envUsed flag reports whether any env override applied.
func LoadEffective(cfgPath string) (*Config, bool, error) {
	var c *Config
	if cfgPath != "" {
		loaded, err := Load(cfgPath)
		if err != nil {
			return nil, false, err
		}
		c = loaded
	} else {
		c = &Config{}
	}
	envUsed := false
	if v := strings.TrimSpace(os.Getenv("CHATSPHERE_ADDR")); v != "" {
		c.Server.Address = v
		c.Server.Port = 0
		envUsed = true
	}
	if v := strings.TrimSpace(os.Getenv("CHATSPHERE_DB_PATH")); v != "" {
		c.Storage.DBPath = v
		envUsed = true
	}
	if v := strings.TrimSpace(os.Getenv("CHATSPHERE_ADMIN_PASSWORD_HASH")); v != "" {
		c.Security.Admin.PasswordHash = v
		envUsed = true
	}
	if v := strings.TrimSpace(os.Getenv("CHATSPHERE_VAPID_PUBLIC_KEY")); v != "" {
		c.Notify.VAPIDPublicKey = v
		envUsed = true
	}
	if v := strings.TrimSpace(os.Getenv("CHATSPHERE_VAPID_PRIVATE_KEY")); v != "" {
		c.Notify.VAPIDPrivateKey = v
		envUsed = true
	}
	if v := strings.TrimSpace(os.Getenv("CHATSPHERE_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
		envUsed = true
	}
	return c, envUsed, nil
}

// ResolveConfigPath picks the config path: explicit flag wins, then the
// CHATSPHERE_CONFIG env var, then a conventional default if it exists.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := strings.TrimSpace(os.Getenv("CHATSPHERE_CONFIG")); v != "" {
		return v
	}
	if _, err := os.Stat("chatsphere.yaml"); err == nil {
		return "chatsphere.yaml"
	}
	return ""
}
