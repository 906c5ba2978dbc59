package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/synapse/internal/domain"
)

// Database drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
)

// Config holds the synapse node configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Node     NodeConfig     `yaml:"node"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds client API authentication settings. Peer routes are never authenticated.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// NodeConfig holds protocol settings of this node.
type NodeConfig struct {
	Address           string   `yaml:"address"` // host:port other nodes reach us at
	Peers             []string `yaml:"peers"`   // initial membership
	TTL               int      `yaml:"ttl"`
	ReplicationBudget *float64 `yaml:"replication_budget"`
	Partitioner       string   `yaml:"partitioner"` // modulo, ring
	Parallelism       int      `yaml:"parallelism"`
	HopTimeoutMs      int      `yaml:"hop_timeout_ms"`
	TagRetentionSec   int      `yaml:"tag_retention_sec"`   // 0 keeps tags forever
	SweepIntervalSec  int      `yaml:"sweep_interval_sec"`  // tag sweep period
	GoodDealThreshold *float64 `yaml:"good_deal_threshold"` // score at or above is a good deal
	Forwarding        bool     `yaml:"forwarding"`          // send remote branches over HTTP
}

// Protocol converts the node section into protocol settings.
func (n NodeConfig) Protocol() domain.ProtocolConfig {
	p := domain.DefaultProtocolConfig()
	p.TTL = n.TTL
	if n.ReplicationBudget != nil {
		p.ReplicationBudget = *n.ReplicationBudget
	}
	if n.Parallelism > 0 {
		p.Parallelism = n.Parallelism
	}
	if n.HopTimeoutMs > 0 {
		p.HopTimeout = time.Duration(n.HopTimeoutMs) * time.Millisecond
	}
	p.TagRetention = time.Duration(n.TagRetentionSec) * time.Second
	if n.GoodDealThreshold != nil {
		p.GoodDealThreshold = *n.GoodDealThreshold
	}
	return p
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, substituting ${VAR} and ${VAR:-default}, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	def := domain.DefaultProtocolConfig()

	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMemory
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Node.Address == "" {
		c.Node.Address = fmt.Sprintf("127.0.0.1:%d", c.HTTP.Port)
	}
	if c.Node.TTL <= 0 {
		c.Node.TTL = def.TTL
	}
	if c.Node.ReplicationBudget == nil {
		b := def.ReplicationBudget
		c.Node.ReplicationBudget = &b
	}
	if c.Node.Partitioner == "" {
		c.Node.Partitioner = "modulo"
	}
	if c.Node.Parallelism <= 0 {
		c.Node.Parallelism = def.Parallelism
	}
	if c.Node.HopTimeoutMs <= 0 {
		c.Node.HopTimeoutMs = int(def.HopTimeout / time.Millisecond)
	}
	if c.Node.SweepIntervalSec <= 0 {
		c.Node.SweepIntervalSec = 60
	}
	if c.Node.GoodDealThreshold == nil {
		th := def.GoodDealThreshold
		c.Node.GoodDealThreshold = &th
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be memory, redis or valkey, got %q", c.Database.Driver)
	}
	switch c.Node.Partitioner {
	case "modulo", "ring":
	default:
		return fmt.Errorf("node.partitioner must be \"modulo\" or \"ring\", got %q", c.Node.Partitioner)
	}
	if c.Node.TagRetentionSec < 0 {
		return fmt.Errorf("node.tag_retention_sec must not be negative, got %d", c.Node.TagRetentionSec)
	}
	if th := *c.Node.GoodDealThreshold; th < 0 || th > 1 {
		return fmt.Errorf("node.good_deal_threshold must be within [0, 1], got %v", th)
	}
	for i, p := range c.Node.Peers {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("node.peers[%d] is empty", i)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
