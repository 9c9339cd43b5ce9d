package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Replication strategies accepted by ReplicationConfig.Strategy.
const (
	StrategyNone   = "none"
	StrategyGit    = "git"
	StrategyGitHub = "github"
	StrategyMQTT   = "mqtt"
)

// Config is the root configuration structure for tempkey.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Store       StoreConfig       `yaml:"store"`
	Replication ReplicationConfig `yaml:"replication"`
	Health      HealthConfig      `yaml:"health"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BotConfig contains chat gateway settings.
type BotConfig struct {
	// Token is the Telegram bot token. Set via BOT_TOKEN, never in the file.
	Token string `yaml:"token"`

	// AdminID is the single chat user permitted to run restricted commands.
	AdminID int64 `yaml:"admin_id"`

	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int `yaml:"poll_timeout"`

	// Debug enables verbose request logging in the Telegram client.
	Debug bool `yaml:"debug"`
}

// StoreConfig contains record store settings.
type StoreConfig struct {
	// Path is the JSON file holding the device records.
	Path string `yaml:"path"`
}

// ReplicationConfig selects and configures the remote archive sink.
type ReplicationConfig struct {
	Strategy string                  `yaml:"strategy"`
	Timeout  int                     `yaml:"timeout"` // seconds
	Git      GitReplicationConfig    `yaml:"git"`
	GitHub   GitHubReplicationConfig `yaml:"github"`
	MQTT     MQTTReplicationConfig   `yaml:"mqtt"`
}

// GitReplicationConfig configures the local-client strategy.
type GitReplicationConfig struct {
	// RepoDir is the working tree. Defaults to the directory of the store file.
	RepoDir     string `yaml:"repo_dir"`
	RemoteName  string `yaml:"remote_name"`
	RemoteURL   string `yaml:"remote_url"`
	Branch      string `yaml:"branch"`
	Token       string `yaml:"token"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	Message     string `yaml:"message"`
}

// GitHubReplicationConfig configures the direct-API strategy.
type GitHubReplicationConfig struct {
	BaseURL     string `yaml:"base_url"`
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	Path        string `yaml:"path"`
	Branch      string `yaml:"branch"`
	Token       string `yaml:"token"`
	Message     string `yaml:"message"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// MQTTReplicationConfig configures the broker strategy.
type MQTTReplicationConfig struct {
	// Name is the store name used in the snapshot topic.
	Name string `yaml:"name"`
}

// HealthConfig contains the liveness endpoint settings.
type HealthConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern TEMPKEY_SECTION_KEY. The bare names
// BOT_TOKEN, GITHUB_TOKEN, ADMIN_ID and PORT are honoured as well so existing
// deployments keep working.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			PollTimeout: 60,
		},
		Store: StoreConfig{
			Path: "./Tempkey.json",
		},
		Replication: ReplicationConfig{
			Strategy: StrategyNone,
			Timeout:  30,
			Git: GitReplicationConfig{
				RemoteName:  "origin",
				Branch:      "main",
				AuthorName:  "tempkey",
				AuthorEmail: "tempkey@localhost",
				Message:     "Update Tempkey.json with new users",
			},
			GitHub: GitHubReplicationConfig{
				BaseURL:     "https://api.github.com",
				Path:        "Tempkey.json",
				Branch:      "main",
				Message:     "Update Tempkey.json with new users",
				MaxAttempts: 3,
			},
			MQTT: MQTTReplicationConfig{
				Name: "tempkey",
			},
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    10000,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/tempkey.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tempkey",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// firstEnv returns the value of the first non-empty environment variable.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Only numeric values can fail to apply.
func applyEnvOverrides(cfg *Config) error {
	// Bot
	if v := firstEnv("TEMPKEY_BOT_TOKEN", "BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := firstEnv("TEMPKEY_ADMIN_ID", "ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("parsing ADMIN_ID: %w", err)
		}
		cfg.Bot.AdminID = id
	}

	// Store
	if v := os.Getenv("TEMPKEY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// Replication. The GitHub token feeds both the git and github strategies.
	if v := os.Getenv("TEMPKEY_REPLICATION_STRATEGY"); v != "" {
		cfg.Replication.Strategy = v
	}
	if v := firstEnv("TEMPKEY_GITHUB_TOKEN", "GITHUB_TOKEN"); v != "" {
		cfg.Replication.Git.Token = v
		cfg.Replication.GitHub.Token = v
	}
	if v := os.Getenv("TEMPKEY_GIT_REMOTE_URL"); v != "" {
		cfg.Replication.Git.RemoteURL = v
	}

	// Health
	if v := firstEnv("TEMPKEY_HEALTH_PORT", "PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parsing PORT: %w", err)
		}
		cfg.Health.Port = port
	}

	// Database
	if v := os.Getenv("TEMPKEY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TEMPKEY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TEMPKEY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TEMPKEY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TEMPKEY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TEMPKEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// applyDerivedDefaults fills values that depend on other settings.
func (c *Config) applyDerivedDefaults() {
	c.Replication.Strategy = strings.ToLower(strings.TrimSpace(c.Replication.Strategy))
	if c.Replication.Strategy == "" {
		c.Replication.Strategy = StrategyNone
	}
	if c.Replication.Git.RemoteName == "" {
		c.Replication.Git.RemoteName = "origin"
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bot.Token == "" {
		errs = append(errs, "bot.token is required (set BOT_TOKEN environment variable)")
	}
	if c.Bot.AdminID == 0 {
		errs = append(errs, "bot.admin_id is required (set ADMIN_ID environment variable)")
	}

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Health.Enabled && (c.Health.Port < 1 || c.Health.Port > 65535) {
		errs = append(errs, "health.port must be between 1 and 65535")
	}

	if c.Replication.Timeout <= 0 {
		errs = append(errs, "replication.timeout must be positive")
	}

	switch c.Replication.Strategy {
	case StrategyNone:
	case StrategyGit:
		if c.Replication.Git.RemoteURL == "" {
			errs = append(errs, "replication.git.remote_url is required for the git strategy")
		}
		if c.Replication.Git.Branch == "" {
			errs = append(errs, "replication.git.branch is required for the git strategy")
		}
	case StrategyGitHub:
		gh := c.Replication.GitHub
		if gh.Token == "" {
			errs = append(errs, "replication.github.token is required (set GITHUB_TOKEN environment variable)")
		}
		if gh.Owner == "" || gh.Repo == "" || gh.Path == "" {
			errs = append(errs, "replication.github.owner, repo and path are required for the github strategy")
		}
		if gh.MaxAttempts < 1 {
			errs = append(errs, "replication.github.max_attempts must be at least 1")
		}
	case StrategyMQTT:
		if c.Replication.MQTT.Name == "" {
			errs = append(errs, "replication.mqtt.name is required for the mqtt strategy")
		}
	default:
		errs = append(errs, fmt.Sprintf("replication.strategy %q is not one of none, git, github, mqtt", c.Replication.Strategy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReplicationTimeout returns the replication timeout as a Duration.
func (c *Config) GetReplicationTimeout() time.Duration {
	return time.Duration(c.Replication.Timeout) * time.Second
}

// GetReadTimeout returns the health endpoint read timeout as a Duration.
func (h HealthConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the health endpoint write timeout as a Duration.
func (h HealthConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the health endpoint idle timeout as a Duration.
func (h HealthConfig) GetIdleTimeout() time.Duration {
	return time.Duration(h.Timeouts.Idle) * time.Second
}
