package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Platform PlatformConfig `yaml:"platform"`
	Match    MatchConfig    `yaml:"match"`
	Rank     RankConfig     `yaml:"rank"`
	Sync     SyncConfig     `yaml:"sync"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
	Enabled bool     `yaml:"enabled"`
}

// LedgerConfig holds the external economy service configuration
type LedgerConfig struct {
	BaseURL string        `yaml:"base_url"`
	GuildID string        `yaml:"guild_id"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// PlatformConfig holds the chat platform API configuration. Tier membership
// and the leader designation are surfaced as platform roles: tier_roles maps
// role IDs to tier names, leader_roles maps game modes to the role granted to
// that mode's leaders.
type PlatformConfig struct {
	BaseURL     string            `yaml:"base_url"`
	GuildID     string            `yaml:"guild_id"`
	Token       string            `yaml:"token"`
	Timeout     time.Duration     `yaml:"timeout"`
	TierRoles   map[string]string `yaml:"tier_roles"`
	LeaderRoles map[int]string    `yaml:"leader_roles"`
}

// MatchConfig holds match lifecycle and settlement configuration
type MatchConfig struct {
	MinStake         int64         `yaml:"min_stake"`
	MaxStake         int64         `yaml:"max_stake"`
	SessionTimeout   time.Duration `yaml:"session_timeout"`
	CloseGraceDelay  time.Duration `yaml:"close_grace_delay"`
	BonusCap         int           `yaml:"bonus_cap"`
	BonusProbability float64       `yaml:"bonus_probability"`
	HistoryLimit     int           `yaml:"history_limit"`
}

// RankConfig holds the ordered tier list and the adjacency bands that let
// near top tiers play each other.
type RankConfig struct {
	Tiers     []string            `yaml:"tiers"`
	Adjacency map[string][]string `yaml:"adjacency"`
}

// Allowed reports whether a player holding playerTier may join a match
// requiring requiredTier.
func (c *RankConfig) Allowed(requiredTier, playerTier string) bool {
	if playerTier == requiredTier {
		return true
	}
	for _, t := range c.Adjacency[requiredTier] {
		if t == playerTier {
			return true
		}
	}
	return false
}

// SyncConfig holds the standings sync worker configuration
type SyncConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Enabled   bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "match-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "scrim-arena"
	}

	// Ledger defaults
	if c.Ledger.BaseURL == "" {
		c.Ledger.BaseURL = "https://unbelievaboat.com/api/v1"
	}
	if c.Ledger.Timeout == 0 {
		c.Ledger.Timeout = 10 * time.Second
	}

	// Platform defaults
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = "https://discord.com/api/v10"
	}
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = 10 * time.Second
	}

	// Match defaults
	if c.Match.MinStake == 0 {
		c.Match.MinStake = 1
	}
	if c.Match.MaxStake == 0 {
		c.Match.MaxStake = 1_000_000
	}
	if c.Match.SessionTimeout == 0 {
		c.Match.SessionTimeout = 30 * time.Minute
	}
	if c.Match.CloseGraceDelay == 0 {
		c.Match.CloseGraceDelay = 5 * time.Second
	}
	if c.Match.BonusCap == 0 {
		c.Match.BonusCap = 50
	}
	if c.Match.BonusProbability == 0 {
		c.Match.BonusProbability = 0.10
	}
	if c.Match.HistoryLimit == 0 {
		c.Match.HistoryLimit = 50
	}

	// Rank defaults
	if len(c.Rank.Tiers) == 0 {
		c.Rank.Tiers = []string{
			"Bronze", "Silver", "Gold", "Platinum", "Diamond",
			"Champion", "GC1", "GC2", "GC3", "SSL",
		}
	}
	if c.Rank.Adjacency == nil {
		c.Rank.Adjacency = map[string][]string{
			"GC1": {"GC2"},
			"GC2": {"GC1", "GC3"},
			"GC3": {"GC2", "SSL"},
			"SSL": {"GC3"},
		}
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 30 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 1000
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	return cfg
}
