package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MapServer holds all configuration for the map server.
type MapServer struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	DataFile string `yaml:"data_file"` // spell definitions (YAML)

	Engine    EngineConfig    `yaml:"engine"`
	Maps      []MapEntry      `yaml:"maps"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	CombatLog CombatLogConfig `yaml:"combat_log"`
}

// EngineConfig tunes the spell engine of every map.
type EngineConfig struct {
	MaxProcDepth   int           `yaml:"max_proc_depth"`
	CritMultiplier float64       `yaml:"crit_multiplier"`
	MaxAuras       int           `yaml:"max_auras"` // per unit; < 0 disables the limit
	TickInterval   time.Duration `yaml:"tick_interval"`
}

// MapEntry describes one map partition.
type MapEntry struct {
	ID       int32  `yaml:"id"`
	Name     string `yaml:"name"`
	Scenario string `yaml:"scenario"` // optional units/casts to seed the map with
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig configures the combat log stream.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"` // approximate stream trim; 0 = unbounded
}

// CombatLogConfig configures the asynchronous combat log writer.
type CombatLogConfig struct {
	Stdout        bool          `yaml:"stdout"` // mirror records to slog
	BufferSize    int           `yaml:"buffer_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DefaultMapServer returns MapServer config with sensible defaults.
func DefaultMapServer() MapServer {
	return MapServer{
		LogLevel: "info",
		DataFile: "data/spells.yaml",
		Engine: EngineConfig{
			MaxProcDepth:   8,
			CritMultiplier: 1.5,
			MaxAuras:       40,
			TickInterval:   100 * time.Millisecond,
		},
		Maps: []MapEntry{
			{ID: 1, Name: "default"},
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "spellcore",
			Password: "spellcore",
			DBName:   "spellcore",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Addr:   "127.0.0.1:6379",
			Stream: "spellcore:combatlog",
			MaxLen: 100000,
		},
		CombatLog: CombatLogConfig{
			BufferSize:    4096,
			BatchSize:     256,
			FlushInterval: time.Second,
		},
	}
}

// LoadMapServer loads map server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadMapServer(path string) (MapServer, error) {
	cfg := DefaultMapServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the server.
func (c MapServer) Validate() error {
	if c.DataFile == "" {
		return fmt.Errorf("data_file is required")
	}
	if len(c.Maps) == 0 {
		return fmt.Errorf("at least one map is required")
	}
	seen := make(map[int32]bool, len(c.Maps))
	for _, m := range c.Maps {
		if seen[m.ID] {
			return fmt.Errorf("duplicate map id %d", m.ID)
		}
		seen[m.ID] = true
	}
	if c.Engine.MaxProcDepth < 0 {
		return fmt.Errorf("engine.max_proc_depth must not be negative")
	}
	if c.Redis.Enabled && c.Redis.Stream == "" {
		return fmt.Errorf("redis.stream is required when redis is enabled")
	}
	return nil
}

// SlogLevel maps LogLevel to slog.Level. Unknown values fall back to info.
func (c MapServer) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ApplyEnv overrides secrets and endpoints from the environment
// (.env is loaded by the binaries before config).
func (c *MapServer) ApplyEnv() {
	c.LogLevel = getEnvOrDefault("SPELLCORE_LOG_LEVEL", c.LogLevel)
	c.DataFile = getEnvOrDefault("SPELLCORE_DATA_FILE", c.DataFile)
	c.Database.Host = getEnvOrDefault("SPELLCORE_DB_HOST", c.Database.Host)
	c.Database.Password = getEnvOrDefault("SPELLCORE_DB_PASSWORD", c.Database.Password)
	c.Redis.Addr = getEnvOrDefault("SPELLCORE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("SPELLCORE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsIntOrDefault("SPELLCORE_REDIS_DB", c.Redis.DB)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
