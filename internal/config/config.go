package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Streak   StreakConfig   `yaml:"streak"`
	Sweep    SweepConfig    `yaml:"sweep"`
	AWS      AWSConfig      `yaml:"aws"`
	APNs     APNsConfig     `yaml:"apns"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"` // "postgres" or "sqlite"
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	DBName      string        `yaml:"dbname"`
	SSLMode     string        `yaml:"sslmode"`
	Path        string        `yaml:"path"` // sqlite file
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// RedisConfig holds redis configuration. An empty Addr disables redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StreakConfig holds the streak and points policy
type StreakConfig struct {
	Timezone             string `yaml:"timezone"`
	Milestones           []int  `yaml:"milestones"`
	PointsPerDay         int64  `yaml:"points_per_day"`
	MilestoneBonus       int64  `yaml:"milestone_bonus"`
	FreezeCostPerDay     int64  `yaml:"freeze_cost_per_day"`
	FreezeMaxHorizonDays int    `yaml:"freeze_max_horizon_days"`
	AllowOverdraft       bool   `yaml:"allow_overdraft"`
}

// SweepConfig controls how the decay sweep is triggered
type SweepConfig struct {
	Mode     string        `yaml:"mode"`     // "rollover" or "cron"
	Schedule string        `yaml:"schedule"` // cron spec with seconds, cron mode only
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// AWSConfig holds AWS configuration for the sweep audit bucket
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// APNsConfig holds Apple push configuration. An empty KeyPath disables push.
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			Path:        "streaks.db",
			Port:        5432,
			SSLMode:     "disable",
			Timeout:     5 * time.Second,
			MaxAttempts: 3,
		},
		Streak: StreakConfig{
			Timezone:             "UTC",
			Milestones:           []int{3, 7, 14, 30, 50, 100},
			PointsPerDay:         1,
			MilestoneBonus:       5,
			FreezeCostPerDay:     1,
			FreezeMaxHorizonDays: 60,
		},
		Sweep: SweepConfig{
			Mode:     "rollover",
			Schedule: "0 1 0 * * *",
			LockTTL:  48 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxAttempts < 1 {
		return fmt.Errorf("database.max_attempts must be at least 1")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database.timeout must be positive")
	}
	if _, err := time.LoadLocation(c.Streak.Timezone); err != nil {
		return fmt.Errorf("streak.timezone: %w", err)
	}
	if c.Streak.FreezeCostPerDay < 0 {
		return fmt.Errorf("streak.freeze_cost_per_day must not be negative")
	}
	if c.Streak.FreezeMaxHorizonDays < 1 {
		return fmt.Errorf("streak.freeze_max_horizon_days must be at least 1")
	}
	switch c.Sweep.Mode {
	case "rollover":
	case "cron":
		if c.Redis.Addr == "" {
			return fmt.Errorf("sweep.mode cron requires redis.addr")
		}
	default:
		return fmt.Errorf("sweep.mode must be rollover or cron, got %q", c.Sweep.Mode)
	}
	return nil
}

// Location returns the timezone that defines calendar days
func (c *StreakConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
