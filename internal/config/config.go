package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Profile sources.
const (
	ProfilesRandom   = "random"
	ProfilesMock     = "mock"
	ProfilesPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port    string `yaml:"port"`
		Verbose bool   `yaml:"verbose"`
		Pprof   bool   `yaml:"pprof"`
	} `yaml:"server"`
	Store struct {
		Backend           string `yaml:"backend"`
		Timeout           string `yaml:"timeout"`
		UserRecordsShared bool   `yaml:"user_records_shared"`
		SQLitePath        string `yaml:"sqlite_path"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Profiles struct {
		Source    string `yaml:"source"`
		TTL       string `yaml:"ttl"`
		MockCount int    `yaml:"mock_count"`
		Seed      int64  `yaml:"seed"`
	} `yaml:"profiles"`
	Game struct {
		Tick             string `yaml:"tick"`
		FeedbackDelay    string `yaml:"feedback_delay"`
		LeaderboardLimit int    `yaml:"leaderboard_limit"`
		Timezone         string `yaml:"timezone"`
		TimerChoices     []int  `yaml:"timer_choices"`
	} `yaml:"game"`
}

// Default returns a config that runs fully in memory.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Store.Backend = BackendMemory
	cfg.Store.Timeout = "3s"
	cfg.Store.SQLitePath = "pfp-quiz.db"
	cfg.Redis.TTL = "10m"
	cfg.Profiles.Source = ProfilesRandom
	cfg.Profiles.TTL = "10m"
	cfg.Profiles.MockCount = 40
	cfg.Game.Tick = "1s"
	cfg.Game.FeedbackDelay = "2500ms"
	cfg.Game.LeaderboardLimit = 50
	cfg.Game.Timezone = "UTC"
	cfg.Game.TimerChoices = []int{5, 10}
	return cfg
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store backend redis requires redis.addr")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store backend postgres requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Profiles.Source {
	case ProfilesRandom, ProfilesMock:
	case ProfilesPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("profile source postgres requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown profile source %q", c.Profiles.Source)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	for _, choice := range c.Game.TimerChoices {
		if choice <= 0 {
			return fmt.Errorf("timer choice must be positive, got %d", choice)
		}
	}
	return nil
}

// Location resolves the calendar-day reference zone.
func (c Config) Location() (*time.Location, error) {
	if c.Game.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Game.Timezone)
	if err != nil {
		return nil, fmt.Errorf("game.timezone: %w", err)
	}
	return loc, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
