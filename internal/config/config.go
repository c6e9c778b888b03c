// Package config loads the viewer's settings from the environment (with an
// optional .env file) and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/csg33k/response-viewer/internal/history"
)

// Config holds all viewer settings.
type Config struct {
	Port           string        `yaml:"port"`
	GradingAPIURL  string        `yaml:"grading_api_url"`
	DBPath         string        `yaml:"db_path"`
	ResultsURL     string        `yaml:"results_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	NavBoundary    string        `yaml:"nav_boundary"` // one-indexed | legacy
	Debug          bool          `yaml:"debug"`
}

func (c *Config) defaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.GradingAPIURL == "" {
		c.GradingAPIURL = "http://localhost:5000"
	}
	if c.DBPath == "" {
		c.DBPath = "viewer.db"
	}
	if c.ResultsURL == "" {
		c.ResultsURL = "https://ans.app/results/%d"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.NavBoundary == "" {
		c.NavBoundary = history.BoundaryOneIndexed.String()
	}
}

// Boundary returns the parsed navigation boundary convention.
func (c *Config) Boundary() (history.Boundary, error) {
	return history.ParseBoundary(c.NavBoundary)
}

// Load reads .env (a missing file is only a warning), then the environment,
// then CONFIG_FILE when set. File values override the environment.
func Load(log *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn("error loading .env file", "err", err)
	}
	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.defaults()
	if _, err := cfg.Boundary(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a config from getenv without touching files.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:          getenv("PORT"),
		GradingAPIURL: getenv("GRADING_API_URL"),
		DBPath:        getenv("DB_PATH"),
		ResultsURL:    getenv("RESULTS_URL"),
		NavBoundary:   getenv("NAV_BOUNDARY"),
	}
	if v := getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := getenv("DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: DEBUG: %w", err)
		}
		cfg.Debug = b
	}
	cfg.defaults()
	return cfg, nil
}

// MergeFile overlays the non-empty values of a YAML file onto c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var f Config
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	if f.Port != "" {
		c.Port = f.Port
	}
	if f.GradingAPIURL != "" {
		c.GradingAPIURL = f.GradingAPIURL
	}
	if f.DBPath != "" {
		c.DBPath = f.DBPath
	}
	if f.ResultsURL != "" {
		c.ResultsURL = f.ResultsURL
	}
	if f.RequestTimeout > 0 {
		c.RequestTimeout = f.RequestTimeout
	}
	if f.NavBoundary != "" {
		c.NavBoundary = f.NavBoundary
	}
	if f.Debug {
		c.Debug = true
	}
	return nil
}

// Logger returns the process logger: text output, debug level when Debug.
func (c *Config) Logger() *slog.Logger {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
