/*
Package config loads the tracker's runtime settings and builds its logger.

PURPOSE:
  Settings come from the environment, optionally seeded from a .env file.
  Variables already set in the environment win over the file.

VARIABLES:
  TRACKER_PORT               HTTP port (8080)
  TRACKER_DB_DIR             One SQLite file per game (./data/db)
  TRACKER_GAMEDATA_DIR       Game config directories (./resources/gamedata)
  TRACKER_LOG_LEVEL          logrus level (info)
  TRACKER_LOG_FORMAT         json or text (json)
  TRACKER_DEBOUNCE           Write coalescer delay (500ms)
  TRACKER_ROLLOVER_INTERVAL  Rollover check interval (1m)

SEE ALSO:
  - cmd/server/main.go: Flags overriding these values
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the resolved runtime configuration.
type Config struct {
	Port             int
	DBDir            string
	GameDataDir      string
	LogLevel         string
	LogFormat        string
	Debounce         time.Duration
	RolloverInterval time.Duration
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:             8080,
		DBDir:            "./data/db",
		GameDataDir:      "./resources/gamedata",
		LogLevel:         "info",
		LogFormat:        "json",
		Debounce:         500 * time.Millisecond,
		RolloverInterval: time.Minute,
	}
}

// Load reads .env from the working directory, if present, then the environment.
func Load() (Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with explicit env files. Missing files are ignored.
func LoadFrom(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Defaults()
	var err error
	if v, ok := os.LookupEnv("TRACKER_PORT"); ok {
		if cfg.Port, err = strconv.Atoi(v); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
			return Config{}, fmt.Errorf("TRACKER_PORT: invalid port %q", v)
		}
	}
	stringVar("TRACKER_DB_DIR", &cfg.DBDir)
	stringVar("TRACKER_GAMEDATA_DIR", &cfg.GameDataDir)
	stringVar("TRACKER_LOG_LEVEL", &cfg.LogLevel)
	stringVar("TRACKER_LOG_FORMAT", &cfg.LogFormat)
	if err := durationVar("TRACKER_DEBOUNCE", &cfg.Debounce); err != nil {
		return Config{}, err
	}
	if err := durationVar("TRACKER_ROLLOVER_INTERVAL", &cfg.RolloverInterval); err != nil {
		return Config{}, err
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("TRACKER_LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return Config{}, fmt.Errorf("TRACKER_LOG_FORMAT: want json or text, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

func stringVar(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func durationVar(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("%s: invalid duration %q", name, v)
	}
	*dst = d
	return nil
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stdout)
	return logger
}
