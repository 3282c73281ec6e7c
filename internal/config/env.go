package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// loadDotEnv loads .env files without overriding variables already set.
// Missing files are ignored.
func loadDotEnv() {
	_ = godotenv.Load(".env")
	if dir, err := ConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}
}

// ApplyEnv overrides settings from SNAPBOT_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("SNAPBOT_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SNAPBOT_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}
	if v := getenv("SNAPBOT_CHROME_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := getenv("SNAPBOT_OUTPUT_DIR"); v != "" {
		c.Capture.OutputDir = v
	}
	if v := getenv("SNAPBOT_CHALLENGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SNAPBOT_CHALLENGE_TIMEOUT: %w", err)
		}
		c.Login.ChallengeTimeout.Duration = d
	}
	if v := getenv("SNAPBOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("SNAPBOT_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := getenv("SNAPBOT_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	return nil
}
