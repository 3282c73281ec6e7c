package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/ibeckermayer/snapbot/internal/auth"
	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/capture"
	"github.com/ibeckermayer/snapbot/internal/logging"
	"github.com/ibeckermayer/snapbot/internal/sites"
)

// Config holds all application configuration
type Config struct {
	Version   int              `toml:"version"`
	Timezone  string           `toml:"timezone"` // for schedules
	Browser   BrowserConfig    `toml:"browser"`
	Login     LoginConfig      `toml:"login"`
	Capture   CaptureConfig    `toml:"capture"`
	Logging   LoggingConfig    `toml:"logging"`
	Store     StoreConfig      `toml:"store"`
	Accounts  []AccountConfig  `toml:"accounts"`
	Schedules []ScheduleConfig `toml:"schedules"`
}

type BrowserConfig struct {
	Headless     bool     `toml:"headless"`
	UserAgent    string   `toml:"user_agent"`
	WindowWidth  int      `toml:"window_width"`
	WindowHeight int      `toml:"window_height"`
	ExecPath     string   `toml:"exec_path"`
	NoSandbox    bool     `toml:"no_sandbox"`
	SettleDelay  Duration `toml:"settle_delay"`
}

type LoginConfig struct {
	SettleTimeout     Duration `toml:"settle_timeout"`
	PollInterval      Duration `toml:"poll_interval"`
	ChallengeTimeout  Duration `toml:"challenge_timeout"`
	ChallengeAttempts int      `toml:"challenge_attempts"`
	TypeDelay         Duration `toml:"type_delay"`
}

type CaptureConfig struct {
	OutputDir     string   `toml:"output_dir"`
	TaskTimeout   Duration `toml:"task_timeout"`
	ReadyTimeout  Duration `toml:"ready_timeout"`
	PromptTimeout Duration `toml:"prompt_timeout"`
	Pause         Duration `toml:"pause"`
	MaxScrolls    int      `toml:"max_scrolls"`
	MaxItems      int      `toml:"max_items"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type StoreConfig struct {
	Path       string `toml:"path"`        // empty uses history.db in the config directory
	RetainDays int    `toml:"retain_days"` // 0 keeps runs forever
}

// AccountConfig names an account to capture. Passwords are never stored
// here; see Credentials.
type AccountConfig struct {
	Site     string `toml:"site"`
	Username string `toml:"username"`
}

type ScheduleConfig struct {
	Cron  string   `toml:"cron"`
	Sites []string `toml:"sites"` // empty means every configured account
}

// Default returns a Config with sensible defaults
func Default() *Config {
	opts := browser.DefaultOptions()
	login := auth.DefaultSettings()
	capt := capture.DefaultSettings()

	return &Config{
		Version:  1,
		Timezone: "Local",
		Browser: BrowserConfig{
			Headless:     opts.Headless,
			UserAgent:    opts.UserAgent,
			WindowWidth:  opts.WindowWidth,
			WindowHeight: opts.WindowHeight,
			NoSandbox:    opts.NoSandbox,
			SettleDelay:  Duration{opts.SettleDelay},
		},
		Login: LoginConfig{
			SettleTimeout:     Duration{login.SettleTimeout},
			PollInterval:      Duration{login.PollInterval},
			ChallengeTimeout:  Duration{login.ChallengeTimeout},
			ChallengeAttempts: 3,
			TypeDelay:         Duration{login.TypeDelay},
		},
		Capture: CaptureConfig{
			OutputDir:     "files",
			TaskTimeout:   Duration{capt.TaskTimeout},
			ReadyTimeout:  Duration{capt.ReadyTimeout},
			PromptTimeout: Duration{capt.PromptTimeout},
			Pause:         Duration{capt.Pause},
			MaxScrolls:    capt.MaxScrolls,
			MaxItems:      capt.MaxItems,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Store:     StoreConfig{RetainDays: 90},
		Accounts:  []AccountConfig{},
		Schedules: []ScheduleConfig{},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "snapbot"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from path, or from ConfigPath when path is empty, on top
// of the defaults and then applies .env and SNAPBOT_* overrides. A missing
// default config file is not an error.
func Load(path string) (*Config, error) {
	loadDotEnv()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes config to path, or to ConfigPath when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// Validate reports every problem with the config at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, errors.New("browser window size must be positive"))
	}
	if c.Login.SettleTimeout.Duration <= 0 {
		errs = append(errs, errors.New("login settle_timeout must be positive"))
	}
	if c.Login.ChallengeTimeout.Duration <= 0 {
		errs = append(errs, errors.New("login challenge_timeout must be positive"))
	}
	if c.Login.ChallengeAttempts < 1 {
		errs = append(errs, errors.New("login challenge_attempts must be at least 1"))
	}
	if c.Capture.OutputDir == "" {
		errs = append(errs, errors.New("capture output_dir is required"))
	}
	if c.Capture.MaxScrolls < 0 || c.Capture.MaxItems < 0 {
		errs = append(errs, errors.New("capture limits cannot be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %s: %w", c.Timezone, err))
	}
	if c.Store.RetainDays < 0 {
		errs = append(errs, errors.New("store retain_days cannot be negative"))
	}

	for i, a := range c.Accounts {
		if _, err := sites.Lookup(a.Site); err != nil {
			errs = append(errs, fmt.Errorf("accounts[%d]: %w", i, err))
		}
		if a.Username == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: username is required", i))
		}
	}

	for i, s := range c.Schedules {
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedules[%d]: invalid cron %q: %w", i, s.Cron, err))
		}
		for _, name := range s.Sites {
			if _, err := sites.Lookup(name); err != nil {
				errs = append(errs, fmt.Errorf("schedules[%d]: %w", i, err))
			}
		}
	}

	return errors.Join(errs...)
}

// StorePath returns the run history database location.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// AccountsFor returns the configured accounts of site, or every account
// when site is empty.
func (c *Config) AccountsFor(site string) []AccountConfig {
	var out []AccountConfig
	for _, a := range c.Accounts {
		if site == "" || a.Site == site {
			out = append(out, a)
		}
	}
	return out
}

// BrowserOptions converts the browser section to launch options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:     c.Browser.Headless,
		UserAgent:    c.Browser.UserAgent,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
		ExecPath:     c.Browser.ExecPath,
		NoSandbox:    c.Browser.NoSandbox,
		SettleDelay:  c.Browser.SettleDelay.Duration,
	}
}

// AuthSettings converts the login section.
func (c *Config) AuthSettings() auth.Settings {
	return auth.Settings{
		SettleTimeout:    c.Login.SettleTimeout.Duration,
		PollInterval:     c.Login.PollInterval.Duration,
		ChallengeTimeout: c.Login.ChallengeTimeout.Duration,
		TypeDelay:        c.Login.TypeDelay.Duration,
	}
}

// CaptureSettings converts the capture section.
func (c *Config) CaptureSettings() capture.Settings {
	return capture.Settings{
		TaskTimeout:   c.Capture.TaskTimeout.Duration,
		ReadyTimeout:  c.Capture.ReadyTimeout.Duration,
		PromptTimeout: c.Capture.PromptTimeout.Duration,
		Pause:         c.Capture.Pause.Duration,
		MaxScrolls:    c.Capture.MaxScrolls,
		MaxItems:      c.Capture.MaxItems,
	}
}

// LoggingConfig converts the logging section.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// Duration is a time.Duration written as a string ("90s", "5m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
