package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/Gasiyu/Composer/internal/library"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/providers/lrclib"
	"github.com/Gasiyu/Composer/internal/ratelimit"
	"github.com/Gasiyu/Composer/internal/ui"
)

const appName = "composer"

// Environment overrides.
const (
	EnvConfig    = "COMPOSER_CONFIG"
	EnvLRCLibURL = "COMPOSER_LRCLIB_URL"
	EnvSentryDSN = "COMPOSER_SENTRY_DSN"
	EnvLogLevel  = "COMPOSER_LOG_LEVEL"
)

// Config holds Composer process configuration loaded from TOML. User
// preferences edited at runtime live in the settings store instead.
type Config struct {
	Library   LibraryConfig   `toml:"library"`
	LRCLib    LRCLibConfig    `toml:"lrclib"`
	Settings  SettingsConfig  `toml:"settings"`
	UI        UIConfig        `toml:"ui"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type LibraryConfig struct {
	Roots      []string `toml:"roots"`
	Extensions []string `toml:"extensions"`
}

type LRCLibConfig struct {
	BaseURL       string `toml:"base_url"`
	UserAgent     string `toml:"user_agent"`
	TimeoutMS     int    `toml:"timeout_ms"`
	MaxRequests   int    `toml:"max_requests"`
	WindowSeconds int    `toml:"window_seconds"`
	// CacheSize below zero disables the search cache.
	CacheSize       int `toml:"cache_size"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

type SettingsConfig struct {
	DBPath string `toml:"db_path"`
}

type UIConfig struct {
	PageSize int    `toml:"page_size"`
	NoEmoji  bool   `toml:"no_emoji"`
	Theme    string `toml:"theme"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type TelemetryConfig struct {
	SentryDSN   string `toml:"sentry_dsn"`
	Environment string `toml:"environment"`
}

// LoadEnv reads a .env file from the working directory when present.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from disk. If path is empty, $COMPOSER_CONFIG or
// the XDG config location is used. A missing file yields the defaults.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		cfgPath = os.Getenv(EnvConfig)
	}
	if cfgPath == "" {
		var err error
		cfgPath, err = defaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	var cfg Config
	data, err := os.ReadFile(cfgPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, cfgPath, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}
	return &cfg, cfgPath, nil
}

func defaultPath() (string, error) {
	return xdg.ConfigFile(filepath.Join(appName, "config.toml"))
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLRCLibURL); v != "" {
		cfg.LRCLib.BaseURL = v
	}
	if v := os.Getenv(EnvSentryDSN); v != "" {
		cfg.Telemetry.SentryDSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if len(cfg.Library.Extensions) == 0 {
		cfg.Library.Extensions = append([]string(nil), library.DefaultExtensions...)
	}
	if cfg.LRCLib.BaseURL == "" {
		cfg.LRCLib.BaseURL = lrclib.DefaultBaseURL
	}
	if cfg.LRCLib.UserAgent == "" {
		cfg.LRCLib.UserAgent = lrclib.DefaultUserAgent
	}
	if cfg.LRCLib.TimeoutMS == 0 {
		cfg.LRCLib.TimeoutMS = int(lrclib.DefaultTimeout / time.Millisecond)
	}
	if cfg.LRCLib.MaxRequests == 0 {
		cfg.LRCLib.MaxRequests = ratelimit.DefaultMaxRequests
	}
	if cfg.LRCLib.WindowSeconds == 0 {
		cfg.LRCLib.WindowSeconds = int(ratelimit.DefaultWindow / time.Second)
	}
	if cfg.LRCLib.CacheSize == 0 {
		cfg.LRCLib.CacheSize = 256
	}
	if cfg.LRCLib.CacheTTLSeconds == 0 {
		cfg.LRCLib.CacheTTLSeconds = 600
	}
	if cfg.UI.PageSize == 0 {
		cfg.UI.PageSize = 100
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = "rainbow"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = "production"
	}
}

// Validate performs semantic validation of cfg.
func Validate(cfg Config) error {
	u, err := url.Parse(cfg.LRCLib.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: lrclib.base_url %q is not an absolute URL", provider.ErrInvalidConfig, cfg.LRCLib.BaseURL)
	}
	if cfg.LRCLib.MaxRequests < 0 || cfg.LRCLib.WindowSeconds < 0 {
		return fmt.Errorf("%w: lrclib rate limit must be positive", provider.ErrInvalidConfig)
	}
	if cfg.LRCLib.TimeoutMS < 0 {
		return fmt.Errorf("%w: lrclib.timeout_ms must be positive", provider.ErrInvalidConfig)
	}
	for _, ext := range cfg.Library.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("%w: library extension %q must start with a dot", provider.ErrInvalidConfig, ext)
		}
	}
	for _, root := range cfg.Library.Roots {
		if root == "" {
			return fmt.Errorf("%w: library.roots contains empty path", provider.ErrInvalidConfig)
		}
	}
	if cfg.UI.PageSize < 0 {
		return fmt.Errorf("%w: ui.page_size must be positive", provider.ErrInvalidConfig)
	}
	if !ui.ValidTheme(cfg.UI.Theme) {
		return fmt.Errorf("%w: unknown theme %q (available: %s)", provider.ErrInvalidConfig, cfg.UI.Theme, strings.Join(ui.ThemeNames(), ", "))
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", provider.ErrInvalidConfig, cfg.Log.Level)
	}
	return nil
}

// LRCLibClientConfig converts the [lrclib] section for lrclib.New.
func (c Config) LRCLibClientConfig() lrclib.Config {
	cacheSize := c.LRCLib.CacheSize
	if cacheSize < 0 {
		cacheSize = 0
	}
	return lrclib.Config{
		BaseURL:     c.LRCLib.BaseURL,
		UserAgent:   c.LRCLib.UserAgent,
		Timeout:     time.Duration(c.LRCLib.TimeoutMS) * time.Millisecond,
		MaxRequests: c.LRCLib.MaxRequests,
		Window:      time.Duration(c.LRCLib.WindowSeconds) * time.Second,
		CacheSize:   cacheSize,
		CacheTTL:    time.Duration(c.LRCLib.CacheTTLSeconds) * time.Second,
	}
}

// SettingsPath returns the settings database path, defaulting to the XDG
// data directory.
func (c Config) SettingsPath() (string, error) {
	if c.Settings.DBPath != "" {
		return expandHome(c.Settings.DBPath), nil
	}
	return xdg.DataFile(filepath.Join(appName, "settings.db"))
}

// LibraryRoots returns the configured roots with ~ expanded.
func (c Config) LibraryRoots() []string {
	out := make([]string, 0, len(c.Library.Roots))
	for _, r := range c.Library.Roots {
		out = append(out, expandHome(r))
	}
	return out
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// FFprobePath reports where ffprobe was found, or an error.
func FFprobePath() (string, error) {
	return execLookPath("ffprobe")
}

// execLookPath is a test seam.
var execLookPath = func(file string) (string, error) {
	return exec.LookPath(file)
}
