// Package config loads client configuration from defaults, an optional
// YAML file and LOCKSY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the config directory.
const FileName = "config.yaml"

// DirEnv overrides the config directory.
const DirEnv = "LOCKSY_CONFIG_DIR"

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Breach policies.
const (
	BreachWarn  = "warn"
	BreachBlock = "block"
)

var (
	ErrInvalidConfig = errors.New("config: invalid configuration")
	ErrInsecureFile  = errors.New("config: file has insecure permissions")
	ErrSymlink       = errors.New("config: file is a symlink")
	ErrNotOwned      = errors.New("config: file not owned by current user")
)

// Config holds all client configuration.
type Config struct {
	// APIURL is the base URL of the password API.
	APIURL string `yaml:"api_url"`
	// BreachURL overrides the Pwned Passwords range API. Empty uses the
	// public endpoint.
	BreachURL string `yaml:"breach_url"`
	// BreachTimeout bounds one breach lookup.
	BreachTimeout time.Duration `yaml:"breach_timeout"`
	// HTTPTimeout bounds one API request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// DataDir holds the per-account offline mirror and activity log.
	DataDir string `yaml:"data_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// OfflineCache enables the offline mirror.
	OfflineCache bool `yaml:"offline_cache"`
	// BreachPolicy is "warn" or "block" for a breached master password.
	BreachPolicy string `yaml:"breach_policy"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		BreachTimeout: 5 * time.Second,
		HTTPTimeout:   30 * time.Second,
		DataDir:       dir,
		LogLevel:      "info",
		LogFormat:     FormatText,
		OfflineCache:  true,
		BreachPolicy:  BreachWarn,
	}
}

// DefaultDir returns $LOCKSY_CONFIG_DIR or ~/.locksy.
func DefaultDir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".locksy"), nil
}

// Load reads dir/config.yaml when present and applies environment
// overrides. A .env file in the working directory or above is loaded first.
func Load(dir string) (*Config, error) {
	loadDotEnv()

	cfg := Default(dir)
	if err := cfg.readFile(filepath.Join(dir, FileName)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := ReadPrivateFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.APIURL = env.GetString("LOCKSY_API_URL", c.APIURL)
	c.BreachURL = env.GetString("LOCKSY_BREACH_URL", c.BreachURL)
	c.DataDir = env.GetString("LOCKSY_DATA_DIR", c.DataDir)
	c.LogLevel = env.GetString("LOCKSY_LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.GetString("LOCKSY_LOG_FORMAT", c.LogFormat)
	c.OfflineCache = env.GetBool("LOCKSY_OFFLINE_CACHE", c.OfflineCache)
	c.BreachPolicy = env.GetString("LOCKSY_BREACH_POLICY", c.BreachPolicy)

	var err error
	if c.BreachTimeout, err = envDuration("LOCKSY_BREACH_TIMEOUT", c.BreachTimeout); err != nil {
		return err
	}
	if c.HTTPTimeout, err = envDuration("LOCKSY_HTTP_TIMEOUT", c.HTTPTimeout); err != nil {
		return err
	}
	return nil
}

// envDuration parses a Go duration string such as "5s".
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := env.GetString(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

// Validate checks URLs, durations and enumerations. Every failing key is
// reported, not only the first.
func (c *Config) Validate() error {
	err := validation.Errors{
		"api_url":        validation.Validate(c.APIURL, validation.By(httpURL)),
		"breach_url":     validation.Validate(c.BreachURL, validation.By(httpURL)),
		"breach_timeout": validation.Validate(c.BreachTimeout, validation.By(positive)),
		"http_timeout":   validation.Validate(c.HTTPTimeout, validation.By(positive)),
		"data_dir":       validation.Validate(c.DataDir, validation.Required),
		"log_level":      validation.Validate(c.LogLevel, validation.By(logLevel)),
		"log_format":     validation.Validate(c.LogFormat, validation.Required, validation.In(FormatText, FormatJSON)),
		"breach_policy":  validation.Validate(c.BreachPolicy, validation.Required, validation.In(BreachWarn, BreachBlock)),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// RequireAPI reports a missing api_url.
func (c *Config) RequireAPI() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: api_url is not set (config.yaml or LOCKSY_API_URL)", ErrInvalidConfig)
	}
	return nil
}

// httpURL accepts an empty string or an absolute http(s) URL.
func httpURL(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validation.NewError("validation_http_url", "must be an http(s) URL")
	}
	return nil
}

func positive(value any) error {
	if d, _ := value.(time.Duration); d <= 0 {
		return validation.NewError("validation_positive_duration", "must be positive")
	}
	return nil
}

func logLevel(value any) error {
	level, _ := value.(string)
	if _, err := ParseLevel(level); err != nil {
		return validation.NewError("validation_log_level", "must be debug, info, warn or error")
	}
	return nil
}

// loadDotEnv loads the nearest .env file from the working directory up.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	for dir := cwd; ; {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
