package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/uberwacher/internal/logger"
	"github.com/oshokin/uberwacher/internal/sensor"
)

// Config holds the daemon settings.
type Config struct {
	// BotToken authenticates the daemon with the Telegram Bot API.
	BotToken string `yaml:"bot_token,omitempty" toml:"bot_token,omitempty"`
	// GPIOPin is the BCM number of the pin the PIR sensor output is wired to.
	GPIOPin int `yaml:"gpio_pin" toml:"gpio_pin"`
	// AllowList is an inline comma-separated list of handles or a path to a
	// newline-delimited file. Empty means everyone is allowed.
	AllowList string `yaml:"whitelist,omitempty" toml:"whitelist,omitempty"`
	// SubscribersFile is the append-only list of subscribed chat ids.
	SubscribersFile string `yaml:"subscribers_file" toml:"subscribers_file"`
	// StatusAddress enables the gRPC health server when set.
	StatusAddress string `yaml:"status_addr,omitempty" toml:"status_addr,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// SettleWindow is how long the sensor must stay quiet before arming.
	SettleWindow time.Duration `yaml:"settle_window" toml:"settle_window"`
	// DebounceWindow is how long a level change must hold to count.
	DebounceWindow time.Duration `yaml:"debounce_window" toml:"debounce_window"`
	// PollInterval bounds one edge wait on the GPIO pin.
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	// ReplayConcurrency bounds how many stored subscribers are re-armed at once.
	ReplayConcurrency int `yaml:"replay_concurrency" toml:"replay_concurrency"`
}

const (
	// DefaultConfigFilename is the settings file looked up when none is given.
	DefaultConfigFilename = "uberwacher.yaml"

	// DefaultSubscribersFilename is the default subscriber list location.
	DefaultSubscribersFilename = "./subscribers"

	// DefaultGPIOPin is the default BCM pin of the sensor.
	DefaultGPIOPin = 14

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultReplayConcurrency bounds parallel re-arming at startup.
	DefaultReplayConcurrency = 8

	// TokenEnvVar holds the bot token when neither flag nor file sets it.
	TokenEnvVar = "UBERWACHER_BOT_TOKEN"

	// DefaultFilePermissions is the mode of saved settings files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errTokenRequired is returned when no bot token is configured anywhere.
	errTokenRequired = errors.New("bot token must be provided via --token, config file or " + TokenEnvVar)
	// errInvalidPin is returned for negative pin numbers.
	errInvalidPin = errors.New("gpio pin must not be negative")
	// errUnknownFormat is returned for unsupported file extensions.
	errUnknownFormat = errors.New("unsupported settings format")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	cfg.applyDefaults()

	return cfg
}

// Load reads settings from path. A missing default settings file yields
// the defaults; a missing explicit file is an error.
// The result is not validated: apply overrides first, then call Validate.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := new(Config)

	switch format(path) {
	case "yaml":
		err = yaml.Unmarshal(contents, cfg)
	case "toml":
		err = toml.Unmarshal(contents, cfg)
	default:
		return nil, fmt.Errorf("%s: %w", path, errUnknownFormat)
	}

	if err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

// Save writes settings to path in the format matching its extension.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	var (
		data []byte
		err  error
	)

	switch format(path) {
	case "yaml":
		data, err = yaml.Marshal(cfg)
	case "toml":
		var buf bytes.Buffer

		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	default:
		return fmt.Errorf("%s: %w", path, errUnknownFormat)
	}

	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold the bot token.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// LoadDotEnv loads environment variables from the given .env files,
// or from ./.env when none are given. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		_ = godotenv.Load(path)
	}
}

// ApplyEnvironment fills the bot token from TokenEnvVar when it is unset.
func (c *Config) ApplyEnvironment() {
	if c.BotToken == "" {
		c.BotToken = strings.TrimSpace(os.Getenv(TokenEnvVar))
	}
}

// Validate checks required fields and fills defaults for the rest.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.BotToken == "" {
		return errTokenRequired
	}

	if cfg.GPIOPin < 0 {
		return fmt.Errorf("%w: %d", errInvalidPin, cfg.GPIOPin)
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	cfg.applyDefaults()

	return nil
}

// applyDefaults sets every unset field to its default.
func (c *Config) applyDefaults() {
	if c.GPIOPin == 0 {
		c.GPIOPin = DefaultGPIOPin
	}

	if c.SubscribersFile == "" {
		c.SubscribersFile = DefaultSubscribersFilename
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.SettleWindow <= 0 {
		c.SettleWindow = sensor.DefaultSettleWindow
	}

	if c.DebounceWindow <= 0 {
		c.DebounceWindow = sensor.DefaultDebounceWindow
	}

	if c.PollInterval <= 0 {
		c.PollInterval = sensor.DefaultPollInterval
	}

	if c.ReplayConcurrency <= 0 {
		c.ReplayConcurrency = DefaultReplayConcurrency
	}
}

// format maps a file extension to a settings format.
func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return ""
	}
}
