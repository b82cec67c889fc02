package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by Validate when no bot token is configured.
var ErrMissingToken = errors.New("telegram bot token is not configured")

// Config represents the daemon configuration.
type Config struct {
	// HTTPHost is the address the hook endpoint binds to. Hooks run on the
	// same machine, so this stays on loopback unless overridden.
	HTTPHost string `yaml:"http_host"`

	// HTTPPort is the hook endpoint port.
	HTTPPort int `yaml:"http_port"`

	// TelegramBotToken authenticates against the Bot API.
	TelegramBotToken string `yaml:"telegram_bot_token"`

	// TelegramChatID is the single chat allowed to answer questions.
	TelegramChatID int64 `yaml:"telegram_chat_id"`

	// QuestionTimeoutSeconds is how long an unanswered question is kept.
	QuestionTimeoutSeconds int `yaml:"question_timeout_seconds"`

	// SweepIntervalSeconds is the interval between expiry sweeps.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// InjectDelayMillis is the settle delay between injected keystrokes.
	InjectDelayMillis int `yaml:"inject_delay_ms"`

	// TmuxTimeoutSeconds bounds each tmux invocation.
	TmuxTimeoutSeconds int `yaml:"tmux_timeout_seconds"`

	// LogLevel is the logging level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFile is the log destination; empty means stderr.
	LogFile string `yaml:"log_file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		HTTPHost:               "127.0.0.1",
		HTTPPort:               8642,
		QuestionTimeoutSeconds: 3600,
		SweepIntervalSeconds:   300,
		InjectDelayMillis:      800,
		TmuxTimeoutSeconds:     5,
		LogLevel:               "info",
	}
}

// Load loads configuration from <dir>/config.yaml, applies environment
// overrides, and decrypts credentials from <dir>/.config.enc when the
// token is not set directly.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == 0 {
		if err := cfg.loadEncryptedCredentials(dir); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr("HTTP_HOST", &c.HTTPHost)
	envInt("HTTP_PORT", &c.HTTPPort)
	envStr("TELEGRAM_BOT_TOKEN", &c.TelegramBotToken)
	envInt64("TELEGRAM_CHAT_ID", &c.TelegramChatID)
	envInt("QUESTION_TIMEOUT_SECONDS", &c.QuestionTimeoutSeconds)
	envInt("SWEEP_INTERVAL_SECONDS", &c.SweepIntervalSeconds)
	envInt("INJECT_DELAY_MS", &c.InjectDelayMillis)
	envInt("TMUX_TIMEOUT_SECONDS", &c.TmuxTimeoutSeconds)
	envStr("LOG_LEVEL", &c.LogLevel)
	envStr("LOG_FILE", &c.LogFile)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

// QuestionTimeout returns the question expiry age.
func (c *Config) QuestionTimeout() time.Duration {
	return time.Duration(c.QuestionTimeoutSeconds) * time.Second
}

// SweepInterval returns the interval between expiry sweeps.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// InjectDelay returns the settle delay between injected keystrokes.
func (c *Config) InjectDelay() time.Duration {
	return time.Duration(c.InjectDelayMillis) * time.Millisecond
}

// TmuxTimeout returns the per-command tmux timeout.
func (c *Config) TmuxTimeout() time.Duration {
	return time.Duration(c.TmuxTimeoutSeconds) * time.Second
}

// HTTPAddr returns the hook endpoint listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return ErrMissingToken
	}
	if c.TelegramChatID == 0 {
		return fmt.Errorf("telegram_chat_id must be set")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if c.QuestionTimeoutSeconds < 1 {
		return fmt.Errorf("question_timeout_seconds must be at least 1")
	}
	if c.SweepIntervalSeconds < 1 {
		return fmt.Errorf("sweep_interval_seconds must be at least 1")
	}
	if c.InjectDelayMillis < 0 {
		return fmt.Errorf("inject_delay_ms must not be negative")
	}
	if c.TmuxTimeoutSeconds < 1 {
		return fmt.Errorf("tmux_timeout_seconds must be at least 1")
	}
	return nil
}
