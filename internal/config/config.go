// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Chat    ChatConfig    `mapstructure:"chat" yaml:"chat"`
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
}

// ServerConfig holds settings for the HTTP front end.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// APIKey, when set, gates POST /chat behind a bearer token.
	APIKey string `mapstructure:"api_key" yaml:"-"`
	// MaxConns caps concurrent HTTP connections in front of the serialized core.
	MaxConns           int           `mapstructure:"max_conns" yaml:"max_conns"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SessionConfig identifies the upstream application and the credential used to
// authenticate the browser session against it.
type SessionConfig struct {
	// Token is the session credential injected as cookies before first
	// navigation. The service refuses to start without it.
	Token       string   `mapstructure:"token" yaml:"-"`
	CookieNames []string `mapstructure:"cookie_names" yaml:"cookie_names"`
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
}

// BrowserConfig holds launch settings for the underlying browser.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// Channel selects a named browser binary ("chrome", "chromium", ...).
	// ExecPath wins over Channel when both are set.
	Channel     string `mapstructure:"channel" yaml:"channel"`
	ExecPath    string `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	// RealProfile forces a visible browser on a persistent default profile,
	// preferring the stable Chrome channel. Useful for completing an
	// interactive login once and reusing its storage afterwards.
	RealProfile        bool     `mapstructure:"real_profile" yaml:"real_profile"`
	SuppressAutomation bool     `mapstructure:"suppress_automation" yaml:"suppress_automation"`
	Stealth            bool     `mapstructure:"stealth" yaml:"stealth"`
	ProxyURL           string   `mapstructure:"proxy_url" yaml:"proxy_url"`
	ExtraArgs          []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// ChatConfig tunes the submission cycle: how long each protocol step may
// take and how reply stabilization is detected.
type ChatConfig struct {
	DefaultTimeout    time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ComposerTimeout   time.Duration `mapstructure:"composer_timeout" yaml:"composer_timeout"`
	SendTimeout       time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	AttachmentTimeout time.Duration `mapstructure:"attachment_timeout" yaml:"attachment_timeout"`
	// PollInterval is the cadence at which the collector samples the reply;
	// SettleInterval is how long the text must stay unchanged to count as done.
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleInterval time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`
	// QueueGrace is the extra budget a cycle gets beyond its response timeout
	// before it is forcibly cut off and the serialization token reclaimed.
	QueueGrace      time.Duration `mapstructure:"queue_grace" yaml:"queue_grace"`
	DefaultKeyDelay time.Duration `mapstructure:"default_key_delay" yaml:"default_key_delay"`
	FilterResponse  bool          `mapstructure:"filter_response" yaml:"filter_response"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Server --
	v.SetDefault("server.listen_addr", ":8000")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.max_conns", 64)
	v.SetDefault("server.rate_limit_per_minute", 0)
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Session --
	v.SetDefault("session.token", "")
	v.SetDefault("session.cookie_names", []string{
		"__Secure-next-auth.session-token",
		"next-auth.session-token",
	})
	v.SetDefault("session.base_url", "https://chatgpt.com")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.channel", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.real_profile", false)
	v.SetDefault("browser.suppress_automation", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.proxy_url", "")
	v.SetDefault("browser.extra_args", []string{})

	// -- Chat --
	v.SetDefault("chat.default_timeout", "240s")
	v.SetDefault("chat.navigation_timeout", "15s")
	v.SetDefault("chat.composer_timeout", "15s")
	v.SetDefault("chat.send_timeout", "10s")
	v.SetDefault("chat.attachment_timeout", "30s")
	v.SetDefault("chat.poll_interval", "250ms")
	v.SetDefault("chat.settle_interval", "1500ms")
	v.SetDefault("chat.queue_grace", "10s")
	v.SetDefault("chat.default_key_delay", "100ms")
	v.SetDefault("chat.filter_response", true)

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gptrelay")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
}

// bindLegacyEnv maps the environment names of the original deployment onto
// viper keys so existing .env files keep working unchanged.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("session.token", "GPTRELAY_SESSION_TOKEN", "UNLIMITEDGPT_SESSION_TOKEN", "CHATGPT_SESSION_TOKEN")
	v.BindEnv("session.base_url", "GPTRELAY_SESSION_BASE_URL", "CHATGPT_BASE_URL")
	v.BindEnv("session.cookie_names", "GPTRELAY_SESSION_COOKIE_NAMES", "CHATGPT_SESSION_COOKIE_NAMES")
	v.BindEnv("server.api_key", "GPTRELAY_SERVER_API_KEY", "CHATGPT_API_KEY")
	v.BindEnv("browser.headless", "GPTRELAY_BROWSER_HEADLESS", "UNLIMITEDGPT_HEADLESS", "CHATGPT_HEADLESS")
	v.BindEnv("browser.channel", "GPTRELAY_BROWSER_CHANNEL", "CHATGPT_BROWSER_CHANNEL")
	v.BindEnv("browser.user_data_dir", "GPTRELAY_BROWSER_USER_DATA_DIR", "CHATGPT_USER_DATA_DIR")
	v.BindEnv("browser.real_profile", "GPTRELAY_BROWSER_REAL_PROFILE", "CHATGPT_REAL_BROWSER")
	v.BindEnv("browser.suppress_automation", "GPTRELAY_BROWSER_SUPPRESS_AUTOMATION", "CHATGPT_IGNORE_AUTOMATION")
	v.BindEnv("browser.stealth", "GPTRELAY_BROWSER_STEALTH", "CHATGPT_USE_STEALTH")
	v.BindEnv("browser.extra_args", "GPTRELAY_BROWSER_EXTRA_ARGS", "CHATGPT_LAUNCH_ARGS")
}

// applyLegacyEnv covers the legacy variables whose raw form does not decode
// through viper: bare-seconds timeouts and the PORT convention.
func applyLegacyEnv(cfg *Config) {
	if raw := os.Getenv("CHATGPT_DEFAULT_TIMEOUT"); raw != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs > 0 {
			cfg.Chat.DefaultTimeout = time.Duration(secs) * time.Second
		}
	}
	if port := os.Getenv("PORT"); port != "" && os.Getenv("GPTRELAY_SERVER_LISTEN_ADDR") == "" {
		cfg.Server.ListenAddr = ":" + port
	}
}

// NewConfigFromViper creates a validated configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	bindLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyLegacyEnv(&cfg)

	// Real-browser mode implies a visible window on a persistent profile.
	if cfg.Browser.RealProfile {
		cfg.Browser.Headless = false
		if cfg.Browser.Channel == "" {
			cfg.Browser.Channel = "chrome"
		}
		if cfg.Browser.UserDataDir == "" {
			cfg.Browser.UserDataDir = "~/.gptrelay/profile"
		}
	}

	if cfg.Browser.UserDataDir != "" {
		expanded, err := homedir.Expand(cfg.Browser.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("could not resolve user data dir %q: %w", cfg.Browser.UserDataDir, err)
		}
		cfg.Browser.UserDataDir = expanded
	}
	if cfg.Logger.LogFile != "" {
		expanded, err := homedir.Expand(cfg.Logger.LogFile)
		if err != nil {
			return nil, fmt.Errorf("could not resolve log file path %q: %w", cfg.Logger.LogFile, err)
		}
		cfg.Logger.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
// The session credential is deliberately not checked here: commands that never
// open a session (send, logs, version) must work without one, and the session
// manager enforces it at open time.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Server.MaxConns <= 0 {
		return fmt.Errorf("server.max_conns must be a positive integer")
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must not be negative")
	}
	if c.Session.BaseURL == "" {
		return fmt.Errorf("session.base_url must not be empty")
	}
	if len(c.Session.CookieNames) == 0 {
		return fmt.Errorf("session.cookie_names must contain at least one name")
	}
	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat configuration invalid: %w", err)
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be either \"console\" or \"json\", got %q", c.Logger.Format)
	}
	return nil
}

// Validate checks the cycle timing knobs.
func (c *ChatConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"chat.default_timeout":    c.DefaultTimeout,
		"chat.navigation_timeout": c.NavigationTimeout,
		"chat.composer_timeout":   c.ComposerTimeout,
		"chat.send_timeout":       c.SendTimeout,
		"chat.attachment_timeout": c.AttachmentTimeout,
		"chat.poll_interval":      c.PollInterval,
		"chat.settle_interval":    c.SettleInterval,
		"chat.queue_grace":        c.QueueGrace,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if c.SettleInterval < c.PollInterval {
		return fmt.Errorf("chat.settle_interval must not be shorter than chat.poll_interval")
	}
	if c.DefaultKeyDelay < 0 {
		return fmt.Errorf("chat.default_key_delay must not be negative")
	}
	return nil
}
