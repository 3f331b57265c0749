// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Mapping() MappingConfig
	Database() DatabaseConfig
	Server() ServerConfig
	Walkthrough() WalkthroughConfig

	// Setters used by command-line flag overrides.
	SetBrowserMode(mode string)
	SetBrowserHeadless(bool)
	SetMappingKind(kind string)
	SetMappingLocation(location string)
	SetServerAddr(addr string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	MappingCfg     MappingConfig     `mapstructure:"mapping" yaml:"mapping"`
	DatabaseCfg    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	ServerCfg      ServerConfig      `mapstructure:"server" yaml:"server"`
	WalkthroughCfg WalkthroughConfig `mapstructure:"walkthrough" yaml:"walkthrough"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Mapping() MappingConfig         { return c.MappingCfg }
func (c *Config) Database() DatabaseConfig       { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig           { return c.ServerCfg }
func (c *Config) Walkthrough() WalkthroughConfig { return c.WalkthroughCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserMode(mode string)         { c.BrowserCfg.Mode = mode }
func (c *Config) SetBrowserHeadless(b bool)          { c.BrowserCfg.Headless = b }
func (c *Config) SetMappingKind(kind string)         { c.MappingCfg.Kind = kind }
func (c *Config) SetMappingLocation(location string) { c.MappingCfg.Location = location }
func (c *Config) SetServerAddr(addr string)          { c.ServerCfg.Addr = addr }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Browser modes.
const (
	BrowserModeDOM    = "dom"
	BrowserModeChrome = "chrome"
)

// BrowserConfig selects and tunes the page the walkthrough runs against.
type BrowserConfig struct {
	// Mode is "dom" (in-memory document, no layout) or "chrome" (live browser).
	Mode              string        `mapstructure:"mode" yaml:"mode"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// Mapping source kinds.
const (
	MappingNone     = "none"
	MappingExample  = "example"
	MappingFile     = "file"
	MappingHTTP     = "http"
	MappingPostgres = "postgres"
)

// MappingConfig selects the external target-to-selector mapping source.
type MappingConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Location is a file path for "file" and a URL for "http".
	Location  string        `mapstructure:"location" yaml:"location"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" yaml:"url"`
	ConnectMaxRetry time.Duration `mapstructure:"connect_max_retry" yaml:"connect_max_retry"`
}

// ServerConfig configures the HTTP control panel.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	WSWriteTimeout  time.Duration `mapstructure:"ws_write_timeout" yaml:"ws_write_timeout"`
	WSMaxMessage    int64         `mapstructure:"ws_max_message" yaml:"ws_max_message"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// WalkthroughConfig tunes session behaviour.
type WalkthroughConfig struct {
	SuccessSelector string        `mapstructure:"success_selector" yaml:"success_selector"`
	StepTimeout     time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stepwise")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.mode", BrowserModeDOM)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.request_timeout", "15s")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.max_body_bytes", 8<<20)

	// -- Mapping --
	v.SetDefault("mapping.kind", MappingNone)
	v.SetDefault("mapping.timeout", "3s")
	v.SetDefault("mapping.rate_limit", 5.0)

	// -- Database --
	v.SetDefault("database.connect_max_retry", "30s")

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.ws_write_timeout", "5s")
	v.SetDefault("server.ws_max_message", 64<<10)
	v.SetDefault("server.max_upload_bytes", 1<<20)

	// -- Walkthrough --
	v.SetDefault("walkthrough.success_selector", "#success")
	v.SetDefault("walkthrough.step_timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "STEPWISE_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Mode {
	case BrowserModeDOM, BrowserModeChrome:
	default:
		return fmt.Errorf("browser.mode must be %q or %q, got %q", BrowserModeDOM, BrowserModeChrome, c.BrowserCfg.Mode)
	}
	if err := c.MappingCfg.Validate(); err != nil {
		return fmt.Errorf("mapping configuration invalid: %w", err)
	}
	if c.MappingCfg.Kind == MappingPostgres && c.DatabaseCfg.URL == "" {
		return fmt.Errorf("database.url is required when mapping.kind is %q", MappingPostgres)
	}
	if c.ServerCfg.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.WalkthroughCfg.SuccessSelector == "" {
		return fmt.Errorf("walkthrough.success_selector must not be empty")
	}
	return nil
}

// Validate checks the mapping source settings.
func (m *MappingConfig) Validate() error {
	switch m.Kind {
	case MappingNone, MappingExample, MappingPostgres:
	case MappingFile, MappingHTTP:
		if m.Location == "" {
			return fmt.Errorf("location is required for kind %q", m.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", m.Kind)
	}
	if m.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if m.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
