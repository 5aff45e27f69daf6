// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Browser   BrowserConfig   `mapstructure:"browser"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Export    ExportConfig    `mapstructure:"export"`
	KeepAwake bool            `mapstructure:"keep_awake"`
}

type BrowserConfig struct {
	DebuggerURL      string        `mapstructure:"debugger_url"`
	ChromePath       string        `mapstructure:"chrome_path"`
	ProfileDir       string        `mapstructure:"profile_dir"`
	StartURL         string        `mapstructure:"start_url"`
	ConnectTimeoutMS int           `mapstructure:"connect_timeout"`
	WaitTimeoutMS    int           `mapstructure:"wait_timeout"`
	DialogTimeoutMS  int           `mapstructure:"dialog_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"-"`
	WaitTimeout      time.Duration `mapstructure:"-"`
	DialogTimeout    time.Duration `mapstructure:"-"`
}

// Port extracts the remote-debugging port from DebuggerURL.
func (b BrowserConfig) Port() string {
	u, err := url.Parse(b.DebuggerURL)
	if err != nil || u.Port() == "" {
		return "9222"
	}
	return u.Port()
}

type RunnerConfig struct {
	ShutdownGraceMS int           `mapstructure:"shutdown_grace"`
	EventBuffer     int           `mapstructure:"event_buffer"`
	ShutdownGrace   time.Duration `mapstructure:"-"`
}

type WorkflowsConfig struct {
	Dir        string        `mapstructure:"dir"`
	MinDelayMS int           `mapstructure:"min_delay"`
	MaxDelayMS int           `mapstructure:"max_delay"`
	MinDelay   time.Duration `mapstructure:"-"`
	MaxDelay   time.Duration `mapstructure:"-"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Debug      bool   `mapstructure:"debug"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

const (
	DefaultDebuggerURL    = "http://127.0.0.1:9222"
	DefaultStartURL       = "https://nrega.nic.in/"
	DefaultConnectTimeout = 15000
	DefaultWaitTimeout    = 20000
	DefaultDialogTimeout  = 10000
	DefaultShutdownGrace  = 5000
	DefaultEventBuffer    = 256
	DefaultMinDelay       = 2000
	DefaultMaxDelay       = 6000
	DefaultLogBuffer      = 1000
)

// DataDir is the per-user directory that holds the database, logs and exports.
func DataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "nregabot")
	}
	return ".nregabot"
}

func defaults() map[string]interface{} {
	data := DataDir()
	home, _ := os.UserHomeDir()
	return map[string]interface{}{
		"browser.debugger_url":    DefaultDebuggerURL,
		"browser.chrome_path":     "",
		"browser.profile_dir":     filepath.Join(home, "ChromeProfileForNREGABot"),
		"browser.start_url":       DefaultStartURL,
		"browser.connect_timeout": DefaultConnectTimeout,
		"browser.wait_timeout":    DefaultWaitTimeout,
		"browser.dialog_timeout":  DefaultDialogTimeout,
		"runner.shutdown_grace":   DefaultShutdownGrace,
		"runner.event_buffer":     DefaultEventBuffer,
		"workflows.dir":           "workflows",
		"workflows.min_delay":     DefaultMinDelay,
		"workflows.max_delay":     DefaultMaxDelay,
		"storage.path":            filepath.Join(data, "nregabot.db"),
		"logging.debug":           false,
		"logging.file":            filepath.Join(data, "logs", "nregabot.log"),
		"logging.max_size":        10,
		"logging.max_backups":     3,
		"logging.max_age":         30,
		"logging.buffer_size":     DefaultLogBuffer,
		"export.dir":              filepath.Join(data, "exports"),
		"keep_awake":              true,
	}
}

// LoadConfig reads path (if it exists), applies defaults and NREGABOT_* env
// overrides, and validates the result. An empty path means defaults only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("NREGABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config error: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	cfg.Browser.ConnectTimeout = time.Duration(cfg.Browser.ConnectTimeoutMS) * time.Millisecond
	cfg.Browser.WaitTimeout = time.Duration(cfg.Browser.WaitTimeoutMS) * time.Millisecond
	cfg.Browser.DialogTimeout = time.Duration(cfg.Browser.DialogTimeoutMS) * time.Millisecond
	cfg.Runner.ShutdownGrace = time.Duration(cfg.Runner.ShutdownGraceMS) * time.Millisecond
	cfg.Workflows.MinDelay = time.Duration(cfg.Workflows.MinDelayMS) * time.Millisecond
	cfg.Workflows.MaxDelay = time.Duration(cfg.Workflows.MaxDelayMS) * time.Millisecond

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if err := validateURLWithCache(cfg.Browser.DebuggerURL, "http"); err != nil {
		return fmt.Errorf("browser.debugger_url: %w", err)
	}
	if cfg.Browser.StartURL != "" {
		if err := validateURLWithCache(cfg.Browser.StartURL, "http"); err != nil {
			return fmt.Errorf("browser.start_url: %w", err)
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if cfg.Workflows.Dir == "" {
		return errors.New("workflows.dir is required")
	}
	if cfg.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.Browser.ConnectTimeout <= 0 {
		return errors.New("invalid browser.connect_timeout")
	}
	if cfg.Browser.WaitTimeout <= 0 {
		return errors.New("invalid browser.wait_timeout")
	}
	if cfg.Browser.DialogTimeout <= 0 {
		return errors.New("invalid browser.dialog_timeout")
	}
	if cfg.Runner.ShutdownGrace <= 0 {
		return errors.New("invalid runner.shutdown_grace")
	}
	if cfg.Runner.EventBuffer <= 0 {
		return errors.New("invalid runner.event_buffer")
	}
	if cfg.Workflows.MinDelay < 0 || cfg.Workflows.MaxDelay < cfg.Workflows.MinDelay {
		return errors.New("workflows.min_delay must be >= 0 and <= workflows.max_delay")
	}
	if cfg.Logging.BufferSize <= 0 {
		return errors.New("invalid logging.buffer_size")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}
