package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultControlURL     = "wss://websocket.botofthespecter.com"
	DefaultAPIBaseURL     = "https://api.botofthespecter.com"
	DefaultEventName      = "OBS_EVENT"
	DefaultRetryDelay     = 10 * time.Second
	DefaultAutomationPort = 4455
)

type Config struct {
	AccessToken string           `yaml:"access_token"`
	Control     ControlConfig    `yaml:"control"`
	Automation  AutomationConfig `yaml:"automation"`
	API         APIConfig        `yaml:"api"`
	Relay       RelayConfig      `yaml:"relay"`
	Status      StatusConfig     `yaml:"status"`
	Log         LogConfig        `yaml:"log"`
}

// ControlConfig describes the control-plane channel to the remote service.
type ControlConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ClientName     string        `yaml:"client_name"`
}

// AutomationConfig describes the local obs-websocket server.
type AutomationConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ProcessNames   []string      `yaml:"process_names"`
}

type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	EventName string        `yaml:"event_name"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RelayConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// StatusConfig controls the local status surface. An empty Listen disables it.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			URL:            DefaultControlURL,
			ConnectTimeout: 10 * time.Second,
			RetryDelay:     DefaultRetryDelay,
		},
		Automation: AutomationConfig{
			Host:           "localhost",
			Port:           DefaultAutomationPort,
			ConnectTimeout: 10 * time.Second,
			RetryDelay:     DefaultRetryDelay,
			ProcessNames:   []string{"obs", "obs64", "obs-studio"},
		},
		API: APIConfig{
			BaseURL:   DefaultAPIBaseURL,
			EventName: DefaultEventName,
			Timeout:   10 * time.Second,
		},
		Relay: RelayConfig{
			QueueSize: 256,
			Workers:   4,
		},
		Status: StatusConfig{
			Listen: "127.0.0.1:4456",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads the config at path, returning the defaults when the
// file does not exist. Any other error is returned as-is.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate reports the first setting that would prevent a connection attempt
// from ever succeeding.
func (c *Config) Validate() error {
	if c.Control.URL == "" {
		return errors.New("config: control.url is required")
	}
	if c.Automation.Host == "" {
		return errors.New("config: automation.host is required")
	}
	if c.Automation.Port <= 0 || c.Automation.Port > 65535 {
		return fmt.Errorf("config: automation.port %d out of range", c.Automation.Port)
	}
	if c.Control.RetryDelay <= 0 || c.Automation.RetryDelay <= 0 {
		return errors.New("config: retry_delay must be > 0")
	}
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url is required")
	}
	if c.Relay.QueueSize <= 0 || c.Relay.Workers <= 0 {
		return errors.New("config: relay.queue_size and relay.workers must be > 0")
	}
	return nil
}

// Settings returns the connection parameters held by this config.
func (c *Config) Settings() Settings {
	return Settings{
		AccessToken:      c.AccessToken,
		AutomationHost:   c.Automation.Host,
		AutomationPort:   c.Automation.Port,
		AutomationSecret: c.Automation.Password,
	}
}
