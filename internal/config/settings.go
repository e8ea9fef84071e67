package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Settings is the set of connection parameters a supervisor snapshots at
// every (re)connect attempt.
type Settings struct {
	AccessToken      string
	AutomationHost   string
	AutomationPort   int
	AutomationSecret string
}

// Provider supplies the current Settings. Implementations must be safe for
// concurrent use; both supervisors and the relay call Settings independently.
type Provider interface {
	Settings() Settings
}

// Static is a Provider that always returns the same Settings.
type Static Settings

func (s Static) Settings() Settings { return Settings(s) }

// FileProvider serves Settings from a YAML config file so edits made by the
// host UI take effect on the next connection attempt. The file is re-read
// only when its modification time or size changes. A reload that is missing,
// unparsable or fails Validate keeps the last good snapshot.
type FileProvider struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	last    *Config
	stamp   fileStamp
	checked bool
}

// fileStamp identifies one version of the config file. The zero value stands
// for a file that could not be stat'ed.
type fileStamp struct {
	modTime int64
	size    int64
}

// NewFileProvider creates a provider seeded with initial, which is returned
// until the file at path yields a valid config.
func NewFileProvider(path string, initial *Config, logger *slog.Logger) *FileProvider {
	if initial == nil {
		initial = defaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProvider{path: path, last: initial, logger: logger}
}

func (p *FileProvider) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stamp fileStamp
	info, err := os.Stat(p.path)
	if err == nil {
		stamp = fileStamp{modTime: info.ModTime().UnixNano(), size: info.Size()}
	}
	if p.checked && stamp == p.stamp {
		return p.last.Settings()
	}
	p.checked = true
	p.stamp = stamp

	cfg, err := p.reload(err)
	if err != nil {
		p.logger.Warn("settings reload failed, using last good settings", "path", p.path, "error", err)
		return p.last.Settings()
	}
	for _, change := range Diff(p.last, cfg) {
		p.logger.Info("settings changed", "change", change)
	}
	p.last = cfg
	return cfg.Settings()
}

func (p *FileProvider) reload(statErr error) (*Config, error) {
	if statErr != nil {
		return nil, statErr
	}
	cfg, err := Load(p.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Diff describes the connection-relevant differences between two configs.
// Secrets are reported as changed without revealing their values.
func Diff(old, new *Config) []string {
	var changes []string

	if old.AccessToken != new.AccessToken {
		changes = append(changes, "access_token: changed")
	}
	if old.Control.URL != new.Control.URL {
		changes = append(changes, fmt.Sprintf("control.url: %s → %s", old.Control.URL, new.Control.URL))
	}
	if old.Automation.Host != new.Automation.Host {
		changes = append(changes, fmt.Sprintf("automation.host: %s → %s", old.Automation.Host, new.Automation.Host))
	}
	if old.Automation.Port != new.Automation.Port {
		changes = append(changes, fmt.Sprintf("automation.port: %d → %d", old.Automation.Port, new.Automation.Port))
	}
	if old.Automation.Password != new.Automation.Password {
		changes = append(changes, "automation.password: changed")
	}
	if old.API.BaseURL != new.API.BaseURL {
		changes = append(changes, fmt.Sprintf("api.base_url: %s → %s", old.API.BaseURL, new.API.BaseURL))
	}

	return changes
}
