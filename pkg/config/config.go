package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
	"github.com/smaghili/eitaa-forwarder/pkg/atomicfile"
)

// ChannelStatus is the lifecycle state of a configured source channel
type ChannelStatus string

const (
	ChannelStatusActive   ChannelStatus = "active"
	ChannelStatusError    ChannelStatus = "error"
	ChannelStatusDisabled ChannelStatus = "disabled"
)

// Config represents the application configuration
type Config struct {
	Eitaa      EitaaConfig      `yaml:"eitaa"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Paths      PathsConfig      `yaml:"paths"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// EitaaConfig contains source platform settings
type EitaaConfig struct {
	URL                       string              `yaml:"url" default:"https://web.eitaa.com/" validate:"required,url"`
	Channels                  []ChannelConfig     `yaml:"channels" validate:"required,min=1,dive"`
	CheckIntervalSeconds      int                 `yaml:"check_interval_seconds" default:"60" validate:"gt=0"`
	LoginCheckIntervalSeconds int                 `yaml:"login_check_interval_seconds" default:"300" validate:"gt=0"`
	ReadyTimeout              time.Duration       `yaml:"ready_timeout" default:"30s" validate:"gt=0"`
	SettleDelay               time.Duration       `yaml:"settle_delay" default:"5s"`
	DownloadTimeout           time.Duration       `yaml:"download_timeout" default:"10s" validate:"gt=0"`
	Viewport                  ViewportConfig      `yaml:"viewport"`
	ErrorHandling             ErrorHandlingConfig `yaml:"error_handling"`
}

// ChannelConfig is one source channel
type ChannelConfig struct {
	ID              string        `yaml:"id" validate:"required"`
	Name            string        `yaml:"name"`
	Status          ChannelStatus `yaml:"status" default:"active" validate:"oneof=active error disabled"`
	TelegramTargets []int64       `yaml:"telegram_targets,omitempty"`
}

// DisplayName returns the channel name, falling back to its id
func (c ChannelConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// ViewportConfig is the browser window size
type ViewportConfig struct {
	Width  int `yaml:"width" default:"1920" validate:"gt=0"`
	Height int `yaml:"height" default:"1080" validate:"gt=0"`
}

// ErrorHandlingConfig controls channel error escalation
type ErrorHandlingConfig struct {
	MaxErrors int           `yaml:"max_errors" default:"3" validate:"gt=0"`
	Cooldown  time.Duration `yaml:"cooldown" default:"60s" validate:"gt=0"`
}

// TelegramConfig contains destination client settings
type TelegramConfig struct {
	APIID          int           `yaml:"api_id" validate:"required,gt=0"`
	APIHash        string        `yaml:"api_hash" validate:"required"`
	SessionName    string        `yaml:"session_name" default:"eitaa_forwarder_session" validate:"required"`
	Phone          string        `yaml:"phone,omitempty"`
	DefaultTargets []int64       `yaml:"default_targets" validate:"required,min=1"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout" default:"60s" validate:"gt=0"`
	SendInterval   time.Duration `yaml:"send_interval" default:"500ms"`
}

// PathsConfig contains state file locations. Relative paths are resolved
// against the directory of the config file.
type PathsConfig struct {
	SessionFile     string `yaml:"session_file" default:"auth.json" validate:"required"`
	ImagesDir       string `yaml:"images_dir" default:"channel_images" validate:"required"`
	LastMessageFile string `yaml:"last_message_file" default:"last_message.json" validate:"required"`
	ErrorCountFile  string `yaml:"error_count_file" default:"error_count.json" validate:"required"`
	PIDFile         string `yaml:"pid_file" default:"/run/eitaa-forwarder/service.pid"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"console" validate:"oneof=console json"`
	Dir        string `yaml:"dir" default:"logs"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"10" validate:"gt=0"`
	MaxBackups int    `yaml:"max_backups" default:"5" validate:"gte=0"`
}

// MonitoringConfig contains the operational HTTP endpoint settings
type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host" default:"127.0.0.1"`
	Port    int    `yaml:"port" default:"9090" validate:"gte=0,lte=65535"`
}

// CheckInterval is the pause between two polling cycles
func (c *EitaaConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// LoginCheckInterval is how often session liveness is verified
func (c *EitaaConfig) LoginCheckInterval() time.Duration {
	return time.Duration(c.LoginCheckIntervalSeconds) * time.Second
}

// Resolve returns a copy with every relative path joined to baseDir
func (p PathsConfig) Resolve(baseDir string) PathsConfig {
	abs := func(v string) string {
		if v == "" || filepath.IsAbs(v) {
			return v
		}
		return filepath.Join(baseDir, v)
	}
	return PathsConfig{
		SessionFile:     abs(p.SessionFile),
		ImagesDir:       abs(p.ImagesDir),
		LastMessageFile: abs(p.LastMessageFile),
		ErrorCountFile:  abs(p.ErrorCountFile),
		PIDFile:         abs(p.PIDFile),
	}
}

// Resolved returns a copy of c whose paths and log directory are joined to
// baseDir. c itself is left untouched so it can be saved back unchanged.
func (c *Config) Resolved(baseDir string) *Config {
	out := *c
	out.Eitaa.Channels = append([]ChannelConfig(nil), c.Eitaa.Channels...)
	out.Telegram.DefaultTargets = append([]int64(nil), c.Telegram.DefaultTargets...)
	out.Paths = c.Paths.Resolve(baseDir)
	if out.Logging.Dir != "" && !filepath.IsAbs(out.Logging.Dir) {
		out.Logging.Dir = filepath.Join(baseDir, out.Logging.Dir)
	}
	return &out
}

var validate = validator.New()

// Load loads configuration from a YAML file, applies defaults and validates it.
// Every failure is a ConfigError.
func Load(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, apperrors.ConfigError(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, apperrors.ConfigError(err, "failed to parse config file")
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, apperrors.ConfigError(err, "failed to apply config defaults")
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, apperrors.ConfigError(err, "config validation failed")
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Eitaa.Channels))
	for _, ch := range cfg.Eitaa.Channels {
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("eitaa.channels: duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}

// Save writes cfg back to configPath, replacing the file atomically
func Save(configPath string, cfg *Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := atomicfile.WriteFile(configPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// File couples a loaded config with the path it came from so channel status
// changes can be persisted immediately.
type File struct {
	path string

	mu  sync.Mutex
	cfg *Config
}

// NewFile wraps an already loaded config
func NewFile(path string, cfg *Config) *File {
	return &File{path: path, cfg: cfg}
}

// Path returns the config file location
func (f *File) Path() string { return f.path }

// Config returns the wrapped configuration
func (f *File) Config() *Config { return f.cfg }

// ErrUnknownChannel is returned when a status change targets a channel that
// is not in the config.
var ErrUnknownChannel = errors.New("unknown channel")

// Channels returns a snapshot of the configured channels
func (f *File) Channels() []ChannelConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]ChannelConfig, len(f.cfg.Eitaa.Channels))
	copy(out, f.cfg.Eitaa.Channels)
	return out
}

// SetChannelStatus updates the status of one channel and rewrites the file
func (f *File) SetChannelStatus(channelID string, status ChannelStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.cfg.Eitaa.Channels {
		if f.cfg.Eitaa.Channels[i].ID != channelID {
			continue
		}
		f.cfg.Eitaa.Channels[i].Status = status
		return Save(f.path, f.cfg)
	}
	return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
}
