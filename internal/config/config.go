// SPDX-License-Identifier: MIT

// Package config provides configuration management for netlabd.
//
// Precedence is ENV > file > defaults. All environment variables use the
// NETLABD_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	// DataDir is the root directory for controller state. Projects live in
	// DataDir/projects, the checksum cache in DataDir/checksums.
	DataDir      string
	ProjectsDir  string
	ApplianceDir string
	ImagesDir    string

	ListenAddr string
	LogLevel   string
	APIToken   string

	MetricsEnabled bool
	MetricsAddr    string

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int
	AllowedOrigins   []string

	// NotificationQueueSize bounds each subscriber queue; PingInterval is
	// the keepalive interval for idle notification streams.
	NotificationQueueSize int
	PingInterval          time.Duration

	Version string
}

// FileConfig represents the YAML configuration structure.
type FileConfig struct {
	DataDir      string `yaml:"dataDir,omitempty"`
	ProjectsDir  string `yaml:"projectsDir,omitempty"`
	ApplianceDir string `yaml:"applianceDir,omitempty"`
	ImagesDir    string `yaml:"imagesDir,omitempty"`
	LogLevel     string `yaml:"logLevel,omitempty"`

	API           APIFileConfig     `yaml:"api,omitempty"`
	Metrics       MetricsFileConfig `yaml:"metrics,omitempty"`
	Notifications NotifyFileConfig  `yaml:"notifications,omitempty"`
}

// APIFileConfig holds HTTP API settings.
type APIFileConfig struct {
	ListenAddr     string   `yaml:"listenAddr,omitempty"`
	Token          string   `yaml:"token,omitempty"`
	RateLimit      *bool    `yaml:"rateLimit,omitempty"`
	RateLimitRPS   int      `yaml:"rateLimitRps,omitempty"`
	RateLimitBurst int      `yaml:"rateLimitBurst,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// MetricsFileConfig holds Prometheus endpoint settings.
type MetricsFileConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

// NotifyFileConfig holds notification stream settings.
type NotifyFileConfig struct {
	QueueSize    int    `yaml:"queueSize,omitempty"`
	PingInterval string `yaml:"pingInterval,omitempty"` // e.g. "5s"
}

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load loads configuration with precedence: ENV > File > Defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := l.defaults()

	if l.configPath != "" {
		fileCfg, err := loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnv(&cfg)

	// DataDir must be absolute so project paths resolve consistently.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.ProjectsDir == "" {
		cfg.ProjectsDir = filepath.Join(cfg.DataDir, "projects")
	}
	if cfg.ApplianceDir == "" {
		cfg.ApplianceDir = filepath.Join(cfg.DataDir, "appliances")
	}
	if cfg.ImagesDir == "" {
		cfg.ImagesDir = filepath.Join(cfg.DataDir, "images")
	}

	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) defaults() AppConfig {
	return AppConfig{
		DataDir:               defaultDataDir(),
		ListenAddr:            ":3080",
		LogLevel:              "info",
		MetricsEnabled:        false,
		MetricsAddr:           ":9090",
		RateLimitEnabled:      true,
		RateLimitRPS:          50,
		RateLimitBurst:        100,
		NotificationQueueSize: 128,
		PingInterval:          5 * time.Second,
		Version:               l.version,
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".netlabd")
	}
	return "/var/lib/netlabd"
}

func loadFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fc, err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fc, fmt.Errorf("parse yaml: %w", err)
	}
	return fc, nil
}

func mergeFileConfig(cfg *AppConfig, fc FileConfig) {
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.ProjectsDir != "" {
		cfg.ProjectsDir = fc.ProjectsDir
	}
	if fc.ApplianceDir != "" {
		cfg.ApplianceDir = fc.ApplianceDir
	}
	if fc.ImagesDir != "" {
		cfg.ImagesDir = fc.ImagesDir
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.API.ListenAddr != "" {
		cfg.ListenAddr = fc.API.ListenAddr
	}
	if fc.API.Token != "" {
		cfg.APIToken = fc.API.Token
	}
	if fc.API.RateLimit != nil {
		cfg.RateLimitEnabled = *fc.API.RateLimit
	}
	if fc.API.RateLimitRPS > 0 {
		cfg.RateLimitRPS = fc.API.RateLimitRPS
	}
	if fc.API.RateLimitBurst > 0 {
		cfg.RateLimitBurst = fc.API.RateLimitBurst
	}
	if len(fc.API.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.API.AllowedOrigins
	}
	if fc.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *fc.Metrics.Enabled
	}
	if fc.Metrics.Addr != "" {
		cfg.MetricsAddr = fc.Metrics.Addr
	}
	if fc.Notifications.QueueSize > 0 {
		cfg.NotificationQueueSize = fc.Notifications.QueueSize
	}
	if fc.Notifications.PingInterval != "" {
		if d, err := time.ParseDuration(fc.Notifications.PingInterval); err == nil {
			cfg.PingInterval = d
		}
	}
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString("NETLABD_DATA", cfg.DataDir)
	cfg.ProjectsDir = ParseString("NETLABD_PROJECTS", cfg.ProjectsDir)
	cfg.ApplianceDir = ParseString("NETLABD_APPLIANCES", cfg.ApplianceDir)
	cfg.ImagesDir = ParseString("NETLABD_IMAGES", cfg.ImagesDir)
	cfg.ListenAddr = ParseString("NETLABD_LISTEN", cfg.ListenAddr)
	cfg.LogLevel = ParseString("NETLABD_LOG_LEVEL", cfg.LogLevel)
	cfg.APIToken = ParseString("NETLABD_API_TOKEN", cfg.APIToken)
	cfg.MetricsEnabled = ParseBool("NETLABD_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("NETLABD_METRICS_ADDR", cfg.MetricsAddr)
	cfg.RateLimitEnabled = ParseBool("NETLABD_RATE_LIMIT", cfg.RateLimitEnabled)
	cfg.RateLimitRPS = ParseInt("NETLABD_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = ParseInt("NETLABD_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.NotificationQueueSize = ParseInt("NETLABD_NOTIFY_QUEUE", cfg.NotificationQueueSize)
	cfg.PingInterval = ParseDuration("NETLABD_PING_INTERVAL", cfg.PingInterval)
	if origins := ParseString("NETLABD_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitCSV(origins)
	}
}

func validate(cfg *AppConfig) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	// Dynamips cannot handle quotes in working directories; refuse early
	// rather than failing deep inside a node start.
	if strings.Contains(cfg.ProjectsDir, `"`) {
		return fmt.Errorf("projects directory must not contain quotes: %s", cfg.ProjectsDir)
	}
	if cfg.NotificationQueueSize < 1 {
		return fmt.Errorf("notification queue size must be positive, got %d", cfg.NotificationQueueSize)
	}
	if cfg.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive, got %s", cfg.PingInterval)
	}
	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
