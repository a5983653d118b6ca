// Package config provides configuration management for the FERMO submission
// service. All deployment-mode flags (upload limits, feature caps, timeouts)
// live on a single Config value that is passed explicitly into components at
// construction time; nothing reads configuration ambiently.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// Defaults applied when neither the config file nor the environment provides
// a value.
const (
	DefaultListenAddr      = ":8001"
	DefaultMaxUploadBytes  = 25 * 1024 * 1024 // 25 MB per uploaded file
	DefaultMaxFeatures     = 10000            // restricted-mode peaktable cap
	DefaultWorkers         = 2
	DefaultQueueSize       = 64
	DefaultSoftTimeLimit   = 2 * time.Hour
	DefaultRetentionDays   = 30
	DefaultAntismashURL    = "https://antismash.secondarymetabolites.org"
	DefaultListTimeout     = 5 * time.Second
	DefaultDownloadTimeout = 120 * time.Second
)

// Validation errors.
var (
	ErrMissingUploadRoot = errors.New("upload_root is required")
	ErrInvalidWorkers    = errors.New("workers must be at least 1")
	ErrInvalidRetention  = errors.New("retention_days must be at least 1")
)

// SMTPConfig holds the settings for the mail notifier.
type SMTPConfig struct {
	Host     string `ini:"host"`
	Port     string `ini:"port"`
	Username string `ini:"username"`
	Password string `ini:"password"`
	From     string `ini:"from"`
}

// Configured reports whether enough SMTP settings are present to send mail.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Port != "" && s.From != ""
}

// Config is the process-wide configuration value object.
//
// INI format:
//
//	[server]
//	listen_addr = :8001
//	root_url = https://fermo.example.org
//	upload_root = /var/lib/fermo/uploads
//	online = true
//
//	[limits]
//	max_upload_bytes = 26214400
//	max_features = 10000
//	soft_time_limit_minutes = 120
//	retention_days = 30
//
//	[worker]
//	workers = 2
//	queue_size = 64
//
//	[antismash]
//	base_url = https://antismash.secondarymetabolites.org
//
//	[smtp]
//	host = localhost
//	port = 25
//	from = noreply@fermo.example.org
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `ini:"listen_addr"`

	// RootURL is the public base URL used in notification mails.
	RootURL string `ini:"root_url"`

	// UploadRoot is the directory under which per-job workspaces live.
	UploadRoot string `ini:"upload_root"`

	// Online marks the restricted deployment posture. When true, upload
	// sizes and peaktable feature counts are capped and mail is sent.
	// Offline/unrestricted runs enforce neither.
	Online bool `ini:"online"`

	// MaxUploadBytes caps individual uploaded files in restricted mode.
	MaxUploadBytes int64 `ini:"max_upload_bytes"`

	// MaxFeatures caps the peaktable row count in restricted mode.
	MaxFeatures int `ini:"max_features"`

	// SoftTimeLimit bounds a single background analysis run.
	SoftTimeLimit time.Duration

	// RetentionDays controls the retention sweep: job workspaces older
	// than this are deleted by the cleanup command.
	RetentionDays int `ini:"retention_days"`

	// Workers is the size of the background worker pool.
	Workers int `ini:"workers"`

	// QueueSize is the dispatch queue capacity.
	QueueSize int `ini:"queue_size"`

	// AntismashBaseURL is the third-party result host queried for
	// externally-hosted job archives.
	AntismashBaseURL string `ini:"base_url"`

	// AntismashListTimeout bounds the archive listing lookup.
	AntismashListTimeout time.Duration

	// AntismashDownloadTimeout bounds a single archive download.
	AntismashDownloadTimeout time.Duration

	// SMTP settings for success/failure mails.
	SMTP SMTPConfig
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		ListenAddr:               DefaultListenAddr,
		MaxUploadBytes:           DefaultMaxUploadBytes,
		MaxFeatures:              DefaultMaxFeatures,
		SoftTimeLimit:            DefaultSoftTimeLimit,
		RetentionDays:            DefaultRetentionDays,
		Workers:                  DefaultWorkers,
		QueueSize:                DefaultQueueSize,
		AntismashBaseURL:         DefaultAntismashURL,
		AntismashListTimeout:     DefaultListTimeout,
		AntismashDownloadTimeout: DefaultDownloadTimeout,
	}
}

// Load reads the config file at path, applies environment overrides and
// returns the validated Config. A missing file is not an error: defaults
// plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFile(cfg, path); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.Section("server").MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map [server] section: %w", err)
	}
	if err := file.Section("limits").MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map [limits] section: %w", err)
	}
	if err := file.Section("worker").MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map [worker] section: %w", err)
	}
	if err := file.Section("antismash").MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map [antismash] section: %w", err)
	}
	if err := file.Section("smtp").MapTo(&cfg.SMTP); err != nil {
		return fmt.Errorf("failed to map [smtp] section: %w", err)
	}

	if v := file.Section("limits").Key("soft_time_limit_minutes").String(); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid soft_time_limit_minutes %q: %w", v, err)
		}
		cfg.SoftTimeLimit = time.Duration(minutes) * time.Minute
	}

	return nil
}

// applyEnv overlays FERMO_* environment variables on top of file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FERMO_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FERMO_ROOT_URL"); v != "" {
		cfg.RootURL = v
	}
	if v := os.Getenv("FERMO_UPLOAD_ROOT"); v != "" {
		cfg.UploadRoot = v
	}
	if v := os.Getenv("FERMO_ONLINE"); v != "" {
		cfg.Online = v == "1" || v == "true"
	}
	if v := os.Getenv("FERMO_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("FERMO_MAX_FEATURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFeatures = n
		}
	}
	if v := os.Getenv("FERMO_ANTISMASH_URL"); v != "" {
		cfg.AntismashBaseURL = v
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.UploadRoot == "" {
		return ErrMissingUploadRoot
	}
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.RetentionDays < 1 {
		return ErrInvalidRetention
	}
	return nil
}

// EnsureUploadRoot creates the upload root directory if it does not exist.
func (c *Config) EnsureUploadRoot() error {
	return os.MkdirAll(filepath.Clean(c.UploadRoot), 0o755)
}
