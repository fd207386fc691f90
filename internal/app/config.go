package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/omnipilot/tokenvault/internal/publish"
	"github.com/omnipilot/tokenvault/internal/refresh"
	"github.com/omnipilot/tokenvault/internal/secrets"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// SecretSourceType represents the different backends supported for secret resolution.
type SecretSourceType string

const (
	SecretSourceEnv     SecretSourceType = "env"
	SecretSourceFile    SecretSourceType = "file"
	SecretSourceKeyring SecretSourceType = "keyring"
)

// Well-known secret names resolved through the secret source when the
// corresponding config fields are left empty.
const (
	SecretStorageAccessKeyID     = "storage_access_key_id"
	SecretStorageSecretAccessKey = "storage_secret_access_key"
	SecretTikTokClientKey        = "tiktok_client_key"
	SecretTikTokClientSecret     = "tiktok_client_secret"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 8080
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigTokenBucket     = "tiktok-token-store"
	DefaultConfigTokenObjectKey  = "tiktok_tokens.json"
	DefaultConfigStorageRegion   = "auto"
	DefaultConfigMediaBucket     = "my-tiktok-videos"
	DefaultConfigSecretsSource   = SecretSourceEnv
	DefaultConfigSecretsPrefix   = "TOKENVAULT_SECRET_"
	DefaultConfigSecretsService  = "tokenvault"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// StorageConfig describes the S3-compatible backend holding the token
// document and the media bucket. Credentials may be inlined or, preferably,
// left empty and resolved through the secret source.
type StorageConfig struct {
	Endpoint        string `json:"endpoint" validate:"required"`
	Region          string `json:"region"`
	DisableSSL      bool   `json:"disable_ssl"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`

	// TokenBucket/TokenObjectKey locate the single token collection document.
	TokenBucket    string `json:"token_bucket"`
	TokenObjectKey string `json:"token_object_key"`
}

// TikTokConfig holds the TikTok app credentials and endpoints.
type TikTokConfig struct {
	ClientKey    string `json:"client_key,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	TokenURL     string `json:"token_url" validate:"omitempty,url"`
	APIBaseURL   string `json:"api_base_url" validate:"omitempty,url"`
}

// MediaConfig configures the public media bucket used for uploads.
type MediaConfig struct {
	Bucket        string `json:"bucket"`
	PublicBaseURL string `json:"public_base_url" validate:"omitempty,url"`
}

// SecretsConfig selects where named secrets are resolved from.
type SecretsConfig struct {
	Source SecretSourceType `json:"source" validate:"required,oneof=env file keyring"`

	// Source-specific settings (mutually exclusive based on Source type)
	Prefix  string `json:"prefix,omitempty"`  // For env source: variable prefix
	Dir     string `json:"dir,omitempty"`     // For file source: secrets directory
	Service string `json:"service,omitempty"` // For keyring source: service identifier
}

// NewSource creates a secrets.Source from the configuration.
func (s *SecretsConfig) NewSource() (secrets.Source, error) {
	switch s.Source {
	case SecretSourceEnv:
		return secrets.NewEnvSource(s.Prefix)
	case SecretSourceFile:
		return secrets.NewFileSource(s.Dir)
	case SecretSourceKeyring:
		return secrets.NewKeyringSource(s.Service)
	default:
		return nil, fmt.Errorf("unsupported secret source: %s", s.Source)
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json"`
	Server    ServerConfig   `json:"server"`
	Shutdown  ShutdownConfig `json:"shutdown"`
	Storage   StorageConfig  `json:"storage"`
	TikTok    TikTokConfig   `json:"tiktok"`
	Media     MediaConfig    `json:"media"`
	Secrets   SecretsConfig  `json:"secrets"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Storage.Region == "" {
		c.Storage.Region = DefaultConfigStorageRegion
	}
	if c.Storage.TokenBucket == "" {
		c.Storage.TokenBucket = DefaultConfigTokenBucket
	}
	if c.Storage.TokenObjectKey == "" {
		c.Storage.TokenObjectKey = DefaultConfigTokenObjectKey
	}
	if c.TikTok.TokenURL == "" {
		c.TikTok.TokenURL = refresh.DefaultTokenURL
	}
	if c.TikTok.APIBaseURL == "" {
		c.TikTok.APIBaseURL = publish.DefaultAPIBaseURL
	}
	if c.Media.Bucket == "" {
		c.Media.Bucket = DefaultConfigMediaBucket
	}
	if c.Secrets.Source == "" {
		c.Secrets.Source = DefaultConfigSecretsSource
	}

	// Dynamic defaults based on secret source
	switch c.Secrets.Source {
	case SecretSourceEnv:
		if c.Secrets.Prefix == "" {
			c.Secrets.Prefix = DefaultConfigSecretsPrefix
		}
	case SecretSourceKeyring:
		if c.Secrets.Service == "" {
			c.Secrets.Service = DefaultConfigSecretsService
		}
	case SecretSourceFile:
		// dir must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Secrets.Source {
	case SecretSourceEnv:
		if c.Secrets.Prefix == "" {
			return errors.New("prefix required for env secret source")
		}
	case SecretSourceFile:
		if c.Secrets.Dir == "" {
			return errors.New("dir required for file secret source")
		}
	case SecretSourceKeyring:
		if c.Secrets.Service == "" {
			return errors.New("service required for keyring secret source")
		}
	}

	return nil
}
