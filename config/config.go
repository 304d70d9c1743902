// Package config loads vaultdrived's server configuration, following
// marmos91-dittofs's pkg/config layering: spf13/viper binds environment
// variables (and an optional YAML file) into a mapstructure-tagged Config
// struct, validated with go-playground/validator/v10.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix is the environment variable prefix for every setting below
// (e.g. VAULTDRIVE_HTTP_ADDR).
const envPrefix = "VAULTDRIVE"

// validate caches struct reflection info across calls, same rationale as
// derektruong-fxfer's package-level validator instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is vaultdrived's full server configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Quota     QuotaConfig     `mapstructure:"quota" yaml:"quota"`
	Multipart MultipartConfig `mapstructure:"multipart" yaml:"multipart"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`

	// SyncEventsEnabled gates whether the composition root wires
	// service.Storage to a real EventSink or to service.NoopSink.
	// Defaults to true: one observed client variant short-circuits this
	// notification path entirely, and the spec calls that short-circuit
	// known-buggy, so vaultdrive emits events unless an operator opts out.
	SyncEventsEnabled bool `mapstructure:"sync_events_enabled" yaml:"sync_events_enabled"`
}

// HTTPConfig controls the external HTTP surface.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the metadata store (quota + hierarchy).
type DatabaseConfig struct {
	// Driver selects the gorm dialect: "postgres" or "sqlite".
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite" yaml:"driver"`
	DSN    string `mapstructure:"dsn" validate:"required" yaml:"dsn"`
}

// StorageConfig selects and configures the byte-storage backend.
type StorageConfig struct {
	// Backend selects the storage.Provider implementation: "local" or "s3".
	Backend string      `mapstructure:"backend" validate:"required,oneof=local s3" yaml:"backend"`
	Local   LocalConfig `mapstructure:"local" yaml:"local"`
	S3      S3Config    `mapstructure:"s3" yaml:"s3"`

	// UploadBytesPerSecLimit caps upload throughput per Provider instance.
	// Zero disables throttling.
	UploadBytesPerSecLimit float64 `mapstructure:"upload_bytes_per_sec_limit" yaml:"upload_bytes_per_sec_limit"`
}

// LocalConfig configures the local-filesystem backend.
type LocalConfig struct {
	RootDir string `mapstructure:"root_dir" validate:"required_if=Backend local" yaml:"root_dir"`
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	BucketName string `mapstructure:"bucket_name" validate:"required_if=Backend s3" yaml:"bucket_name"`
	Region     string `mapstructure:"region" yaml:"region"`
	AccessKey  string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey  string `mapstructure:"secret_key" yaml:"secret_key"`
}

// AuthConfig configures both the external bearer-session verifier and the
// MultipartCoordinator's own upload-token signer.
type AuthConfig struct {
	// JWTSecret signs both the session bearer token and the multipart
	// upload token. Must be at least 32 bytes (see multipart.NewSigner).
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=32" yaml:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"required,gt=0" yaml:"token_ttl"`
}

// QuotaConfig configures the default tier new users are assigned.
type QuotaConfig struct {
	DefaultTierName       string `mapstructure:"default_tier_name" validate:"required" yaml:"default_tier_name"`
	DefaultTierLimitBytes int64  `mapstructure:"default_tier_limit_bytes" validate:"required,gt=0" yaml:"default_tier_limit_bytes"`
}

// MultipartConfig holds the chunked-upload settings. cmd/vaultdrived reads
// only SweepInterval; MaxChunkSize and SessionTTL are loaded and validated
// but not passed on, and the coordinator applies its own fixed chunk-size
// and token-lifetime constants.
type MultipartConfig struct {
	MaxChunkSize    int64         `mapstructure:"max_chunk_size" validate:"required,gt=0" yaml:"max_chunk_size"`
	SessionTTL      time.Duration `mapstructure:"session_ttl" validate:"required,gt=0" yaml:"session_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" validate:"required,gt=0" yaml:"sweep_interval"`
}

// LoggingConfig holds log level and format settings, matching dittofs's
// shape. cmd/vaultdrived does not read them: it always logs JSON to stdout
// at slog's default level.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// Load reads configuration from environment variables (prefix
// VAULTDRIVE_) and, if configPath is non-empty, a YAML file, applies
// defaults for anything unset, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// applyViperDefaults seeds every key with a sane default before the
// environment and config file are layered on top.
func applyViperDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vaultdrive.db")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.root_dir", "./data")
	v.SetDefault("storage.upload_bytes_per_sec_limit", 0)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.bucket_name", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "vaultdrive")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("quota.default_tier_name", "free")
	v.SetDefault("quota.default_tier_limit_bytes", 5*1024*1024*1024)

	v.SetDefault("multipart.max_chunk_size", 32*1024*1024)
	v.SetDefault("multipart.session_ttl", 24*time.Hour)
	v.SetDefault("multipart.sweep_interval", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("sync_events_enabled", true)
}

// Sample builds a Config populated with nothing but defaults, for
// `vaultdrived init` to dump as a starting-point file. Unlike Load, it
// skips validation the way dittofs's GetDefaultConfig does: required
// fields like AuthConfig.JWTSecret have no sane default, so the sample
// carries an obvious placeholder for the operator to replace.
func Sample() (*Config, error) {
	v := viper.New()
	applyViperDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling sample config: %w", err)
	}
	cfg.Auth.JWTSecret = "replace-with-a-real-secret-at-least-32-bytes-long"
	return &cfg, nil
}

// SaveSample writes cfg to path as YAML, using cfg's own yaml tags, the
// way marmos91-dittofs's pkg/config.SaveConfig renders an editable
// starting-point file for `dittofs init`. Config files commonly carry
// secrets (JWTSecret, S3 credentials), so the file is written
// owner-read-write only.
func SaveSample(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
