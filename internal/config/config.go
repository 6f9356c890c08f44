// Package config holds the client configuration: where the AmigoCloud server lives,
// the API token, websocket settings and upload tuning. Configuration files are TOML
// (".toml") or YAML (anything else) and may be overridden from the environment or a
// .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the public AmigoCloud server.
	DefaultBaseURL = "https://www.amigocloud.com"
	// DefaultChunkSize is the size of each chunk of a chunked upload.
	DefaultChunkSize int64 = 100000
	// DefaultSimpleUploadLimit is the size from which uploads switch to chunked mode.
	DefaultSimpleUploadLimit int64 = 8000000
	// DefaultConfigFile is the default name of the config file.
	DefaultConfigFile = "config.yaml"
)

// Environment variables consulted by ApplyEnvironment.
const (
	EnvToken       = "AMIGOCLOUD_TOKEN"
	EnvLegacyToken = "AMIGOCLOUDTOKEN"
	EnvBaseURL     = "AMIGOCLOUD_BASE_URL"
	EnvLogLevel    = "AMIGOCLOUD_LOG_LEVEL"
)

// Config is the client configuration.
type Config struct {
	// FormatVersion is the version of the configuration file format
	FormatVersion string `toml:"format_version" json:"format_version" yaml:"format_version"`
	// BaseURL is the server root; the API lives under BaseURL + "/api/v1"
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url" validate:"required,url"`
	// Token is the API token, see https://www.amigocloud.com/accounts/tokens
	Token string `toml:"token" json:"token" yaml:"token,omitempty"`
	// UseWebsockets enables event subscription
	UseWebsockets bool `toml:"use_websockets" json:"use_websockets" yaml:"use_websockets"`
	// WebsocketPort overrides the port of the event socket, 0 keeps the base URL port
	WebsocketPort int `toml:"websocket_port" json:"websocket_port" yaml:"websocket_port,omitempty" validate:"gte=0,lte=65535"`
	// ChunkSize is the chunk size of chunked uploads in bytes
	ChunkSize int64 `toml:"chunk_size" json:"chunk_size" yaml:"chunk_size" validate:"gt=0"`
	// SimpleUploadLimit is the size in bytes from which uploads are chunked
	SimpleUploadLimit int64 `toml:"simple_upload_limit" json:"simple_upload_limit" yaml:"simple_upload_limit" validate:"gt=0"`
	// Timeout is the per-request timeout, e.g. "30s"; empty means none
	Timeout string `toml:"timeout" json:"timeout" yaml:"timeout,omitempty"`
	// InsecureSkipVerify disables TLS certificate validation
	InsecureSkipVerify bool `toml:"insecure_skip_verify" json:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty"`
	// LogLevel is one of debug, info, warn, error, disabled
	LogLevel string `toml:"log_level" json:"log_level" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error disabled"`
}

// Default returns a new configuration with default values. Every call returns a
// fresh record.
func Default() *Config {
	return &Config{
		FormatVersion:     FormatVersion,
		BaseURL:           DefaultBaseURL,
		UseWebsockets:     true,
		ChunkSize:         DefaultChunkSize,
		SimpleUploadLimit: DefaultSimpleUploadLimit,
		LogLevel:          "info",
	}
}

// GetDefaultConfigPath returns the default path for the config file.
// It uses the OS-specific config directory (e.g., ~/.config/amigocloud on Linux).
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "amigocloud", DefaultConfigFile), nil
}

// Load reads the configuration from file, fills missing values with defaults and
// validates the result. Environment overrides are not applied.
func Load(file string) (*Config, error) {
	if file == "" {
		return nil, errors.New("config filename is required")
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(file), ".toml") {
		if _, err := toml.Decode(string(content), cfg); err != nil {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnvironment loads envFile (if it exists, ignored otherwise; empty means ".env"
// in the working directory) and overrides the token, base URL and log level from the
// environment. Variables already set in the process environment win over the file.
func (cfg *Config) ApplyEnvironment(envFile string) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	} else if v := os.Getenv(EnvLegacyToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}

// ApplyDefaults fills unset values with defaults and normalizes the base URL.
func (cfg *Config) ApplyDefaults() {
	if cfg.FormatVersion == "" {
		cfg.FormatVersion = FormatVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.SimpleUploadLimit == 0 {
		cfg.SimpleUploadLimit = DefaultSimpleUploadLimit
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration values.
func (cfg *Config) Validate() error {
	if !IsFormatCompatible(cfg.FormatVersion) {
		return fmt.Errorf("unsupported config file format version: %q", cfg.FormatVersion)
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q validation (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return err
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return errors.New("base_url must start with http:// or https://")
	}
	if _, err := cfg.GetTimeout(); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

// GetTimeout returns the per-request timeout, 0 if unset.
func (cfg *Config) GetTimeout() (time.Duration, error) {
	if cfg.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", cfg.Timeout)
	}
	return d, nil
}

// Write saves the configuration as YAML to file, creating the directory if needed.
func (cfg *Config) Write(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("unable to generate configuration: %w", err)
	}

	if err := os.WriteFile(file, out, 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

// NormalizeBaseURL removes trailing slashes and adds https:// when no scheme is given.
func NormalizeBaseURL(server string) string {
	if server == "" {
		return server
	}
	server = strings.TrimRight(server, "/")
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "https://" + server
	}
	return server
}
