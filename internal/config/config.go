package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. SMARTCART_CLIENT_SERVER.
const EnvPrefix = "SMARTCART"

// Config represents the global ~/.smartcart/config.toml.
type Config struct {
	DefaultProfile string       `toml:"default_profile" envconfig:"PROFILE"`
	Client         ClientConfig `toml:"client" envconfig:"CLIENT"`
	Server         ServerConfig `toml:"server" envconfig:"SERVER"`
}

// ClientConfig is read by the smartcart CLI.
type ClientConfig struct {
	// Server is the backend gRPC address.
	Server       string        `toml:"server" envconfig:"SERVER_ADDR"`
	Timeout      time.Duration `toml:"timeout" envconfig:"TIMEOUT"`
	SyncInterval time.Duration `toml:"sync_interval" envconfig:"SYNC_INTERVAL"`
	ConnectWait  time.Duration `toml:"connect_wait" envconfig:"CONNECT_WAIT"`
	MetricsFile  string        `toml:"metrics_file" envconfig:"METRICS_FILE"`
	LogToStderr  bool          `toml:"log_to_stderr" envconfig:"LOG_TO_STDERR"`
}

// ServerConfig is read by smartcartd.
type ServerConfig struct {
	Listen      string        `toml:"listen" envconfig:"LISTEN"`
	HTTPListen  string        `toml:"http_listen" envconfig:"HTTP_LISTEN"`
	DatabaseURL string        `toml:"database_url" envconfig:"DATABASE_URL"`
	JWTSecret   string        `toml:"jwt_secret" envconfig:"JWT_SECRET"`
	TokenTTL    time.Duration `toml:"token_ttl" envconfig:"TOKEN_TTL"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Server:       "localhost:7420",
			Timeout:      10 * time.Second,
			SyncInterval: 30 * time.Second,
			ConnectWait:  2 * time.Second,
		},
		Server: ServerConfig{
			Listen:     ":7420",
			HTTPListen: ":7421",
			TokenTTL:   30 * 24 * time.Hour,
		},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve layers the defaults, the TOML file at path (if present), an
// optional .env file and SMARTCART_* variables, in that order.
func Resolve(path, envFile string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the server settings smartcartd cannot run without.
func (s ServerConfig) Validate() error {
	switch {
	case s.DatabaseURL == "":
		return errors.New("server.database_url is required")
	case len(s.JWTSecret) < 32:
		return errors.New("server.jwt_secret must be at least 32 bytes")
	case s.TokenTTL <= 0:
		return errors.New("server.token_ttl must be positive")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
