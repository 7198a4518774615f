package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "btcore"
	configFileName = "config.yaml"
)

// Config holds the configuration options for the client.
type Config struct {
	PeerIDPrefix   string        `yaml:"peerIdPrefix,omitempty"`
	Port           int           `yaml:"port,omitempty"`
	DownloadDir    string        `yaml:"downloadDir,omitempty"`
	DialTimeout    time.Duration `yaml:"dialTimeout,omitempty"`
	PeerTimeout    time.Duration `yaml:"peerTimeout,omitempty"`
	TrackerTimeout time.Duration `yaml:"trackerTimeout,omitempty"`
	UDPTimeout     time.Duration `yaml:"udpTimeout,omitempty"`
	MaxRetries     int           `yaml:"maxRetries,omitempty"`
	RetryDelay     time.Duration `yaml:"retryDelay,omitempty"`
	MaxPeers       int           `yaml:"maxPeers,omitempty"`
	HistoryPath    string        `yaml:"historyPath,omitempty"`
	Debug          bool          `yaml:"debug,omitempty"`
	LogPath        string        `yaml:"logPath,omitempty"`
}

// Path returns the default configuration file location.
func Path() string {
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}

// GetConfig reads the configuration file from the XDG config directory. If
// the file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	return Load(Path())
}

// Load reads the configuration at path, filling unset fields from the
// defaults. A missing or empty file yields the defaults.
func Load(path string) (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	merged := &Config{
		PeerIDPrefix:   zeroOr(cfg.PeerIDPrefix, defaults.PeerIDPrefix),
		Port:           zeroOr(cfg.Port, defaults.Port),
		DownloadDir:    zeroOr(cfg.DownloadDir, defaults.DownloadDir),
		DialTimeout:    zeroOr(cfg.DialTimeout, defaults.DialTimeout),
		PeerTimeout:    zeroOr(cfg.PeerTimeout, defaults.PeerTimeout),
		TrackerTimeout: zeroOr(cfg.TrackerTimeout, defaults.TrackerTimeout),
		UDPTimeout:     zeroOr(cfg.UDPTimeout, defaults.UDPTimeout),
		MaxRetries:     zeroOr(cfg.MaxRetries, defaults.MaxRetries),
		RetryDelay:     zeroOr(cfg.RetryDelay, defaults.RetryDelay),
		MaxPeers:       zeroOr(cfg.MaxPeers, defaults.MaxPeers),
		HistoryPath:    zeroOr(cfg.HistoryPath, defaults.HistoryPath),
		Debug:          zeroOr(cfg.Debug, defaults.Debug),
		LogPath:        zeroOr(cfg.LogPath, defaults.LogPath),
	}

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return merged, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	if len(c.PeerIDPrefix) > 20 {
		return fmt.Errorf("peerIdPrefix %q longer than 20 bytes", c.PeerIDPrefix)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("maxRetries must be at least 1, got %d", c.MaxRetries)
	}

	if c.MaxPeers < 1 {
		return fmt.Errorf("maxPeers must be at least 1, got %d", c.MaxPeers)
	}

	return nil
}

func DefaultConfig() Config {
	return Config{
		PeerIDPrefix:   peerIDPrefix,
		Port:           port,
		DownloadDir:    downloadDir,
		DialTimeout:    dialTimeout,
		PeerTimeout:    peerTimeout,
		TrackerTimeout: trackerTimeout,
		UDPTimeout:     udpTimeout,
		MaxRetries:     maxRetries,
		RetryDelay:     retryDelay,
		MaxPeers:       maxPeers,
		HistoryPath:    historyPath,
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
