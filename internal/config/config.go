// Package config resolves bridge settings from defaults, an optional YAML
// file, environment variables and command line flags, in that order of
// increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp"
)

// Environment variables consulted by Load.
const (
	EnvConfig = "CDPBRIDGE_CONFIG"
	EnvHost   = "CDPBRIDGE_HOST"
	EnvPort   = "CDPBRIDGE_PORT"
)

// Flag names registered by AddFlags.
const (
	FlagConfig       = "config"
	FlagHost         = "host"
	FlagPort         = "port"
	FlagTimeout      = "timeout"
	FlagWaitInterval = "wait-interval"
	FlagRetries      = "retries"
)

// Config holds the connection settings of a bridge.
type Config struct {
	// Host is the inspector host.
	Host string `yaml:"host"`

	// Port is the inspector port.
	Port int `yaml:"port"`

	// Timeout bounds discovery requests, the handshake and each command.
	Timeout time.Duration `yaml:"timeout"`

	// WaitInterval is the pause between connection attempts.
	WaitInterval time.Duration `yaml:"wait_interval"`

	// ConnectionRetryCount is the number of attempts after the first.
	ConnectionRetryCount int `yaml:"connection_retry_count"`
}

// Default returns the built-in settings.
func Default() *Config {
	opts := cdp.DefaultOptions()
	return &Config{
		Host:                 opts.Host,
		Port:                 opts.Port,
		Timeout:              opts.Timeout,
		WaitInterval:         opts.WaitInterval,
		ConnectionRetryCount: opts.ConnectionRetryCount,
	}
}

// Load resolves the configuration: defaults, then the file at path (or at
// $CDPBRIDGE_CONFIG when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile returns the defaults overlaid with the file at path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges the file at path into c. Unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides host and port from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if host, ok := lookup(EnvHost); ok && host != "" {
		c.Host = host
	}
	if portStr, ok := lookup(EnvPort); ok && portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, portStr, err)
		}
		c.Port = port
	}
	return nil
}

// AddFlags registers the connection flags on fs with the built-in defaults.
func AddFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String(FlagConfig, "", "Path to a YAML config file (default $"+EnvConfig+")")
	fs.String(FlagHost, def.Host, "Inspector host")
	fs.Int(FlagPort, def.Port, "Inspector port")
	fs.Duration(FlagTimeout, def.Timeout, "Timeout for discovery, handshake and each command")
	fs.Duration(FlagWaitInterval, def.WaitInterval, "Pause between connection attempts")
	fs.Int(FlagRetries, def.ConnectionRetryCount, "Connection attempts after the first")
}

// ApplyFlags overrides c with every flag the user set explicitly. Flags left
// at their default do not clobber values from the file or environment.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	if fs.Changed(FlagHost) {
		if c.Host, err = fs.GetString(FlagHost); err != nil {
			return err
		}
	}
	if fs.Changed(FlagPort) {
		if c.Port, err = fs.GetInt(FlagPort); err != nil {
			return err
		}
	}
	if fs.Changed(FlagTimeout) {
		if c.Timeout, err = fs.GetDuration(FlagTimeout); err != nil {
			return err
		}
	}
	if fs.Changed(FlagWaitInterval) {
		if c.WaitInterval, err = fs.GetDuration(FlagWaitInterval); err != nil {
			return err
		}
	}
	if fs.Changed(FlagRetries) {
		if c.ConnectionRetryCount, err = fs.GetInt(FlagRetries); err != nil {
			return err
		}
	}
	return nil
}

// FromFlags runs Load with the --config flag, then ApplyFlags and Validate.
func FromFlags(fs *pflag.FlagSet) (*Config, error) {
	path, _ := fs.GetString(FlagConfig)

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.WaitInterval < 0 {
		errs = append(errs, fmt.Errorf("wait_interval must not be negative, got %s", c.WaitInterval))
	}
	if c.ConnectionRetryCount < 0 {
		errs = append(errs, fmt.Errorf("connection_retry_count must not be negative, got %d", c.ConnectionRetryCount))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// BridgeOptions converts c into options for cdp.New.
func (c *Config) BridgeOptions(log logr.Logger) cdp.Options {
	return cdp.Options{
		Host:                 c.Host,
		Port:                 c.Port,
		Timeout:              c.Timeout,
		WaitInterval:         c.WaitInterval,
		ConnectionRetryCount: c.ConnectionRetryCount,
		Logger:               log,
	}
}
