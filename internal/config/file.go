// Package config handles loading and validation of the pipemux CLI configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the configuration file structure. Both YAML and
// TOML files are supported; the file extension picks the parser.
type FileConfig struct {
	// Logging configuration
	Logging *FileLoggingConfig `yaml:"logging,omitempty" toml:"logging"`

	// SSH connection to the broker
	SSH *FileSSHConfig `yaml:"ssh,omitempty" toml:"ssh"`

	// Health and metrics server
	Server *FileServerConfig `yaml:"server,omitempty" toml:"server"`

	// Channel loops to run
	Channels []FileChannelConfig `yaml:"channels,omitempty" toml:"channels"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileSSHConfig holds broker connection settings.
type FileSSHConfig struct {
	Host              string `yaml:"host" toml:"host"`
	Port              int    `yaml:"port,omitempty" toml:"port"`
	User              string `yaml:"user,omitempty" toml:"user"`
	KeyFile           string `yaml:"key_file,omitempty" toml:"key_file"`
	KeyPassphrase     string `yaml:"key_passphrase,omitempty" toml:"key_passphrase"`
	Password          string `yaml:"password,omitempty" toml:"password"`
	Timeout           string `yaml:"timeout,omitempty" toml:"timeout"`                       // Go duration format
	KeepaliveInterval string `yaml:"keepalive_interval,omitempty" toml:"keepalive_interval"` // Go duration format, "off" to disable
	KnownHostsFile    string `yaml:"known_hosts_file,omitempty" toml:"known_hosts_file"`     // enables strict host key checking
}

// FileServerConfig holds health/metrics server settings.
type FileServerConfig struct {
	Enabled bool `yaml:"enabled,omitempty" toml:"enabled"`
	Port    int  `yaml:"port,omitempty" toml:"port"`
}

// FileChannelConfig holds one channel loop definition.
type FileChannelConfig struct {
	Kind  string `yaml:"kind" toml:"kind"` // pipe, pub, sub
	Topic string `yaml:"topic,omitempty" toml:"topic"`

	Public      bool   `yaml:"public,omitempty" toml:"public"`
	Replay      bool   `yaml:"replay,omitempty" toml:"replay"`             // pipe only
	Keep        bool   `yaml:"keep,omitempty" toml:"keep"`                 // sub only
	Empty       bool   `yaml:"empty,omitempty" toml:"empty"`               // pub only
	NonBlocking bool   `yaml:"non_blocking,omitempty" toml:"non_blocking"` // pub only
	Timeout     string `yaml:"timeout,omitempty" toml:"timeout"`           // pub only, passed to the broker

	// Interval between published messages for pub loops (Go duration
	// format, default 1s).
	Interval string `yaml:"interval,omitempty" toml:"interval"`

	// Message is the payload prefix for pub loops.
	Message string `yaml:"message,omitempty" toml:"message"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in all string
// fields of the config structure.
func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if c.SSH != nil {
		c.SSH.Host = InterpolateEnvVars(c.SSH.Host)
		c.SSH.User = InterpolateEnvVars(c.SSH.User)
		c.SSH.KeyFile = InterpolateEnvVars(c.SSH.KeyFile)
		c.SSH.KeyPassphrase = InterpolateEnvVars(c.SSH.KeyPassphrase)
		c.SSH.Password = InterpolateEnvVars(c.SSH.Password)
		c.SSH.Timeout = InterpolateEnvVars(c.SSH.Timeout)
		c.SSH.KeepaliveInterval = InterpolateEnvVars(c.SSH.KeepaliveInterval)
		c.SSH.KnownHostsFile = InterpolateEnvVars(c.SSH.KnownHostsFile)
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		ch.Kind = InterpolateEnvVars(ch.Kind)
		ch.Topic = InterpolateEnvVars(ch.Topic)
		ch.Timeout = InterpolateEnvVars(ch.Timeout)
		ch.Interval = InterpolateEnvVars(ch.Interval)
		ch.Message = InterpolateEnvVars(ch.Message)
	}
}

// LoadFile reads and parses a configuration file. YAML (.yaml, .yml) and
// TOML (.toml) are supported. Environment variables in ${VAR} format are
// interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (want .yaml, .yml, or .toml)", ext)
	}

	cfg.interpolateEnvVars()

	return &cfg, nil
}
