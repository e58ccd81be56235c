package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pipemux/pipemux/pkg/pipeclient"
)

// Defaults for CLI settings.
const (
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultServerPort  = 9090
	DefaultPubInterval = time.Second
)

// EnvPrefix is the prefix for all pipemux environment variables.
const EnvPrefix = "PIPEMUX_"

// Channel kinds.
const (
	KindPipe = "pipe"
	KindPub  = "pub"
	KindSub  = "sub"
)

// ChannelConfig is one channel loop the CLI runs.
type ChannelConfig struct {
	Kind  string
	Topic string

	Public      bool
	Replay      bool
	Keep        bool
	Empty       bool
	NonBlocking bool
	Timeout     string

	Interval time.Duration
	Message  string
}

// Config is the runtime CLI configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	SSH *pipeclient.Config

	ServerEnabled bool
	ServerPort    int

	Channels []ChannelConfig
}

// Load builds the runtime configuration. A config file (if path is
// non-empty) provides the base; environment variables override SSH and
// logging settings on top of it. SSH secrets support the Docker secrets
// _FILE pattern.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		ServerPort: DefaultServerPort,
		SSH:        &pipeclient.Config{Port: pipeclient.DefaultPort},
	}

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyFile(fileCfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyFile(f *FileConfig) error {
	if f.Logging != nil {
		if f.Logging.Level != "" {
			c.LogLevel = f.Logging.Level
		}
		if f.Logging.Format != "" {
			c.LogFormat = f.Logging.Format
		}
	}

	if f.SSH != nil {
		c.SSH.Host = f.SSH.Host
		if f.SSH.Port != 0 {
			c.SSH.Port = f.SSH.Port
		}
		c.SSH.User = f.SSH.User
		c.SSH.KeyFile = f.SSH.KeyFile
		c.SSH.KeyPassphrase = f.SSH.KeyPassphrase
		c.SSH.Password = f.SSH.Password

		if f.SSH.Timeout != "" {
			d, err := time.ParseDuration(f.SSH.Timeout)
			if err != nil {
				return fmt.Errorf("ssh: invalid timeout %q: %w", f.SSH.Timeout, err)
			}
			c.SSH.Timeout = d
		}
		if f.SSH.KeepaliveInterval != "" {
			if strings.EqualFold(f.SSH.KeepaliveInterval, "off") {
				c.SSH.KeepaliveInterval = -1
			} else {
				d, err := time.ParseDuration(f.SSH.KeepaliveInterval)
				if err != nil {
					return fmt.Errorf("ssh: invalid keepalive_interval %q: %w", f.SSH.KeepaliveInterval, err)
				}
				c.SSH.KeepaliveInterval = d
			}
		}
		if f.SSH.KnownHostsFile != "" {
			c.SSH.HostKeyCallback = f.SSH.KnownHostsFile
			c.SSH.StrictHostKeyChecking = true
		}
	}

	if f.Server != nil {
		c.ServerEnabled = f.Server.Enabled
		if f.Server.Port != 0 {
			c.ServerPort = f.Server.Port
		}
	}

	for _, fc := range f.Channels {
		ch := ChannelConfig{
			Kind:        strings.ToLower(fc.Kind),
			Topic:       fc.Topic,
			Public:      fc.Public,
			Replay:      fc.Replay,
			Keep:        fc.Keep,
			Empty:       fc.Empty,
			NonBlocking: fc.NonBlocking,
			Timeout:     fc.Timeout,
			Message:     fc.Message,
			Interval:    DefaultPubInterval,
		}
		if fc.Interval != "" {
			d, err := time.ParseDuration(fc.Interval)
			if err != nil {
				return fmt.Errorf("channel %s/%s: invalid interval %q: %w", fc.Kind, fc.Topic, fc.Interval, err)
			}
			ch.Interval = d
		}
		c.Channels = append(c.Channels, ch)
	}

	return nil
}

// applyEnv overrides settings from PIPEMUX_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	sshPrefix := EnvPrefix + "SSH_"
	if v := os.Getenv(sshPrefix + "HOST"); v != "" {
		c.SSH.Host = v
	}
	if v := os.Getenv(sshPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT value %q: %w", sshPrefix, v, err)
		}
		c.SSH.Port = port
	}
	if v := os.Getenv(sshPrefix + "USER"); v != "" {
		c.SSH.User = v
	}
	if v := envOrFile(sshPrefix + "KEY_FILE"); v != "" {
		c.SSH.KeyFile = v
	}
	if v := envOrFile(sshPrefix + "KEY_DATA"); v != "" {
		c.SSH.KeyData = v
	}
	if v := envOrFile(sshPrefix + "KEY_PASSPHRASE"); v != "" {
		c.SSH.KeyPassphrase = v
	}
	if v := envOrFile(sshPrefix + "PASSWORD"); v != "" {
		c.SSH.Password = v
	}

	return nil
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.SSH.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format %q (want json or text)", c.LogFormat))
	}

	for i, ch := range c.Channels {
		switch ch.Kind {
		case KindPipe, KindPub, KindSub:
		default:
			errs = append(errs, fmt.Sprintf("channel %d: invalid kind %q (want pipe, pub, or sub)", i, ch.Kind))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// envOrFile retrieves a value from either a direct environment variable
// or a file path in the matching _FILE variable (Docker secrets pattern).
func envOrFile(key string) string {
	if filePath := os.Getenv(key + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return os.Getenv(key)
}
