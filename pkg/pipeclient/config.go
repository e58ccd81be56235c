package pipeclient

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default connection configuration values.
const (
	// DefaultPort is the standard SSH port.
	DefaultPort = 22

	// DefaultTimeout is the default connection timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultKeepaliveInterval is the default SSH keepalive interval.
	DefaultKeepaliveInterval = 15 * time.Second
)

// Config holds the SSH connection settings for a Client.
type Config struct {
	// Host is the broker hostname or IP address (required).
	Host string

	// Port is the SSH port (default: 22).
	Port int

	// User is the SSH username. The broker identifies the account by
	// public key, so this may be empty.
	User string

	// KeyFile is the path to the SSH private key file.
	// Either KeyFile, KeyData, or Password must be provided.
	KeyFile string

	// KeyData is the SSH private key content directly. Useful when the
	// key is provided via environment variable or Docker secret.
	// Either KeyFile, KeyData, or Password must be provided.
	KeyData string

	// KeyPassphrase is the passphrase for encrypted SSH keys (optional).
	KeyPassphrase string

	// Password is the SSH password for password authentication.
	// Key-based authentication is recommended over password.
	// Either KeyFile, KeyData, or Password must be provided.
	Password string

	// Timeout is the connection timeout (default: 30s).
	Timeout time.Duration

	// KeepaliveInterval is the interval for SSH keepalive messages
	// (default: 15s). Set to a negative value to disable keepalives.
	KeepaliveInterval time.Duration

	// HostKeyCallback controls host key verification.
	// If empty, host keys are not verified (InsecureIgnoreHostKey).
	// Supported values: "ignore" (insecure), or path to known_hosts file.
	HostKeyCallback string

	// StrictHostKeyChecking controls whether to verify host keys.
	// WARNING: disabling host key checking is insecure and should only
	// be used for testing or trusted internal networks.
	StrictHostKeyChecking bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Host == "" {
		errs = append(errs, "host is required")
	}

	// At least one authentication method required
	if c.KeyFile == "" && c.KeyData == "" && c.Password == "" {
		errs = append(errs, "at least one authentication method required (key_file, key_data, or password)")
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}

	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("pipe client config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the broker address in host:port format.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// GetKeepaliveInterval returns the configured keepalive interval, the
// default when unset, or 0 when keepalives are disabled.
func (c *Config) GetKeepaliveInterval() time.Duration {
	if c.KeepaliveInterval < 0 {
		return 0
	}
	if c.KeepaliveInterval == 0 {
		return DefaultKeepaliveInterval
	}
	return c.KeepaliveInterval
}

// LoadConfig loads connection configuration from environment variables.
// Environment variable pattern: {prefix}{setting}
//
// Supported settings:
//   - HOST: broker hostname or IP (required)
//   - PORT: SSH port (default: 22)
//   - USER: SSH username (optional)
//   - KEY_FILE: path to SSH private key file (supports _FILE suffix for Docker secrets)
//   - KEY_DATA: SSH private key content directly (supports _FILE suffix for Docker secrets)
//   - KEY_PASSPHRASE: passphrase for encrypted keys (supports _FILE suffix for Docker secrets)
//   - PASSWORD: SSH password (supports _FILE suffix for Docker secrets)
//   - TIMEOUT: connection timeout in seconds (default: 30)
//   - KEEPALIVE_INTERVAL: keepalive interval in seconds (default: 15, -1 to disable)
//   - HOST_KEY_CALLBACK: "ignore" or path to known_hosts file
//   - STRICT_HOST_KEY_CHECKING: "true" or "false" (default: false)
func LoadConfig(prefix string) (*Config, error) {
	config := &Config{
		Host:                  os.Getenv(prefix + "HOST"),
		User:                  os.Getenv(prefix + "USER"),
		KeyFile:               getEnvOrFile(prefix+"KEY_FILE", prefix+"KEY_FILE_FILE"),
		KeyData:               getEnvOrFile(prefix+"KEY_DATA", prefix+"KEY_DATA_FILE"),
		KeyPassphrase:         getEnvOrFile(prefix+"KEY_PASSPHRASE", prefix+"KEY_PASSPHRASE_FILE"),
		Password:              getEnvOrFile(prefix+"PASSWORD", prefix+"PASSWORD_FILE"),
		HostKeyCallback:       os.Getenv(prefix + "HOST_KEY_CALLBACK"),
		StrictHostKeyChecking: false,
		Port:                  DefaultPort,
	}

	if portStr := os.Getenv(prefix + "PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT value %q: %w", portStr, err)
		}
		config.Port = port
	}

	if timeoutStr := os.Getenv(prefix + "TIMEOUT"); timeoutStr != "" {
		timeout, err := strconv.Atoi(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEOUT value %q: %w", timeoutStr, err)
		}
		config.Timeout = time.Duration(timeout) * time.Second
	}

	if keepaliveStr := os.Getenv(prefix + "KEEPALIVE_INTERVAL"); keepaliveStr != "" {
		keepalive, err := strconv.Atoi(keepaliveStr)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_INTERVAL value %q: %w", keepaliveStr, err)
		}
		config.KeepaliveInterval = time.Duration(keepalive) * time.Second
	}

	if strictStr := os.Getenv(prefix + "STRICT_HOST_KEY_CHECKING"); strictStr != "" {
		config.StrictHostKeyChecking = strings.EqualFold(strictStr, "true")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or a file path specified by the file key (Docker secrets pattern).
//
// If both are set, the file takes precedence.
// The file contents are trimmed of leading/trailing whitespace.
func getEnvOrFile(directKey, fileKey string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
		// If file read fails, fall through to direct value
	}

	return os.Getenv(directKey)
}
