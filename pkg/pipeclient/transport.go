package pipeclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// remoteConn is the subset of an established SSH connection the client
// uses. Abstracted so tests can substitute an in-memory transport.
type remoteConn interface {
	// StartProcess runs command on the remote host and returns the
	// running process with its stdio attached.
	StartProcess(command string) (remoteProc, error)

	// SendKeepalive sends a keepalive message over the connection.
	SendKeepalive() error

	Close() error
}

// dialFunc establishes a remoteConn. Production code uses dialSSH; tests
// inject a fake to count and observe connection attempts.
type dialFunc func(ctx context.Context, config *Config, logger *slog.Logger) (remoteConn, error)

// dialSSH dials the broker and performs the SSH handshake.
func dialSSH(ctx context.Context, config *Config, logger *slog.Logger) (remoteConn, error) {
	sshConfig, err := buildSSHConfig(config, logger)
	if err != nil {
		return nil, fmt.Errorf("building SSH config: %w", err)
	}

	dialer := &net.Dialer{
		Timeout: config.GetTimeout(),
	}

	netConn, err := dialer.DialContext(ctx, "tcp", config.Address())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", config.Address(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, config.Address(), sshConfig)
	if err != nil {
		_ = netConn.Close() // Best effort cleanup
		return nil, fmt.Errorf("SSH handshake failed: %w", err)
	}

	return &sshClientConn{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// buildSSHConfig creates the ssh.ClientConfig from our Config.
func buildSSHConfig(config *Config, logger *slog.Logger) (*ssh.ClientConfig, error) {
	authMethods, err := buildAuthMethods(config, logger)
	if err != nil {
		return nil, fmt.Errorf("building auth methods: %w", err)
	}

	hostKeyCallback, err := buildHostKeyCallback(config, logger)
	if err != nil {
		return nil, fmt.Errorf("building host key callback: %w", err)
	}

	return &ssh.ClientConfig{
		User:            config.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.GetTimeout(),
	}, nil
}

// buildAuthMethods creates authentication methods from the config.
func buildAuthMethods(config *Config, logger *slog.Logger) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	// Try key-based authentication first (preferred)
	if config.KeyFile != "" {
		keyData, err := os.ReadFile(config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", config.KeyFile, err)
		}

		signer, err := parsePrivateKey(keyData, config.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("parsing key from file: %w", err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
		logger.Debug("added key file authentication",
			slog.String("key_file", config.KeyFile),
		)
	}

	// Try key data (inline key)
	if config.KeyData != "" {
		signer, err := parsePrivateKey([]byte(config.KeyData), config.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("parsing key data: %w", err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
		logger.Debug("added key data authentication")
	}

	// Fall back to password authentication
	if config.Password != "" {
		methods = append(methods, ssh.Password(config.Password))
		logger.Debug("added password authentication")
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication methods configured")
	}

	return methods, nil
}

// parsePrivateKey parses a private key, handling encrypted keys if a passphrase is provided.
func parsePrivateKey(keyData []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(keyData)
}

// buildHostKeyCallback creates the host key callback based on config.
func buildHostKeyCallback(config *Config, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if config.StrictHostKeyChecking {
		if config.HostKeyCallback == "" {
			return nil, errors.New("strict host key checking enabled but no known_hosts file configured - set HostKeyCallback to a known_hosts file path")
		}
		if config.HostKeyCallback == "ignore" {
			return nil, errors.New("strict host key checking enabled but HostKeyCallback is set to 'ignore' - these settings conflict")
		}
		return knownhosts.New(config.HostKeyCallback)
	}

	// Strict checking disabled - use insecure mode
	logger.Warn("host key verification disabled - this is insecure",
		slog.String("host", config.Host),
	)
	return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // User explicitly requested skip
}

// isAuthError checks if an error is an authentication-related error.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "publickey") ||
		strings.Contains(errStr, "password")
}

// sshClientConn adapts *ssh.Client to remoteConn.
type sshClientConn struct {
	client *ssh.Client
}

func (c *sshClientConn) StartProcess(command string) (remoteProc, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("creating SSH session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}

	if err := session.Start(command); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("starting remote command: %w", err)
	}

	return &sshProc{session: session, stdin: stdin, stdout: stdout}, nil
}

func (c *sshClientConn) SendKeepalive() error {
	_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
	return err
}

func (c *sshClientConn) Close() error {
	return c.client.Close()
}

// sshProc is one remote command running in an SSH session. Closing it
// closes the session, which tears down both stream ends.
type sshProc struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (p *sshProc) Stdin() io.WriteCloser { return p.stdin }

func (p *sshProc) Stdout() io.Reader { return p.stdout }

func (p *sshProc) Close() error { return p.session.Close() }
