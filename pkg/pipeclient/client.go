package pipeclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pipemux/pipemux/internal/metrics"
)

// Client owns one authenticated SSH connection to the broker and spawns
// channels over it. The connection is established lazily on the first
// channel request; concurrent first requests share a single connection
// attempt.
type Client struct {
	config *Config
	logger *slog.Logger
	dial   dialFunc

	// flight serializes the lazy open so racing channel requests never
	// start a second connection attempt.
	flight singleflight.Group

	mu     sync.RWMutex
	conn   remoteConn
	closed bool
	cancel context.CancelFunc // stops the keepalive goroutine
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new pipe client with the given configuration.
// No connection is made until Open or the first channel request.
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		config: config,
		logger: slog.Default(),
		dial:   dialSSH,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Open establishes the SSH connection if it is not already established.
// Concurrent callers share one in-flight connection attempt and all
// receive its result. Open is called implicitly by Pipe, Pub, and Sub.
func (c *Client) Open(ctx context.Context) error {
	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrSessionClosed
	}
	if conn != nil {
		return nil
	}

	_, err, _ := c.flight.Do("open", func() (any, error) {
		return nil, c.connect(ctx)
	})
	return err
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}
	if c.conn != nil {
		return nil
	}

	metrics.ConnectAttempts.Inc()
	c.logger.Debug("connecting to broker",
		slog.String("host", c.config.Host),
		slog.Int("port", c.config.Port),
		slog.String("user", c.config.User),
	)

	dialCtx, dialCancel := context.WithTimeout(ctx, c.config.GetTimeout())
	defer dialCancel()

	conn, err := c.dial(dialCtx, c.config, c.logger)
	if err != nil {
		metrics.ConnectErrors.Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrConnectionTimeout
		} else if isAuthError(err) {
			err = fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return &ConnectionError{Host: c.config.Address(), Err: err}
	}
	c.conn = conn

	var keepaliveCtx context.Context
	keepaliveCtx, c.cancel = context.WithCancel(context.Background())
	if interval := c.config.GetKeepaliveInterval(); interval > 0 {
		go c.keepalive(keepaliveCtx, interval)
	}

	c.logger.Info("broker connection established",
		slog.String("host", c.config.Host),
		slog.Int("port", c.config.Port),
	)

	return nil
}

// Close tears down the session. It does not wait for channels created
// from this client: their in-flight operations fail, and any later
// operation reports ErrSessionClosed. Safe to call multiple times, and a
// no-op if the connection was never established.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	c.logger.Debug("broker connection closed",
		slog.String("host", c.config.Host),
	)

	return err
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Pipe opens a bidirectional channel on topic, establishing the
// connection first if needed. An empty topic asks the broker for a
// random private topic.
func (c *Client) Pipe(ctx context.Context, topic string, opts PipeOptions) (*Pipe, error) {
	ch, err := c.spawn(ctx, pipeArgs(topic, opts), topic)
	if err != nil {
		return nil, err
	}
	return newPipe(ch), nil
}

// Pub opens a write-only channel on topic, establishing the connection
// first if needed.
func (c *Client) Pub(ctx context.Context, topic string, opts PubOptions) (*Pub, error) {
	ch, err := c.spawn(ctx, pubArgs(topic, opts), topic)
	if err != nil {
		return nil, err
	}
	return newPub(ch), nil
}

// Sub opens a read-only channel on topic, establishing the connection
// first if needed. The topic is required by the broker and is sent even
// when empty.
func (c *Client) Sub(ctx context.Context, topic string, opts SubOptions) (*Sub, error) {
	ch, err := c.spawn(ctx, subArgs(topic, opts), topic)
	if err != nil {
		return nil, err
	}
	return newSub(ch), nil
}

// spawn runs one remote command and binds its stdio into a channel.
func (c *Client) spawn(ctx context.Context, args []string, topic string) (*channel, error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()

	// Open succeeded but the client may have been closed since.
	if closed || conn == nil {
		return nil, ErrSessionClosed
	}

	command := args[0]
	line := shellJoin(args)
	c.logger.Debug("spawning remote command",
		slog.String("command_line", line),
	)

	proc, err := conn.StartProcess(line)
	if err != nil {
		if c.isClosed() {
			return nil, fmt.Errorf("%s channel: spawn: %w", command, ErrSessionClosed)
		}
		return nil, &StreamError{Op: "spawn", Command: command, Err: err}
	}

	metrics.ChannelsOpened.WithLabelValues(command).Inc()

	return newChannel(c, proc, command, topic, c.logger), nil
}

// keepalive sends periodic keepalive messages to maintain the connection.
func (c *Client) keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			if err := conn.SendKeepalive(); err != nil {
				c.logger.Warn("keepalive failed",
					slog.String("host", c.config.Host),
					slog.String("error", err.Error()),
				)
				// Don't close here - let the next operation discover the failure
			}
		}
	}
}
