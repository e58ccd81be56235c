package pipeclient

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pipemux/pipemux/internal/metrics"
)

// ReadChannel is the read capability of a channel: Sub and Pipe.
//
// Read follows the io.Reader contract: it blocks until at least one byte
// is available, end-of-stream, or error, and returns io.EOF once the
// remote command's output is exhausted. Any other failure is reported as
// a StreamError (or ErrSessionClosed after client teardown).
type ReadChannel interface {
	io.Reader

	// ReadDone reports whether end-of-stream has been observed by a
	// Read. It never returns true before the first Read that hits EOF.
	ReadDone() bool

	Close() error
}

// WriteChannel is the write capability of a channel: Pub and Pipe.
//
// Write blocks until the data has been handed to the transport, so it has
// left local buffers when the call returns; it does not mean the broker
// has processed it. Writes after the input stream starts closing fail
// with a StreamError.
type WriteChannel interface {
	io.Writer

	// WriteDone reports whether the input stream is closing and no
	// further writes are accepted.
	WriteDone() bool

	Close() error
}

// remoteProc is one running remote command with its attached stdio
// streams. The SSH transport implements it; tests substitute in-memory
// pipes.
type remoteProc interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Close() error
}

// channel owns one remote process. Closing it closes the process and
// both stream ends; the process handle is never shared between channels.
type channel struct {
	command string
	topic   string
	client  *Client
	proc    remoteProc
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newChannel(client *Client, proc remoteProc, command, topic string, logger *slog.Logger) *channel {
	return &channel{
		command: command,
		topic:   topic,
		client:  client,
		proc:    proc,
		logger:  logger,
	}
}

// close tears down the remote process. Idempotent: the second and later
// calls return the first call's result without touching the process.
func (c *channel) close() error {
	c.closeOnce.Do(func() {
		err := c.proc.Close()
		// The SSH session reports io.EOF when the remote side is
		// already gone; that is a clean close, not a failure.
		if err != nil && !errors.Is(err, io.EOF) {
			c.closeErr = err
		}
		c.logger.Debug("channel closed",
			slog.String("command", c.command),
			slog.String("topic", c.topic),
		)
	})
	return c.closeErr
}

// opErr maps a raw stream failure to the typed taxonomy. Failures seen
// after the owning client was closed report the session teardown, not the
// stream symptom.
func (c *channel) opErr(op string, err error) error {
	if c.client != nil && c.client.isClosed() {
		return fmt.Errorf("%s channel: %s: %w", c.command, op, ErrSessionClosed)
	}
	metrics.ChannelErrors.WithLabelValues(c.command, op).Inc()
	return &StreamError{Op: op, Command: c.command, Err: err}
}

// readStream wraps a channel's output end and tracks end-of-stream.
type readStream struct {
	ch *channel
	r  io.Reader

	mu  sync.Mutex
	eof bool
}

func (rs *readStream) read(p []byte) (int, error) {
	n, err := rs.r.Read(p)
	if n > 0 {
		metrics.BytesRead.Add(float64(n))
	}
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		rs.mu.Lock()
		rs.eof = true
		rs.mu.Unlock()
		return n, io.EOF
	}
	return n, rs.ch.opErr("read", err)
}

func (rs *readStream) done() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.eof
}

// writeStream wraps a channel's input end and tracks the closing state.
type writeStream struct {
	ch *channel
	w  io.WriteCloser

	mu      sync.Mutex
	closing bool
}

func (ws *writeStream) write(p []byte) (int, error) {
	ws.mu.Lock()
	closing := ws.closing
	ws.mu.Unlock()
	if closing {
		return 0, ws.ch.opErr("write", errors.New("input stream is closing"))
	}

	n, err := ws.w.Write(p)
	if n > 0 {
		metrics.BytesWritten.Add(float64(n))
	}
	if err != nil {
		// A failed stream accepts no further writes.
		ws.markClosing()
		return n, ws.ch.opErr("write", err)
	}
	return n, nil
}

func (ws *writeStream) markClosing() {
	ws.mu.Lock()
	ws.closing = true
	ws.mu.Unlock()
}

func (ws *writeStream) done() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.closing
}

// Sub is a read-only channel bound to a remote sub command.
type Sub struct {
	ch *channel
	rs readStream
}

func newSub(ch *channel) *Sub {
	return &Sub{ch: ch, rs: readStream{ch: ch, r: ch.proc.Stdout()}}
}

// Topic returns the topic this channel was opened with.
func (s *Sub) Topic() string { return s.ch.topic }

func (s *Sub) Read(p []byte) (int, error) { return s.rs.read(p) }

func (s *Sub) ReadDone() bool { return s.rs.done() }

func (s *Sub) Close() error { return s.ch.close() }

// Pub is a write-only channel bound to a remote pub command.
type Pub struct {
	ch *channel
	ws writeStream
}

func newPub(ch *channel) *Pub {
	return &Pub{ch: ch, ws: writeStream{ch: ch, w: ch.proc.Stdin()}}
}

// Topic returns the topic this channel was opened with.
func (p *Pub) Topic() string { return p.ch.topic }

func (p *Pub) Write(b []byte) (int, error) { return p.ws.write(b) }

func (p *Pub) WriteDone() bool { return p.ws.done() }

func (p *Pub) Close() error {
	p.ws.markClosing()
	return p.ch.close()
}

// Pipe is a bidirectional channel bound to a remote pipe command. It
// composes the read and write capabilities over one remote process.
type Pipe struct {
	ch *channel
	rs readStream
	ws writeStream
}

func newPipe(ch *channel) *Pipe {
	return &Pipe{
		ch: ch,
		rs: readStream{ch: ch, r: ch.proc.Stdout()},
		ws: writeStream{ch: ch, w: ch.proc.Stdin()},
	}
}

// Topic returns the topic this channel was opened with.
func (p *Pipe) Topic() string { return p.ch.topic }

func (p *Pipe) Read(b []byte) (int, error) { return p.rs.read(b) }

func (p *Pipe) ReadDone() bool { return p.rs.done() }

func (p *Pipe) Write(b []byte) (int, error) { return p.ws.write(b) }

func (p *Pipe) WriteDone() bool { return p.ws.done() }

func (p *Pipe) Close() error {
	p.ws.markClosing()
	return p.ch.close()
}

var (
	_ ReadChannel  = (*Sub)(nil)
	_ WriteChannel = (*Pub)(nil)
	_ ReadChannel  = (*Pipe)(nil)
	_ WriteChannel = (*Pipe)(nil)
)
