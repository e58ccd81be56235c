package pipeclient

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// fakeProc simulates a remote process with in-memory pipes. The broker
// side of each pipe is exposed so tests can play the remote command.
type fakeProc struct {
	stdin  io.WriteCloser
	stdout io.Reader

	// remoteIn receives what the channel writes; remoteOut feeds what
	// the channel reads.
	remoteIn  *io.PipeReader
	remoteOut *io.PipeWriter

	mu         sync.Mutex
	closeCalls int
}

func newFakeProc() *fakeProc {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &fakeProc{
		stdin:     inW,
		stdout:    outR,
		remoteIn:  inR,
		remoteOut: outW,
	}
}

func (p *fakeProc) Stdin() io.WriteCloser { return p.stdin }

func (p *fakeProc) Stdout() io.Reader { return p.stdout }

func (p *fakeProc) Close() error {
	p.mu.Lock()
	p.closeCalls++
	p.mu.Unlock()
	_ = p.stdin.Close()
	_ = p.remoteOut.Close()
	return nil
}

func (p *fakeProc) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipe(t *testing.T) (*Pipe, *fakeProc) {
	t.Helper()
	proc := newFakeProc()
	return newPipe(newChannel(nil, proc, "pipe", "t", testLogger())), proc
}

func newTestSub(t *testing.T) (*Sub, *fakeProc) {
	t.Helper()
	proc := newFakeProc()
	return newSub(newChannel(nil, proc, "sub", "t", testLogger())), proc
}

func newTestPub(t *testing.T) (*Pub, *fakeProc) {
	t.Helper()
	proc := newFakeProc()
	return newPub(newChannel(nil, proc, "pub", "t", testLogger())), proc
}

func TestPipe_RoundTrip(t *testing.T) {
	pipe, proc := newTestPipe(t)
	defer pipe.Close()

	payload := []byte("PUB: 2026-08-26 \x00\xff binary ok\n")

	// Play the broker: echo whatever arrives on stdin back to stdout.
	go func() {
		buf := make([]byte, len(payload))
		if _, err := io.ReadFull(proc.remoteIn, buf); err != nil {
			return
		}
		_, _ = proc.remoteOut.Write(buf)
	}()

	if _, err := pipe.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(pipe, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("round trip changed payload: got %q, want %q", got, payload)
	}
}

func TestSub_ReadDone(t *testing.T) {
	sub, proc := newTestSub(t)
	defer sub.Close()

	if sub.ReadDone() {
		t.Fatal("ReadDone() = true before any read")
	}

	go func() {
		_, _ = proc.remoteOut.Write([]byte("x"))
		_ = proc.remoteOut.Close()
	}()

	buf := make([]byte, 32)
	n, err := sub.Read(buf)
	if err != nil || n != 1 {
		t.Fatalf("Read() = (%d, %v), want (1, nil)", n, err)
	}
	if sub.ReadDone() {
		t.Error("ReadDone() = true before a read observed end-of-stream")
	}

	n, err = sub.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("Read() at end-of-stream = (%d, %v), want (0, io.EOF)", n, err)
	}
	if !sub.ReadDone() {
		t.Error("ReadDone() = false after a read observed end-of-stream")
	}
}

func TestSub_ReadStreamError(t *testing.T) {
	sub, proc := newTestSub(t)
	defer sub.Close()

	proc.remoteOut.CloseWithError(errors.New("connection reset"))

	buf := make([]byte, 32)
	_, err := sub.Read(buf)
	if !IsStreamError(err) {
		t.Fatalf("Read() error = %v, want StreamError", err)
	}
	if sub.ReadDone() {
		t.Error("ReadDone() = true after a stream failure that was not end-of-stream")
	}
}

func TestPub_Write(t *testing.T) {
	pub, proc := newTestPub(t)
	defer pub.Close()

	payload := []byte("hello broker\n")

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len(payload))
		_, _ = io.ReadFull(proc.remoteIn, buf)
		done <- buf
	}()

	n, err := pub.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("Write() = (%d, %v), want (%d, nil)", n, err, len(payload))
	}

	if got := <-done; !bytes.Equal(got, payload) {
		t.Errorf("broker received %q, want %q", got, payload)
	}
}

func TestPub_WriteAfterClose(t *testing.T) {
	pub, _ := newTestPub(t)

	if pub.WriteDone() {
		t.Fatal("WriteDone() = true before close")
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !pub.WriteDone() {
		t.Error("WriteDone() = false after close")
	}

	_, err := pub.Write([]byte("too late"))
	if !IsStreamError(err) {
		t.Errorf("Write() after close error = %v, want StreamError", err)
	}
}

func TestPub_WriteStreamError(t *testing.T) {
	pub, proc := newTestPub(t)
	defer pub.Close()

	proc.remoteIn.CloseWithError(errors.New("remote process exited"))

	_, err := pub.Write([]byte("data"))
	if !IsStreamError(err) {
		t.Fatalf("Write() error = %v, want StreamError", err)
	}
	if !pub.WriteDone() {
		t.Error("WriteDone() = false after a write failure")
	}
}

func TestChannel_CloseIdempotent(t *testing.T) {
	sub, proc := newTestSub(t)

	if err := sub.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if got := proc.closeCount(); got != 1 {
		t.Errorf("process closed %d times, want 1", got)
	}
}

func TestPipe_CloseStopsBothEnds(t *testing.T) {
	pipe, proc := newTestPipe(t)

	if err := pipe.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !pipe.WriteDone() {
		t.Error("WriteDone() = false after close")
	}
	if got := proc.closeCount(); got != 1 {
		t.Errorf("process closed %d times, want 1", got)
	}

	if _, err := pipe.Write([]byte("x")); !IsStreamError(err) {
		t.Errorf("Write() after close error = %v, want StreamError", err)
	}
}
