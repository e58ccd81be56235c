// Package pipeclient is a client for pipe-style pub/sub brokers reached
// over SSH, such as pipe.pico.sh.
//
// Each logical channel is a remote command (pipe, pub, or sub) spawned on
// the broker host; the command's stdin and stdout become the channel's
// write and read ends. All channels created from one [Client] share a
// single authenticated SSH connection, which is established lazily on the
// first channel request.
//
// # Overview
//
// The package provides four main types:
//
//   - [Client]: owns the SSH connection and spawns channels
//   - [Sub]: read-only channel ([ReadChannel])
//   - [Pub]: write-only channel ([WriteChannel])
//   - [Pipe]: bidirectional channel (both capabilities)
//
// # Basic Usage
//
//	config := &pipeclient.Config{
//		Host:    "pipe.pico.sh",
//		User:    "alice",
//		KeyFile: "/home/alice/.ssh/id_ed25519",
//	}
//
//	client, err := pipeclient.NewClient(config)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	// The connection is established on the first channel request.
//	sub, err := client.Sub(ctx, "events", pipeclient.SubOptions{})
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	buf := make([]byte, 32*1024)
//	for !sub.ReadDone() {
//		n, err := sub.Read(buf)
//		if n > 0 {
//			handle(buf[:n])
//		}
//		if err != nil {
//			break
//		}
//	}
//
// # Concurrency
//
// Channels sharing one Client operate independently: a failure on one
// channel does not affect its siblings, and the first connection attempt
// is shared between concurrent channel requests rather than repeated. A
// single channel, however, is not safe for overlapping reads or
// overlapping writes from multiple goroutines; serializing access to one
// channel is the caller's responsibility.
//
// # Errors
//
// Failures are reported as typed errors and never retried internally:
// [ConnectionError] for dial/authentication failures, [StreamError] for
// remote process or stream failures, and [ErrSessionClosed] for
// operations after [Client.Close]. See [IsConnectionError],
// [IsStreamError], and [IsSessionClosed].
//
// # Configuration from Environment
//
// [LoadConfig] reads connection settings from environment variables using
// the Docker secrets pattern (values can be in files via a _FILE suffix):
//
//	config, err := pipeclient.LoadConfig("PIPEMUX_SSH_")
//
// # Security Considerations
//
// By default host keys are not verified, matching the upstream broker's
// casual-use posture. Enable verification for production use by setting
// StrictHostKeyChecking and a known_hosts path. Key-based authentication
// is strongly recommended over password authentication.
package pipeclient
