package pipeclient

// Remote command names understood by the broker.
const (
	cmdPipe = "pipe"
	cmdPub  = "pub"
	cmdSub  = "sub"
)

// PipeOptions configures a bidirectional pipe channel.
type PipeOptions struct {
	// Public makes the topic accessible to other users (-p).
	Public bool

	// Replay replays messages to new connections (-r).
	Replay bool
}

// PubOptions configures a publisher channel.
type PubOptions struct {
	// NonBlocking makes the publish return without waiting for a
	// subscriber (-b=false). The zero value matches the broker default,
	// which blocks until at least one subscriber is connected.
	NonBlocking bool

	// Empty publishes an empty message (-e).
	Empty bool

	// Public makes the topic accessible to other users (-p).
	Public bool

	// Timeout is passed through to the broker (-t=<timeout>), for
	// example "5s". It is interpreted remotely, not by this client.
	Timeout string
}

// SubOptions configures a subscriber channel.
type SubOptions struct {
	// Keep keeps the subscription alive after the publisher is done (-k).
	Keep bool

	// Public subscribes to another user's public topic (-p).
	Public bool
}

// The broker parses arguments positionally and flag-wise, so the order
// below is part of the wire protocol, not a style choice.

func pipeArgs(topic string, opts PipeOptions) []string {
	args := []string{cmdPipe}
	if topic != "" {
		args = append(args, topic)
	}
	if opts.Public {
		args = append(args, "-p")
	}
	if opts.Replay {
		args = append(args, "-r")
	}
	return args
}

func pubArgs(topic string, opts PubOptions) []string {
	args := []string{cmdPub}
	if topic != "" {
		args = append(args, topic)
	}
	if opts.NonBlocking {
		args = append(args, "-b=false")
	}
	if opts.Empty {
		args = append(args, "-e")
	}
	if opts.Public {
		args = append(args, "-p")
	}
	if opts.Timeout != "" {
		args = append(args, "-t="+opts.Timeout)
	}
	return args
}

// subArgs always includes the topic positionally, even when empty; the
// broker requires it.
func subArgs(topic string, opts SubOptions) []string {
	args := []string{cmdSub, topic}
	if opts.Keep {
		args = append(args, "-k")
	}
	if opts.Public {
		args = append(args, "-p")
	}
	return args
}
