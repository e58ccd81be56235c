// pipemux drives pub, sub, and pipe channels against a pipe-style
// message broker over a single shared SSH connection. Channels are
// declared in a YAML or TOML config file; each runs as its own loop
// until the stream ends or the process is signalled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/pipemux/pipemux/internal/config"
	"github.com/pipemux/pipemux/internal/health"
	"github.com/pipemux/pipemux/internal/metrics"
	"github.com/pipemux/pipemux/pkg/pipeclient"
)

// Build information set via ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML or TOML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pipemux %s (built %s, %s)\n", Version, BuildDate, runtime.Version())
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("pipemux starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.String("broker", cfg.SSH.Address()),
		slog.Int("channels", len(cfg.Channels)),
	)

	if len(cfg.Channels) == 0 {
		return errors.New("no channels configured")
	}

	client, err := pipeclient.NewClient(cfg.SSH, pipeclient.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating pipe client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var healthServer *health.Server
	if cfg.ServerEnabled {
		healthServer = health.New(cfg.ServerPort, health.WithLogger(logger))
		healthServer.RegisterChecker("broker", func(ctx context.Context) error {
			if !client.IsConnected() {
				return errors.New("broker connection not established")
			}
			return nil
		})
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("starting health server: %w", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Channel reads block inside the SSH transport and do not observe
	// ctx on their own; closing the client is what unblocks them.
	go func() {
		<-ctx.Done()
		if err := client.Close(); err != nil {
			logger.Warn("error closing pipe client", slog.String("error", err.Error()))
		}
	}()

	// One loop per configured channel. A failing loop must not take
	// down its siblings, so each outcome is collected individually and
	// the aggregate is reported at the end.
	var wg sync.WaitGroup
	loopErrs := make([]error, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		wg.Add(1)
		go func(i int, ch config.ChannelConfig) {
			defer wg.Done()
			err := runChannel(ctx, client, ch, logger)
			if err == nil {
				return
			}
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || pipeclient.IsSessionClosed(err)) {
				// Loop interrupted by our own shutdown, not a failure.
				return
			}
			logger.Error("channel loop failed",
				slog.String("kind", ch.Kind),
				slog.String("topic", ch.Topic),
				slog.String("error", err.Error()),
			)
			loopErrs[i] = fmt.Errorf("%s %q: %w", ch.Kind, ch.Topic, err)
		}(i, ch)
	}
	wg.Wait()
	cancel()

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down health server", slog.String("error", err.Error()))
		}
	}

	logger.Info("pipemux shutdown complete")
	return errors.Join(loopErrs...)
}

func runChannel(ctx context.Context, client *pipeclient.Client, ch config.ChannelConfig, logger *slog.Logger) error {
	log := logger.With(slog.String("kind", ch.Kind), slog.String("topic", ch.Topic))
	switch ch.Kind {
	case config.KindPipe:
		return runPipeLoop(ctx, client, ch, log)
	case config.KindPub:
		return runPubLoop(ctx, client, ch, log)
	case config.KindSub:
		return runSubLoop(ctx, client, ch, log)
	default:
		return fmt.Errorf("unknown channel kind %q", ch.Kind)
	}
}

// runPipeLoop echoes everything received on a bidirectional pipe back
// to the same topic until the remote side ends the stream.
func runPipeLoop(ctx context.Context, client *pipeclient.Client, ch config.ChannelConfig, log *slog.Logger) error {
	p, err := client.Pipe(ctx, ch.Topic, pipeclient.PipeOptions{
		Public: ch.Public,
		Replay: ch.Replay,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	log.Info("pipe loop started")
	buf := make([]byte, 32*1024)
	for {
		n, err := p.Read(buf)
		if n > 0 {
			log.Debug("echoing data", slog.Int("bytes", n))
			if _, werr := p.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			log.Info("pipe stream ended")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// runSubLoop drains a subscription until the publisher ends the stream.
func runSubLoop(ctx context.Context, client *pipeclient.Client, ch config.ChannelConfig, log *slog.Logger) error {
	sub, err := client.Sub(ctx, ch.Topic, pipeclient.SubOptions{
		Keep:   ch.Keep,
		Public: ch.Public,
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Info("sub loop started")
	buf := make([]byte, 32*1024)
	for !sub.ReadDone() {
		n, err := sub.Read(buf)
		if n > 0 {
			log.Info("received message", slog.Int("bytes", n), slog.String("data", string(buf[:n])))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	log.Info("sub stream ended")
	return nil
}

// runPubLoop publishes a message at a fixed interval until cancelled.
func runPubLoop(ctx context.Context, client *pipeclient.Client, ch config.ChannelConfig, log *slog.Logger) error {
	pub, err := client.Pub(ctx, ch.Topic, pipeclient.PubOptions{
		NonBlocking: ch.NonBlocking,
		Empty:       ch.Empty,
		Public:      ch.Public,
		Timeout:     ch.Timeout,
	})
	if err != nil {
		return err
	}
	defer pub.Close()

	interval := ch.Interval
	if interval <= 0 {
		interval = config.DefaultPubInterval
	}
	message := ch.Message
	if message == "" {
		message = "pipemux"
	}

	log.Info("pub loop started", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("pub loop stopped")
			return nil
		case <-ticker.C:
			payload := fmt.Sprintf("%s %s\n", message, time.Now().UTC().Format(time.RFC3339))
			if _, err := pub.Write([]byte(payload)); err != nil {
				return err
			}
			log.Debug("published message", slog.Int("bytes", len(payload)))
		}
	}
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
