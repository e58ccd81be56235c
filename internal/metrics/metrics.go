// Package metrics provides Prometheus metrics for pipemux.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names use the pipemux_ prefix.
const (
	Namespace = "pipemux"
)

var (
	// BuildInfo exposes build metadata as a constant gauge.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information for this pipemux binary.",
	}, []string{"version", "go_version"})

	// ConnectAttempts counts SSH connection attempts.
	ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "connect_attempts_total",
		Help:      "Number of SSH connection attempts to the broker.",
	})

	// ConnectErrors counts failed SSH connection attempts.
	ConnectErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "connect_errors_total",
		Help:      "Number of failed SSH connection attempts.",
	})

	// ChannelsOpened counts channels spawned, by remote command.
	ChannelsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "channels_opened_total",
		Help:      "Number of channels opened, by kind (pipe, pub, sub).",
	}, []string{"kind"})

	// ChannelErrors counts stream failures, by remote command and operation.
	ChannelErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "channel_errors_total",
		Help:      "Number of channel stream failures, by kind and operation.",
	}, []string{"kind", "op"})

	// BytesRead counts payload bytes read from channel output streams.
	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "bytes_read_total",
		Help:      "Payload bytes read from channel output streams.",
	})

	// BytesWritten counts payload bytes written to channel input streams.
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "bytes_written_total",
		Help:      "Payload bytes written to channel input streams.",
	})
)

// SetBuildInfo records build metadata. Call once at startup.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
