package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetBuildInfo(t *testing.T) {
	// Reset metrics for testing
	BuildInfo.Reset()

	SetBuildInfo("v1.0.0", "go1.24")

	// Check that metric was set
	count := testutil.CollectAndCount(BuildInfo)
	if count != 1 {
		t.Errorf("expected 1 metric, got %d", count)
	}

	// Verify the value is 1
	value := testutil.ToFloat64(BuildInfo.WithLabelValues("v1.0.0", "go1.24"))
	if value != 1 {
		t.Errorf("expected value 1, got %f", value)
	}
}

func TestChannelMetrics(t *testing.T) {
	// Reset metrics for testing
	ChannelsOpened.Reset()
	ChannelErrors.Reset()

	// Simulate channel activity
	ChannelsOpened.WithLabelValues("pipe").Inc()
	ChannelsOpened.WithLabelValues("sub").Add(2)
	ChannelErrors.WithLabelValues("sub", "read").Inc()

	opened := testutil.ToFloat64(ChannelsOpened.WithLabelValues("pipe"))
	if opened != 1 {
		t.Errorf("expected 1 pipe channel opened, got %f", opened)
	}

	subs := testutil.ToFloat64(ChannelsOpened.WithLabelValues("sub"))
	if subs != 2 {
		t.Errorf("expected 2 sub channels opened, got %f", subs)
	}

	readErrs := testutil.ToFloat64(ChannelErrors.WithLabelValues("sub", "read"))
	if readErrs != 1 {
		t.Errorf("expected 1 sub read error, got %f", readErrs)
	}
}

func TestConnectMetrics(t *testing.T) {
	// Counters can't be reset, so only verify monotonic growth
	before := testutil.ToFloat64(ConnectAttempts)
	ConnectAttempts.Inc()
	ConnectErrors.Inc()

	after := testutil.ToFloat64(ConnectAttempts)
	if after != before+1 {
		t.Errorf("expected connect attempts %f, got %f", before+1, after)
	}
}

func TestMetricNames(t *testing.T) {
	// Verify all metrics use the correct namespace prefix
	expectedPrefix := "pipemux_"

	metrics := []prometheus.Collector{
		BuildInfo,
		ConnectAttempts,
		ConnectErrors,
		ChannelsOpened,
		ChannelErrors,
		BytesRead,
		BytesWritten,
	}

	for _, m := range metrics {
		// Get metric descriptions
		ch := make(chan *prometheus.Desc, 10)
		m.Describe(ch)
		close(ch)

		for desc := range ch {
			name := desc.String()
			if !strings.Contains(name, expectedPrefix) {
				t.Errorf("metric %s does not have expected prefix %s", name, expectedPrefix)
			}
		}
	}
}
