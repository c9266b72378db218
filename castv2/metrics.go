package castv2

import (
	"github.com/prometheus/client_golang/prometheus"
)

// channelMetrics wraps the channel's Prometheus collectors. A nil
// *channelMetrics (the zero value returned by newChannelMetrics when no
// registerer is supplied) makes every method a safe no-op, so callers
// never branch on whether metrics are enabled.
type channelMetrics struct {
	requestsSent      prometheus.Counter
	requestsFailed    *prometheus.CounterVec
	requestDuration   prometheus.Histogram
	reconnects        prometheus.Counter
	heartbeatsSent    prometheus.Counter
	heartbeatsRecv    prometheus.Counter
}

// newChannelMetrics registers (or no-ops, if reg is nil) the channel's
// collectors under a constant "remote_name" label so multiple channels
// sharing a process don't collide on metric identity.
func newChannelMetrics(reg prometheus.Registerer, remoteName string) *channelMetrics {
	if reg == nil {
		return nil
	}

	labels := prometheus.Labels{"remote_name": remoteName}
	m := &channelMetrics{
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "castv2",
			Name:        "requests_sent_total",
			Help:        "Total requests sent on this channel.",
			ConstLabels: labels,
		}),
		requestsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "castv2",
			Name:        "requests_failed_total",
			Help:        "Total requests that completed with an error, by error kind.",
			ConstLabels: labels,
		}, []string{"reason"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "castv2",
			Name:        "request_duration_seconds",
			Help:        "Latency of request/response round trips.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "castv2",
			Name:        "reconnects_total",
			Help:        "Total transparent reconnects performed by send_request.",
			ConstLabels: labels,
		}),
		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "castv2",
			Name:        "heartbeats_sent_total",
			Help:        "Total outbound PING frames written.",
			ConstLabels: labels,
		}),
		heartbeatsRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "castv2",
			Name:        "heartbeats_received_total",
			Help:        "Total inbound PONG frames observed.",
			ConstLabels: labels,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.requestsSent, m.requestsFailed, m.requestDuration,
		m.reconnects, m.heartbeatsSent, m.heartbeatsRecv,
	} {
		// Registration failures (duplicate registration across
		// multiple channels to the same remote name) are not fatal:
		// the channel keeps functioning, just without metrics for
		// that particular collision.
		_ = reg.Register(c)
	}

	return m
}

func (m *channelMetrics) requestSent() {
	if m == nil {
		return
	}
	m.requestsSent.Inc()
}

func (m *channelMetrics) requestFailed(reason string) {
	if m == nil {
		return
	}
	m.requestsFailed.WithLabelValues(reason).Inc()
}

func (m *channelMetrics) observeRequestDuration(seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.Observe(seconds)
}

func (m *channelMetrics) reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *channelMetrics) heartbeatSent() {
	if m == nil {
		return
	}
	m.heartbeatsSent.Inc()
}

func (m *channelMetrics) heartbeatReceived() {
	if m == nil {
		return
	}
	m.heartbeatsRecv.Inc()
}
