package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrapdesk_webhooks_total",
			Help: "Telephony webhooks received, by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	CallTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrapdesk_call_transitions_total",
			Help: "Conditional call state updates, by target status and result (applied, skipped, not_found).",
		},
		[]string{"to", "result"},
	)

	StaleCallsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wrapdesk_stale_calls_expired_total",
			Help: "Calls moved from ringing to missed by the stale sweeper.",
		},
	)

	SMSSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrapdesk_sms_send_total",
			Help: "Outbound SMS attempts, by result.",
		},
		[]string{"result"},
	)

	SMSSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wrapdesk_sms_send_duration_seconds",
			Help:    "Latency of provider send-SMS calls including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrapdesk_realtime_events_total",
			Help: "Realtime events dispatched to local subscribers, by kind.",
		},
		[]string{"kind"},
	)

	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wrapdesk_realtime_subscribers",
			Help: "Currently connected dashboard event streams.",
		},
	)

	RealtimeDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wrapdesk_realtime_dropped_subscribers_total",
			Help: "Subscribers disconnected because their buffer was full.",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
