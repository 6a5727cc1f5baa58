// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state and reconnect attempts
//   - Broadcast messages handled and discarded
//   - Queue snapshot sizes
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karaqr/realtime/internal/model"
	"github.com/karaqr/realtime/internal/reactions"
)

// Metrics holds the collectors for one stagefeed instance.
type Metrics struct {
	registry *prometheus.Registry

	// ConnectionState is 1 while subscribed to the reactions channel.
	ConnectionState prometheus.Gauge

	// ReconnectAttempts counts scheduled reconnect attempts.
	ReconnectAttempts prometheus.Counter

	// RetriesExhausted counts times the reconnect budget ran out.
	RetriesExhausted prometheus.Counter

	// MessagesHandled counts broadcast messages by kind.
	// Labels: kind (reaction|comment)
	MessagesHandled *prometheus.CounterVec

	// MessagesDiscarded counts dropped messages by reason.
	// Labels: reason (foreign_tenant|unknown_kind|malformed)
	MessagesDiscarded *prometheus.CounterVec

	// QueueEntries tracks the size of the last queue snapshot by status.
	// Labels: status (waiting|called|performing|done)
	QueueEntries *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "karaqr_connection_state",
			Help: "1 while subscribed to the reactions channel, 0 otherwise",
		}),

		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "karaqr_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts",
		}),

		RetriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "karaqr_retries_exhausted_total",
			Help: "Times the reconnect budget was exhausted",
		}),

		MessagesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "karaqr_messages_handled_total",
			Help: "Broadcast messages handled by kind",
		}, []string{"kind"}),

		MessagesDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "karaqr_messages_discarded_total",
			Help: "Broadcast messages dropped by reason",
		}, []string{"reason"}),

		QueueEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "karaqr_queue_entries",
			Help: "Entries in the last queue snapshot by status",
		}, []string{"status"}),
	}
}

// Handler returns the HTTP handler serving this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveQueue records the status breakdown of a queue snapshot.
func (m *Metrics) ObserveQueue(entries []model.QueueEntry) {
	counts := map[model.QueueStatus]int{
		model.StatusWaiting:    0,
		model.StatusCalled:     0,
		model.StatusPerforming: 0,
		model.StatusDone:       0,
	}
	for _, e := range entries {
		counts[e.Status]++
	}
	for status, n := range counts {
		m.QueueEntries.WithLabelValues(string(status)).Set(float64(n))
	}
}

// ManagerHooks returns reactions hooks that feed these collectors. Extra
// hooks are chained after the metric updates.
func (m *Metrics) ManagerHooks(next reactions.Hooks) reactions.Hooks {
	return reactions.Hooks{
		StateChanged: func(st reactions.State) {
			if st == reactions.StateConnected {
				m.ConnectionState.Set(1)
			} else {
				m.ConnectionState.Set(0)
			}
			if next.StateChanged != nil {
				next.StateChanged(st)
			}
		},
		RetryScheduled: func(attempt int, delay time.Duration) {
			m.ReconnectAttempts.Inc()
			if next.RetryScheduled != nil {
				next.RetryScheduled(attempt, delay)
			}
		},
		RetriesExhausted: func() {
			m.RetriesExhausted.Inc()
			if next.RetriesExhausted != nil {
				next.RetriesExhausted()
			}
		},
		MessageHandled: func(kind string) {
			m.MessagesHandled.WithLabelValues(kind).Inc()
			if next.MessageHandled != nil {
				next.MessageHandled(kind)
			}
		},
		MessageDiscarded: func(reason string) {
			m.MessagesDiscarded.WithLabelValues(reason).Inc()
			if next.MessageDiscarded != nil {
				next.MessageDiscarded(reason)
			}
		},
	}
}
