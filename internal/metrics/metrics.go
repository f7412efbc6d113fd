// Package metrics holds the Prometheus instruments for ingestion, broadcast
// and command relay. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "envlog"

// Metrics Prometheus instruments
type Metrics struct {
	readingsIngested    prometheus.Counter
	readingsRejected    *prometheus.CounterVec
	persistFailures     *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	eventsDropped       prometheus.Counter
	subscribersDropped  prometheus.Counter
	subscribersGauge    prometheus.Gauge
	commandsSent        *prometheus.CounterVec
	commandResults      *prometheus.CounterVec
	devicesRegistered   prometheus.Counter
	readingBufferLength prometheus.Gauge
}

// New registers all instruments on reg. nil reg returns nil metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		readingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_total",
			Help:      "Readings accepted into the recent-history buffer",
		}),
		readingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rejected_total",
			Help:      "Readings rejected by validation",
		}, []string{"field"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Best-effort persistence failures",
		}, []string{"op"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_total",
			Help:      "Distribution events published",
		}, []string{"topic"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "inbox_dropped_total",
			Help:      "Events dropped because the broadcast inbox stayed full",
		}),
		subscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers removed because their queue was full or closed",
		}),
		subscribersGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently registered subscribers",
		}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "commands_total",
			Help:      "Device commands handed to the transport",
		}, []string{"command", "result"}),
		commandResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "results_total",
			Help:      "Device-reported command outcomes",
		}, []string{"command", "status"}),
		devicesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "devices_created_total",
			Help:      "Devices created on first contact or by an operator",
		}),
		readingBufferLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "buffer_length",
			Help:      "Readings held in the recent-history buffer",
		}),
	}

	reg.MustRegister(
		m.readingsIngested,
		m.readingsRejected,
		m.persistFailures,
		m.eventsPublished,
		m.eventsDropped,
		m.subscribersDropped,
		m.subscribersGauge,
		m.commandsSent,
		m.commandResults,
		m.devicesRegistered,
		m.readingBufferLength,
	)

	return m
}

func (m *Metrics) ReadingIngested(bufferLen int) {
	if m == nil {
		return
	}
	m.readingsIngested.Inc()
	m.readingBufferLength.Set(float64(bufferLen))
}

func (m *Metrics) ReadingRejected(field string) {
	if m == nil {
		return
	}
	m.readingsRejected.WithLabelValues(field).Inc()
}

func (m *Metrics) PersistFailed(op string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) EventPublished(topic string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) SubscriberDropped() {
	if m == nil {
		return
	}
	m.subscribersDropped.Inc()
}

func (m *Metrics) Subscribers(n int) {
	if m == nil {
		return
	}
	m.subscribersGauge.Set(float64(n))
}

func (m *Metrics) CommandSent(command, result string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(command, result).Inc()
}

func (m *Metrics) CommandResult(command, status string) {
	if m == nil {
		return
	}
	m.commandResults.WithLabelValues(command, status).Inc()
}

func (m *Metrics) DeviceRegistered() {
	if m == nil {
		return
	}
	m.devicesRegistered.Inc()
}
