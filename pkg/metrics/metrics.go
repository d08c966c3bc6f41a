// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionCount counts completed Modbus transactions by outcome.
	TransactionCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mbgate_transactions_total",
		Help: "The total number of Modbus transactions, by outcome",
	}, []string{"outcome"})

	// DroppedInbound counts inbound envelopes discarded before any
	// serial activity, by reason.
	DroppedInbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mbgate_dropped_inbound_total",
		Help: "The total number of inbound envelopes dropped without a transaction",
	}, []string{"reason"})

	// PublishErrors counts failed outbound publishes.
	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mbgate_publish_errors_total",
		Help: "The total number of failed MQTT publishes",
	})

	// TransactionDuration observes wall time per transaction attempt.
	TransactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mbgate_transaction_duration_seconds",
		Help:    "Duration of Modbus transactions including retries",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// TransportConnected reports whether the MQTT connection is up.
	TransportConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mbgate_transport_connected",
		Help: "1 when the MQTT client is connected, 0 otherwise",
	})
)

// Transaction outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeSilence   = "silence"
	OutcomeCRCError  = "crc_error"
	OutcomeLinkError = "link_error"
)

// Drop reasons.
const (
	DropFiltered  = "filtered"   // gateway-origin or non-actionable tag
	DropMalformed = "malformed"  // too short to carry a Modbus payload
	DropQueueFull = "queue_full" // inbound channel saturated
)

// IncTransaction increments the transaction counter.
func IncTransaction(outcome string) {
	TransactionCount.WithLabelValues(outcome).Inc()
}

// IncDropped increments the dropped-inbound counter.
func IncDropped(reason string) {
	DroppedInbound.WithLabelValues(reason).Inc()
}
