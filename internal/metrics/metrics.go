package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts polling cycles by outcome
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_cycles_total",
			Help: "Total number of polling cycles",
		},
		[]string{"status"},
	)

	// CycleDuration tracks how long one pass over all channels takes
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forwarder_cycle_duration_seconds",
			Help:    "Polling cycle duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// MessagesDetected counts new source messages turned into jobs
	MessagesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_messages_detected_total",
			Help: "Total number of new messages detected per channel",
		},
		[]string{"channel"},
	)

	// MessagesSkipped counts visible elements dropped during extraction
	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_messages_skipped_total",
			Help: "Total number of message elements skipped by reason",
		},
		[]string{"channel", "reason"},
	)

	// DeliveriesTotal counts per-destination send attempts
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_deliveries_total",
			Help: "Total number of per-destination deliveries",
		},
		[]string{"kind", "status"},
	)

	// QueuePending tracks jobs queued or in flight
	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forwarder_queue_pending",
			Help: "Number of outbound jobs queued or being delivered",
		},
	)

	// ChannelErrors counts reconciliation failures
	ChannelErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_channel_errors_total",
			Help: "Total number of channel reconciliation errors",
		},
		[]string{"channel", "error_type"},
	)

	// LastMessageID tracks the persisted watermark per channel
	LastMessageID = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forwarder_last_message_id",
			Help: "Last processed message id by channel",
		},
		[]string{"channel"},
	)

	// LoginsTotal counts source platform login attempts
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_logins_total",
			Help: "Total number of source platform login attempts",
		},
		[]string{"method", "status"},
	)
)
