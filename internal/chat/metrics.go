package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	RegisteredPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_registered_peers",
		Help: "Number of peers currently in the router registry",
	})

	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Total router events processed by type",
	}, []string{"type"})

	EventProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_event_processing_seconds",
		Help:    "Time to process each router event type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_deliveries_total",
		Help: "Per-destination delivery attempts by result",
	}, []string{"result"})

	WriterErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_writer_errors_total",
		Help: "Writers terminated by a failed write",
	})

	UndeliveredPayloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_undelivered_payloads_total",
		Help: "Payloads left in a mailbox when its writer exited",
	})
)

const (
	deliveryEnqueued = "enqueued"
	deliverySkipped  = "skipped"
	deliveryDropped  = "dropped"
)

func init() {
	prometheus.MustRegister(RegisteredPeers)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(WriterErrorsTotal)
	prometheus.MustRegister(UndeliveredPayloadsTotal)
}
