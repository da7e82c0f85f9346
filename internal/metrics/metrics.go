package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courtbook"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of pending bookings created.",
		},
	)

	bookingStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changes_total",
			Help:      "Count of booking status transitions by target status and source.",
		},
		[]string{"status", "source"},
	)

	slotConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Count of requests rejected because the slot was already confirmed.",
		},
		[]string{"stage"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Count of payment webhooks by outcome.",
		},
		[]string{"outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of checkout requests to the payment provider.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider", "result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	lifecycleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Committed booking and payment events by type.",
		},
		[]string{"type"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_lookups_total",
			Help:      "Availability cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingStatus, slotConflicts, webhooks,
			gatewayDuration, httpRequests, lifecycleEvents, cacheLookups)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingStatus(status, source string) {
	bookingStatus.WithLabelValues(status, source).Inc()
}

func IncSlotConflict(stage string) {
	slotConflicts.WithLabelValues(stage).Inc()
}

func IncWebhook(outcome string) {
	webhooks.WithLabelValues(outcome).Inc()
}

func ObserveGateway(provider, result string, d time.Duration) {
	gatewayDuration.WithLabelValues(provider, result).Observe(d.Seconds())
}

func IncHTTPRequest(route string, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncLifecycleEvent(eventType string) {
	lifecycleEvents.WithLabelValues(eventType).Inc()
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
