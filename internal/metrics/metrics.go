package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotshare",
			Name:      "reservation_requests_total",
			Help:      "Count of reservation requests by result.",
		},
		[]string{"result"},
	)

	writeConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spotshare",
			Name:      "reservation_write_conflicts_total",
			Help:      "Count of conditional writes that lost a race and were retried.",
		},
	)

	reservationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotshare",
			Name:      "reservation_decisions_total",
			Help:      "Count of owner decisions over reservations.",
		},
		[]string{"decision"},
	)

	reservationCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spotshare",
			Name:      "reservation_cancelled_total",
			Help:      "Count of reservations cancelled by requesters.",
		},
	)

	findAvailableDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "spotshare",
			Name:      "find_available_duration_seconds",
			Help:      "Time spent answering discovery queries.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotshare",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	geocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotshare",
			Name:      "geocode_requests_total",
			Help:      "Count of geocode lookups by source (cache, remote, error).",
		},
		[]string{"source"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationRequests,
			writeConflicts,
			reservationDecisions,
			reservationCancelled,
			findAvailableDuration,
			httpRequests,
			geocodeRequests,
		)
	})
}

func IncReservationRequest(result string) {
	reservationRequests.WithLabelValues(result).Inc()
}

func IncWriteConflict() {
	writeConflicts.Inc()
}

func IncReservationDecision(decision string) {
	reservationDecisions.WithLabelValues(decision).Inc()
}

func IncReservationCancelled() {
	reservationCancelled.Inc()
}

func ObserveFindAvailable(d time.Duration) {
	findAvailableDuration.Observe(d.Seconds())
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncGeocode(source string) {
	geocodeRequests.WithLabelValues(source).Inc()
}
