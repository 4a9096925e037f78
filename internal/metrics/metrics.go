package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftamm_operations_total",
		Help: "Exchange operations by outcome",
	}, []string{"operation", "status"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftamm_operation_duration_seconds",
		Help:    "Exchange operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftamm_trade_volume_total",
		Help: "Quote units traded at spot price",
	}, []string{"side"})

	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftamm_event_publish_failures_total",
		Help: "Events that could not be delivered to a sink",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftamm_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Observe records the outcome and latency of one operation. Failures are
// labelled with their error type.
func Observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = string(apperrors.TypeOf(err))
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
