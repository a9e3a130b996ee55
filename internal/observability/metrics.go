// README: Prometheus collectors for ride, ledger and HTTP activity.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "urbanride"

var (
	AcceptAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_accept_attempts_total", Help: "Ride acceptance attempts by outcome"},
		[]string{"outcome"},
	)
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Committed ride status transitions"},
		[]string{"from", "to"},
	)
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "settlements_total", Help: "Rides settled"})
	FeesCollected    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "fees_collected", Help: "Platform fees debited, in currency units"})
	RechargesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "recharges_confirmed_total", Help: "Confirmed wallet recharges"})
	RechargedAmount  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "recharged_amount", Help: "Credits added by recharges, in currency units"})
	UnitOfWorkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_of_work_duration_seconds",
			Help:      "Duration of ride units of work",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter"})
)

func RideSettled(fee decimal.Decimal) {
	SettlementsTotal.Inc()
	FeesCollected.Add(fee.InexactFloat64())
}

func RechargeConfirmed(amount decimal.Decimal) {
	RechargesTotal.Inc()
	RechargedAmount.Add(amount.InexactFloat64())
}
