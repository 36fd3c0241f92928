package observability

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "keyshop"

	PurchaseOutcomeCompleted           = "completed"
	PurchaseOutcomeBanned              = "banned"
	PurchaseOutcomePlanNotFound        = "plan_not_found"
	PurchaseOutcomeInsufficientBalance = "insufficient_balance"
	PurchaseOutcomeOutOfStock          = "out_of_stock"
	PurchaseOutcomeInvalid             = "invalid"
	PurchaseOutcomeError               = "error"

	operationPurchase = "purchase"
)

// Metrics counts shop operations for the /metrics endpoint.
type Metrics struct {
	operations    *prometheus.CounterVec
	purchases     *prometheus.CounterVec
	keysSold      prometheus.Counter
	revenueCents  prometheus.Counter
	httpDurations *prometheus.HistogramVec
}

// NewMetrics registers the collectors with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Shop operations by name and status.",
		}, []string{"operation", "status"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "purchases_total",
			Help:      "Purchase attempts by outcome.",
		}, []string{"outcome"}),
		keysSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "keys_sold_total",
			Help:      "Keys issued through completed purchases.",
		}),
		revenueCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "revenue_cents_total",
			Help:      "Balance debited by completed purchases, in cents.",
		}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	collectors := []prometheus.Collector{metrics.operations, metrics.purchases, metrics.keysSold, metrics.revenueCents, metrics.httpDurations}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (metrics *Metrics) LogOperation(_ context.Context, entry shop.OperationLog) {
	metrics.operations.WithLabelValues(entry.Operation, entry.Status).Inc()
	if entry.Operation != operationPurchase {
		return
	}
	outcome := PurchaseOutcome(entry.Error)
	metrics.purchases.WithLabelValues(outcome).Inc()
	if outcome == PurchaseOutcomeCompleted {
		metrics.keysSold.Add(float64(entry.Quantity))
		metrics.revenueCents.Add(float64(entry.Amount.Int64()))
	}
}

// ObserveHTTP records the latency of one request.
func (metrics *Metrics) ObserveHTTP(route string, status string, seconds float64) {
	metrics.httpDurations.WithLabelValues(route, status).Observe(seconds)
}

// PurchaseOutcome classifies a purchase result into a bounded label value.
func PurchaseOutcome(err error) string {
	switch {
	case err == nil:
		return PurchaseOutcomeCompleted
	case errors.Is(err, shop.ErrBanned):
		return PurchaseOutcomeBanned
	case errors.Is(err, shop.ErrPlanNotFound):
		return PurchaseOutcomePlanNotFound
	case errors.Is(err, shop.ErrInsufficientBalance):
		return PurchaseOutcomeInsufficientBalance
	case errors.Is(err, shop.ErrOutOfStock):
		return PurchaseOutcomeOutOfStock
	case shop.IsValidationError(err):
		return PurchaseOutcomeInvalid
	default:
		return PurchaseOutcomeError
	}
}

var _ shop.OperationLogger = (*Metrics)(nil)
