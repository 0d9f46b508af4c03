// Package metrics exports order index and HTTP metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nibzard/ordo/internal/orderindex"
)

// Observer implements orderindex.Observer on a private registry.
type Observer struct {
	registry *prometheus.Registry

	allocations     *prometheus.CounterVec
	rebalances      *prometheus.CounterVec
	rebalancedItems prometheus.Counter
	plans           prometheus.Counter
	planSize        prometheus.Histogram
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
}

var _ orderindex.Observer = (*Observer)(nil)

// New creates an Observer with its collectors registered on a fresh registry.
func New() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordo_allocations_total",
			Help: "Order keys allocated, by kind",
		}, []string{"kind"}),
		rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordo_rebalances_total",
			Help: "Rebalance attempts, by outcome",
		}, []string{"status"}),
		rebalancedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ordo_rebalanced_items_total",
			Help: "Rows rewritten by rebalances",
		}),
		plans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ordo_move_plans_total",
			Help: "Move plans computed",
		}),
		planSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ordo_move_plan_assignments",
			Help:    "Assignments per move plan",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160, 320},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordo_http_requests_total",
			Help: "HTTP requests, by route and status code",
		}, []string{"route", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ordo_http_request_duration_seconds",
			Help:    "HTTP request latency, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	o.registry.MustRegister(
		o.allocations,
		o.rebalances,
		o.rebalancedItems,
		o.plans,
		o.planSize,
		o.requests,
		o.requestLatency,
		collectors.NewGoCollector(),
	)
	return o
}

// ObserveAllocation counts one allocated key.
func (o *Observer) ObserveAllocation(kind string) {
	o.allocations.WithLabelValues(kind).Inc()
}

// ObserveRebalance counts one rebalance attempt.
func (o *Observer) ObserveRebalance(items int, err error) {
	o.rebalances.WithLabelValues(rebalanceStatus(err)).Inc()
	if err == nil {
		o.rebalancedItems.Add(float64(items))
	}
}

// ObservePlan counts one move plan.
func (o *Observer) ObservePlan(assignments int) {
	o.plans.Inc()
	o.planSize.Observe(float64(assignments))
}

// ObserveRequest records one served HTTP request.
func (o *Observer) ObserveRequest(route string, code int, d time.Duration) {
	o.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	o.requestLatency.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}

// Registry returns the underlying registry.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

func rebalanceStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, orderindex.ErrRebalanceExhausted):
		return "exhausted"
	case errors.Is(err, orderindex.ErrStorageUnavailable):
		return "storage"
	default:
		return "error"
	}
}
