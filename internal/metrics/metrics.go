package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	settlements        *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	stockFailures      prometheus.Counter
	stockApplied       prometheus.Counter
	recomputes         *prometheus.CounterVec
	settleDuration     prometheus.Histogram
	httpRequests       *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venuepos",
			Name:      "settlements_total",
			Help:      "Sales settled, by kind.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venuepos",
			Name:      "settlement_rejections_total",
			Help:      "Settlement attempts rejected before any write, by reason.",
		}, []string{"reason"}),
		stockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "venuepos",
			Name:      "stock_adjustment_failures_total",
			Help:      "Per-product stock deltas that could not be applied.",
		}),
		stockApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "venuepos",
			Name:      "stock_movements_applied_total",
			Help:      "Stock deltas applied to the inventory ledger.",
		}),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venuepos",
			Name:      "aggregator_recomputes_total",
			Help:      "Session stats recomputations, by outcome.",
		}, []string{"outcome"}),
		settleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "venuepos",
			Name:      "settle_duration_seconds",
			Help:      "Wall time of successful settlements.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venuepos",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venuepos",
			Name:      "register_session_transitions_total",
			Help:      "Register sessions opened and closed.",
		}, []string{"to"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.settlements,
		m.rejections,
		m.stockFailures,
		m.stockApplied,
		m.recomputes,
		m.settleDuration,
		m.httpRequests,
		m.sessionTransitions,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SaleSettled(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind).Inc()
	m.settleDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SettlementRejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) StockAdjustmentFailed() {
	if m == nil {
		return
	}
	m.stockFailures.Inc()
}

func (m *Metrics) StockMovementApplied() {
	if m == nil {
		return
	}
	m.stockApplied.Inc()
}

func (m *Metrics) Recomputed(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.recomputes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(method string, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) SessionTransition(to string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(to).Inc()
}
