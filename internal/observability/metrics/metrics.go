package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds the request-level prometheus instruments.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbill_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status_code"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hostbill_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// BillingMetrics counts core billing lifecycle events.
type BillingMetrics struct {
	invoicesCreated  prometheus.Counter
	invoicesIssued   prometheus.Counter
	invoicesPaid     prometheus.Counter
	paymentEvents    *prometheus.CounterVec
	overdueSweepRows prometheus.Counter
}

func NewBillingMetrics() *BillingMetrics {
	return &BillingMetrics{
		invoicesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hostbill_invoices_created_total",
			Help: "Invoices created.",
		}),
		invoicesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hostbill_invoices_issued_total",
			Help: "Invoices issued.",
		}),
		invoicesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hostbill_invoices_paid_total",
			Help: "Invoices reconciled to paid.",
		}),
		paymentEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbill_payment_events_total",
			Help: "Payment gateway events by provider and type.",
		}, []string{"provider", "event_type"}),
		overdueSweepRows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hostbill_overdue_sweep_rows_total",
			Help: "Invoices materialized to OVERDUE by the sweep job.",
		}),
	}
}

func (m *BillingMetrics) IncInvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

func (m *BillingMetrics) IncInvoiceIssued() {
	if m == nil {
		return
	}
	m.invoicesIssued.Inc()
}

func (m *BillingMetrics) IncInvoicePaid() {
	if m == nil {
		return
	}
	m.invoicesPaid.Inc()
}

func (m *BillingMetrics) IncPaymentEvent(provider, eventType string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(strings.TrimSpace(provider), strings.TrimSpace(eventType)).Inc()
}

func (m *BillingMetrics) AddOverdueSweepRows(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueSweepRows.Add(float64(n))
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
