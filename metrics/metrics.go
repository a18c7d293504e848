// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for auth events.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// HTTPRequests counts HTTP requests by route, method and status.
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gqlbbs_http_requests_total",
		Help: "Total number of HTTP requests",
	},
	[]string{"route", "method", "status"},
)

// HTTPDuration observes request latency by route.
var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gqlbbs_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route"},
)

// AuthEvents counts authentication operations by kind and outcome.
var AuthEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gqlbbs_auth_events_total",
		Help: "Total number of authentication operations",
	},
	[]string{"operation", "outcome"},
)

// MailDispatch counts password reset mail by transport and outcome.
var MailDispatch = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gqlbbs_mail_dispatch_total",
		Help: "Total number of reset mails handed to a transport",
	},
	[]string{"transport", "outcome"},
)

// NewRegistry returns a registry with the process collectors and every collector of this package.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(HTTPRequests, HTTPDuration, AuthEvents, MailDispatch)
	return reg
}

// RecordAuth increments the auth event counter.
func RecordAuth(operation, outcome string) {
	AuthEvents.WithLabelValues(operation, outcome).Inc()
}

// RecordMail increments the mail dispatch counter.
func RecordMail(transport, outcome string) {
	MailDispatch.WithLabelValues(transport, outcome).Inc()
}

// Middleware records every request handled by the engine.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
