// Package metrics exposes Prometheus collectors for the HTTP layer, the
// chat proxy and the change feed.
package metrics

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deedox",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "deedox",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deedox",
		Name:      "chat_proxy_requests_total",
		Help:      "Chat proxy calls by outcome and provider.",
	}, []string{"outcome", "provider"})

	ProxyUpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "deedox",
		Name:      "chat_proxy_upstream_seconds",
		Help:      "Time spent waiting on the upstream provider.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "deedox",
		Name:      "change_feed_subscribers",
		Help:      "Open change feed subscriptions.",
	})

	FeedPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deedox",
		Name:      "change_feed_events_total",
		Help:      "Change events published by table.",
	}, []string{"table"})

	FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deedox",
		Name:      "change_feed_dropped_total",
		Help:      "Events dropped because a subscriber buffer was full.",
	})

	MailSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deedox",
		Name:      "mail_sent_total",
		Help:      "Outgoing mail by result.",
	}, []string{"result"})
)

// Middleware records request count and latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RegisterDB exports connection pool stats for db. Registering the same
// name twice is ignored.
func RegisterDB(db *sql.DB, name string) {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		panic(err)
	}
}
