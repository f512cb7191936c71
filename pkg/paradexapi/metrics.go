package paradexapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDurationMetrics = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "paradex_api_request_duration_seconds",
		Help:    "Paradex REST request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"},
)

func recordRequest(req *http.Request, status int, start time.Time) {
	requestDurationMetrics.With(prometheus.Labels{
		"method": req.Method,
		"route":  route(req.URL.Path),
		"status": strconv.Itoa(status),
	}).Observe(time.Since(start).Seconds())
}

// route collapses order ids so the label set stays bounded.
func route(path string) string {
	if i := strings.Index(path, "/orders/"); i >= 0 {
		return path[:i] + "/orders/{id}"
	}
	return path
}
