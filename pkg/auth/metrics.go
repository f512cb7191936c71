package auth

import "github.com/prometheus/client_golang/prometheus"

const (
	triggerInitial   = "initial"
	triggerSoftTTL   = "soft_ttl"
	triggerExpired   = "expired"
	resultSuccess    = "success"
	resultError      = "error"
	resultRejected   = "rejected"
	resultTimeout    = "timeout"
	resultNoCreds    = "credentials_missing"
	resultSuperseded = "superseded"
)

var tokenRefreshTotalMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "paradex_auth_token_refresh_total",
		Help: "Total number of bearer token reacquisitions",
	}, []string{"trigger", "result"},
)

func init() {
	prometheus.MustRegister(tokenRefreshTotalMetrics)
}

func recordRefresh(trigger, result string) {
	tokenRefreshTotalMetrics.With(prometheus.Labels{
		"trigger": trigger,
		"result":  result,
	}).Inc()
}
