package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// outcome is one of subscribed, duplicate, honeypot, invalid,
	// rate_limited, error.
	SignupRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marcoswift_signup_requests_total",
		Help: "Total number of signup submissions by outcome",
	}, []string{"outcome"})
	SignupNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marcoswift_signup_notifications_total",
		Help: "Total number of new-subscriber notifications by transport and result",
	}, []string{"transport", "result"})
	RateLimitPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marcoswift_rate_limit_attempts_pruned_total",
		Help: "Total number of expired rate limit attempts deleted",
	})
)

func init() {
	prometheus.MustRegister(SignupRequests)
	prometheus.MustRegister(SignupNotifications)
	prometheus.MustRegister(RateLimitPruned)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
