package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	NonceIssuedTotal     prometheus.Counter
	LoginTotal           *prometheus.CounterVec
	LogoutTotal          prometheus.Counter
	VerifyDuration       prometheus.Histogram
	RateLimitedTotal     *prometheus.CounterVec
	EventsPublishedTotal *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
	LoginRecordsPruned   prometheus.Counter
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics(reg prometheus.Registerer) *BusinessMetrics {
	f := promauto.With(reg)
	return &BusinessMetrics{
		NonceIssuedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wallet_auth_nonce_issued_total",
			Help: "The total number of login nonces issued",
		}),
		LoginTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_auth_login_total",
			Help: "Signature logins by result",
		}, []string{"result"}),
		LogoutTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wallet_auth_logout_total",
			Help: "The total number of revoked tokens",
		}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_auth_verify_duration_seconds",
			Help:    "Duration of signature verification requests",
			Buckets: prometheus.DefBuckets,
		}),
		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_auth_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}, []string{"path"}),
		EventsPublishedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_auth_events_published_total",
			Help: "Auth events handed to the message queue",
		}, []string{"type", "result"}),
		EventsConsumedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_auth_events_consumed_total",
			Help: "Auth events processed by the audit worker",
		}, []string{"type"}),
		LoginRecordsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "wallet_auth_login_records_pruned_total",
			Help: "Expired login records removed by the cron job",
		}),
	}
}
