package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	TokenVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_verifications_total",
			Help: "Token verification attempts by outcome.",
		},
		[]string{"outcome"},
	)

	RevocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Session revocations by reason.",
		},
		[]string{"reason"},
	)

	AuditFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_flushes_total",
			Help: "Audit batch flushes by outcome.",
		},
		[]string{"outcome"},
	)

	AuditBufferDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_buffer_depth",
		Help: "Audit events currently buffered in memory.",
	})

	RevocationCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_revocation_cache_size",
		Help: "Entries in the in-memory revoked-token cache.",
	})
)

// Init registers service metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		LoginsTotal,
		TokenVerificationsTotal,
		RevocationsTotal,
		AuditFlushesTotal,
		AuditBufferDepth,
		RevocationCacheSize,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
