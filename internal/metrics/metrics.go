package metrics

import (
	"net/http"

	"github.com/ErlanBelekov/passwordless/internal/health"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Token metrics

	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "passwordless",
		Name:      "tokens_issued_total",
		Help:      "Total tokens generated, by scope.",
	}, []string{"scope"})

	TokensParsedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "passwordless",
		Name:      "tokens_parsed_total",
		Help:      "Total token parse attempts, by scope and outcome.",
	}, []string{"scope", "outcome"})

	// Sweeper metrics

	SweepDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "passwordless",
		Name:      "sweep_deleted_total",
		Help:      "Total expired tokens removed by the sweeper.",
	})

	SweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "passwordless",
		Name:      "sweep_errors_total",
		Help:      "Sweeper runs that failed.",
	})

	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "passwordless",
		Name:      "sweep_duration_seconds",
		Help:      "Time taken for one sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "passwordless",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "passwordless",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		TokensIssuedTotal,
		TokensParsedTotal,
		SweepDeletedTotal,
		SweepErrorsTotal,
		SweepDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer exposes /metrics plus liveness and readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Liveness(c.Request.Context()))
	})
	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})
	return &http.Server{Addr: addr, Handler: r}
}
