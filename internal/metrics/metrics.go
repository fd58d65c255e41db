package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service's collectors. All record methods are safe on a
// nil *Registry so callers in tests can skip metrics entirely.
type Registry struct {
	reg *prometheus.Registry

	AccountChecks       *prometheus.CounterVec
	CodesIssued         *prometheus.CounterVec
	CodeVerifications   *prometheus.CounterVec
	RateLimited         *prometheus.CounterVec
	StaleSessionsPurged prometheus.Counter
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		AccountChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_admin_account_checks_total",
				Help: "Admin account lookups by outcome",
			},
			[]string{"result"},
		),
		CodesIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_admin_otp_issued_total",
				Help: "Sign-in code issue attempts by outcome",
			},
			[]string{"result"},
		),
		CodeVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_admin_otp_verifications_total",
				Help: "Sign-in code verifications by outcome",
			},
			[]string{"result"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_admin_rate_limited_total",
				Help: "Requests rejected by the per-admin limiter",
			},
			[]string{"action"},
		),
		StaleSessionsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_admin_sessions_purged_total",
				Help: "Expired or consumed sign-in code rows removed by the cleanup job",
			},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method", "status"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.AccountChecks,
		r.CodesIssued,
		r.CodeVerifications,
		r.RateLimited,
		r.StaleSessionsPurged,
		r.HTTPRequestDuration,
	)
	return r
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveAccountCheck(result string) {
	if r == nil {
		return
	}
	r.AccountChecks.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveCodeIssued(result string) {
	if r == nil {
		return
	}
	r.CodesIssued.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveCodeVerification(result string) {
	if r == nil {
		return
	}
	r.CodeVerifications.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveRateLimited(action string) {
	if r == nil {
		return
	}
	r.RateLimited.WithLabelValues(action).Inc()
}

func (r *Registry) ObserveSessionsPurged(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.StaleSessionsPurged.Add(float64(n))
}

// Middleware records request latency labelled by the matched chi route
// pattern, so path parameters do not explode cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.HTTPRequestDuration.
			WithLabelValues(route, req.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
