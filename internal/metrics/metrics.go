package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/channelgw/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	errorsTotal    *prometheus.CounterVec
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	presignTotal        *prometheus.CounterVec
	presignFailureTotal prometheus.Counter
	authRejectedTotal   prometheus.Counter

	refreshTotal       prometheus.Counter
	refreshErrorsTotal prometheus.Counter
	channelCount       prometheus.Gauge
	refreshLastSuccess prometheus.Gauge
	refreshStale       prometheus.Gauge

	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics.
// Only safe labels (method, route, code): object keys and channel
// names never become label values, they are unbounded.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		presignTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_presign_total",
			Help: "Total presigned URLs issued by HTTP method",
		}, []string{"method"}),
		presignFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_presign_failures_total",
			Help: "Total presign attempts that failed",
		}),
		authRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_auth_rejected_total",
			Help: "Total requests rejected by the auth gate",
		}),
		refreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_refresh_total",
			Help: "Total number of registry refresh cycles",
		}),
		refreshErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_refresh_errors_total",
			Help: "Total registry refresh cycles that failed",
		}),
		channelCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_channels",
			Help: "Number of channels in the active snapshot",
		}),
		refreshLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_refresh_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful registry refresh",
		}),
		refreshStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_stale",
			Help: "Whether the registry is stale (1) or healthy (0)",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.errorsTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.presignTotal,
		m.presignFailureTotal,
		m.authRejectedTotal,
		m.refreshTotal,
		m.refreshErrorsTotal,
		m.channelCount,
		m.refreshLastSuccess,
		m.refreshStale,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        app,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"vcs_dirty":  dirty,
		"go_version": vi.GoVersion,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// IncPresigns and IncPresignFailures implement the gateway's metrics
// hook.
func (m *ServerMetrics) IncPresigns(method string) {
	m.presignTotal.WithLabelValues(method).Inc()
}

func (m *ServerMetrics) IncPresignFailures() {
	m.presignFailureTotal.Inc()
}

// IncAuthRejections implements the auth gate's metrics hook.
func (m *ServerMetrics) IncAuthRejections() {
	m.authRejectedTotal.Inc()
}

// The refresher metrics hooks.

func (m *ServerMetrics) IncRefreshes() {
	m.refreshTotal.Inc()
}

func (m *ServerMetrics) IncRefreshErrors() {
	m.refreshErrorsTotal.Inc()
}

func (m *ServerMetrics) SetChannelCount(n int) {
	m.channelCount.Set(float64(n))
}

func (m *ServerMetrics) SetRefreshLastSuccess(unixSeconds float64) {
	m.refreshLastSuccess.Set(unixSeconds)
}

func (m *ServerMetrics) SetRefreshStale(stale bool) {
	if stale {
		m.refreshStale.Set(1)
	} else {
		m.refreshStale.Set(0)
	}
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
