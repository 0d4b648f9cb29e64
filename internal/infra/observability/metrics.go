package observability

import (
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFF.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	authPipeline    *prometheus.CounterVec
	fetchRetries    prometheus.Counter
	profilesHealed  prometheus.Counter
	roleCorrections *prometheus.CounterVec
	activeStores    prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bff_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bff_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bff_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bff_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		authPipeline: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bff_auth_pipeline_runs_total",
				Help: "Fetch/reconcile pipeline runs by triggering event.",
			},
			[]string{"event"},
		),
		fetchRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bff_user_data_fetch_retries_total",
				Help: "Retries of the user-data fetch caused by missing rows.",
			},
		),
		profilesHealed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bff_profiles_healed_total",
				Help: "Profiles created by the fetcher after retries were exhausted.",
			},
		),
		roleCorrections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bff_role_corrections_total",
				Help: "Corrective role writes issued by the reconciler.",
			},
			[]string{"result"},
		),
		activeStores: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bff_auth_stores_active",
				Help: "Auth state stores currently alive.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrPipelineRun counts one fetch/reconcile run.
func (m *Metrics) IncrPipelineRun(event domain.AuthEvent) {
	m.authPipeline.WithLabelValues(string(event)).Inc()
}

// IncrFetchRetry counts one user-data retry.
func (m *Metrics) IncrFetchRetry() {
	m.fetchRetries.Inc()
}

// IncrProfileHealed counts one self-healed profile.
func (m *Metrics) IncrProfileHealed() {
	m.profilesHealed.Inc()
}

// IncrRoleCorrection counts a corrective role write ("ok" or "error").
func (m *Metrics) IncrRoleCorrection(result string) {
	m.roleCorrections.WithLabelValues(result).Inc()
}

// StoreOpened / StoreClosed track live auth state stores.
func (m *Metrics) StoreOpened() { m.activeStores.Inc() }
func (m *Metrics) StoreClosed() { m.activeStores.Dec() }

// GetAuthSnapshot returns a snapshot of auth-related metrics suitable for
// the GET /v1/metrics/auth endpoint.
func (m *Metrics) GetAuthSnapshot() *domain.AuthMetrics {
	runs := float64(0)
	for _, ev := range []domain.AuthEvent{
		domain.EventInitialSession, domain.EventSignedIn, domain.EventTokenRefreshed,
		domain.EventUserUpdated, domain.EventSignedOut, domain.EventPasswordRecovery,
	} {
		runs += getCounterValue(m.authPipeline.WithLabelValues(string(ev)))
	}

	hits := getCounterValue(m.cacheHits.WithLabelValues("notifications"))
	misses := getCounterValue(m.cacheMisses.WithLabelValues("notifications"))
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.AuthMetrics{
		PipelineRuns:        int64(runs),
		FetchRetries:        int64(getCounterValue(m.fetchRetries)),
		ProfilesHealed:      int64(getCounterValue(m.profilesHealed)),
		RoleCorrections:     int64(getCounterValue(m.roleCorrections.WithLabelValues("ok"))),
		RoleCorrectionFails: int64(getCounterValue(m.roleCorrections.WithLabelValues("error"))),
		ActiveStores:        int64(getGaugeValue(m.activeStores)),
		CacheHitRate:        hitRate,
		Period:              "all_time",
	}
}

// getCounterValue extracts the current float64 value of a counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value
	}
	return 0
}
