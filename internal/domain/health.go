package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// AuthMetrics is returned by GET /v1/metrics/auth.
type AuthMetrics struct {
	PipelineRuns        int64   `json:"pipelineRuns"`
	FetchRetries        int64   `json:"fetchRetries"`
	ProfilesHealed      int64   `json:"profilesHealed"`
	RoleCorrections     int64   `json:"roleCorrections"`
	RoleCorrectionFails int64   `json:"roleCorrectionFailures"`
	ActiveStores        int64   `json:"activeStores"`
	CacheHitRate        float64 `json:"cacheHitRate"`
	Period              string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
