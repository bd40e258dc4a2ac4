package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// BuildInfo is reported by /healthz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build  BuildInfo
	probes repositories.HealthRepository
	now    func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

// WithHealthProbes sets the dependency probes evaluated by /readyz.
func WithHealthProbes(probes repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) { h.probes = probes }
}

func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHealthHandlers constructs probe handlers. Without probes /readyz reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

// Healthz reports process liveness and build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     h.build.Version,
		"commit_sha":  h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

type readinessCheck struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Readyz probes the store and returns 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	report := domain.HealthReport{Status: domain.HealthStatusOK, GeneratedAt: h.now().UTC()}
	if h.probes != nil {
		collected, err := h.probes.Collect(r.Context())
		if err != nil {
			report.Status = domain.HealthStatusError
			report.Checks = map[string]domain.HealthCheck{"probes": {Status: domain.HealthStatusError, Detail: err.Error()}}
		} else {
			report = collected
		}
	}

	checks := make(map[string]readinessCheck, len(report.Checks))
	var details []string
	for name, check := range report.Checks {
		checks[name] = readinessCheck{Status: check.Status, Detail: check.Detail, LatencyMs: check.Latency.Milliseconds()}
		if check.Status != domain.HealthStatusOK {
			details = append(details, name+": "+check.Detail)
		}
	}
	sort.Strings(details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, map[string]any{
		"status":       report.Status,
		"checks":       checks,
		"details":      details,
		"generated_at": report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}
