package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status      string                 `json:"status"`
	Service     string                 `json:"service"`
	Version     string                 `json:"version"`
	Timestamp   string                 `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheckHandler handles health check requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   "voice-orchestrator",
			Version:   "1.0.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

// HealthCheckFunc probes one dependency and reports whether it is reachable.
type HealthCheckFunc func(ctx context.Context) (bool, error)

// DependencyChecks names the dependencies ReadinessHandler probes. Any
// nil entry is skipped, so a deployment using only a subset of vendors
// (one STT, one LLM, one TTS) doesn't report phantom failures for the
// others.
type DependencyChecks struct {
	STT      HealthCheckFunc
	LLM      HealthCheckFunc
	TTS      HealthCheckFunc
	Redis    HealthCheckFunc
	Postgres HealthCheckFunc
}

// ReadinessHandler probes each configured dependency and reports overall
// readiness, generalized over whichever STT/LLM/TTS vendors and
// persistence backends a deployment actually has configured.
func ReadinessHandler(checks DependencyChecks) http.HandlerFunc {
	named := []struct {
		name  string
		check HealthCheckFunc
	}{
		{"stt", checks.STT},
		{"llm", checks.LLM},
		{"tts", checks.TTS},
		{"redis", checks.Redis},
		{"postgres", checks.Postgres},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		dependencies := make(map[string]DependencyStatus)
		allHealthy := true
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for _, d := range named {
			if d.check == nil {
				continue
			}
			start := time.Now()
			healthy, err := d.check(ctx)
			latency := time.Since(start).Milliseconds()

			status := "healthy"
			message := ""
			if err != nil || !healthy {
				status = "unhealthy"
				allHealthy = false
				if err != nil {
					message = err.Error()
				}
			}

			dependencies[d.name] = DependencyStatus{
				Status:    status,
				Message:   message,
				LatencyMs: latency,
			}
		}

		status := HealthStatus{
			Status:       "ready",
			Service:      "voice-orchestrator",
			Version:      "1.0.0",
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		if !allHealthy {
			status.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}
