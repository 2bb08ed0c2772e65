package health

import (
	"encoding/json"
	"net/http"
)

func writeResponse(w http.ResponseWriter, code int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}

// HTTPHandler returns an HTTP handler for the health check endpoint.
// Degraded answers 207 Multi-Status so probes can tell it from healthy.
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Check()

		code := http.StatusOK
		switch response.Status {
		case StatusDegraded:
			code = http.StatusMultiStatus
		case StatusUnhealthy:
			code = http.StatusServiceUnavailable
		}

		writeResponse(w, code, response)
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.CheckReadiness()

		// Degraded still serves traffic
		code := http.StatusOK
		if response.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}

		writeResponse(w, code, response)
	}
}

// LivenessHandler returns an HTTP handler for liveness checks
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.CheckLiveness()

		// Liveness is binary - either alive or not
		code := http.StatusOK
		if response.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}

		writeResponse(w, code, response)
	}
}
