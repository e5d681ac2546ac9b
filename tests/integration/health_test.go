package integration

import (
	"net/http"
	"testing"
	"time"
)

var services = map[string]int{
	"address":   addressPort,
	"assistant": assistantPort,
}

// TestAllServicesHealthy checks /health/live on every service. Unreachable
// services are skipped so the suite runs with only some of them up.
func TestAllServicesHealthy(t *testing.T) {
	client := &http.Client{Timeout: 3 * time.Second}

	for name, port := range services {
		t.Run(name, func(t *testing.T) {
			resp, err := client.Get(baseURL(port) + "/health/live")
			if err != nil {
				t.Skipf("service %s on port %d not reachable: %v", name, port, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("service %s health check returned %d, want 200", name, resp.StatusCode)
			}
		})
	}
}

// TestAllServicesReady checks /health/ready on every service.
func TestAllServicesReady(t *testing.T) {
	client := &http.Client{Timeout: 3 * time.Second}

	for name, port := range services {
		t.Run(name, func(t *testing.T) {
			resp, err := client.Get(baseURL(port) + "/health/ready")
			if err != nil {
				t.Skipf("service %s on port %d not reachable: %v", name, port, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("service %s readiness check returned %d, want 200", name, resp.StatusCode)
			}
		})
	}
}
