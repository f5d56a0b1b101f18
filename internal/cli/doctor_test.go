package cli

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProbeEndpointReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := probeEndpoint(srv.URL, "/api/v1/telemetry/errors")
	if !result.ok {
		t.Fatalf("expected reachable backend, got: %s", result.detail)
	}
}

func TestProbeEndpointUnreachable(t *testing.T) {
	result := probeEndpoint("http://127.0.0.1:1", "/api/v1/telemetry/errors")
	if result.ok {
		t.Fatal("expected unreachable backend to fail the check")
	}
	if result.fix == "" {
		t.Fatal("expected a suggested fix")
	}
}
