package operator

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestParseGVR(t *testing.T) {
	tests := []struct {
		in      string
		group   string
		version string
		res     string
		wantErr bool
	}{
		{in: "example.com/v1/widgets", group: "example.com", version: "v1", res: "widgets"},
		{in: "/v1/configmaps", group: "", version: "v1", res: "configmaps"},
		{in: "widgets", wantErr: true},
		{in: "example.com/v1", wantErr: true},
		{in: "example.com//widgets", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			gvr, err := parseGVR(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseGVR(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseGVR(%q): %v", tt.in, err)
			}
			if gvr.Group != tt.group || gvr.Version != tt.version || gvr.Resource != tt.res {
				t.Errorf("parseGVR(%q) = %v", tt.in, gvr)
			}
		})
	}
}

func TestHandlerProbes(t *testing.T) {
	handler := NewHandler(prometheus.NewRegistry())

	mux := http.NewServeMux()
	if err := handler.Mount(mux); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	// Not ready until a predicate is installed.
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz before SetReady = %d", resp.StatusCode)
	}

	handler.SetReady(func() bool { return true })
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz after SetReady = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics = %d", resp.StatusCode)
	}
}
