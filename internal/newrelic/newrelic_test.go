package newrelic

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bundle-deployer/internal/config"
)

func TestInitializeDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{
			name: "monitoring disabled",
			cfg:  &config.Config{NewRelicAppName: "bundle-deployer", NewRelicEnabled: false},
		},
		{
			name: "enabled without license",
			cfg:  &config.Config{NewRelicAppName: "bundle-deployer", NewRelicEnabled: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := Initialize(tt.cfg)
			if err != nil {
				t.Fatalf("Initialize returned error: %v", err)
			}
			if app == nil {
				t.Fatal("expected a disabled application, got nil")
			}
		})
	}
}

func TestWrap(t *testing.T) {
	called := false
	handler := func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}

	app, err := Initialize(&config.Config{NewRelicAppName: "bundle-deployer"})
	if err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	for _, h := range []http.HandlerFunc{Wrap(nil, "/x", handler), Wrap(app, "/x", handler)} {
		called = false
		rr := httptest.NewRecorder()
		h(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

		if !called {
			t.Error("wrapped handler was not called")
		}
		if rr.Code != http.StatusTeapot {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusTeapot)
		}
	}
}
