package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSamplerForMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mode     string
		ratio    float64
		wantDrop bool
	}{
		{name: "off_mode_drops", mode: "off", ratio: 0.5, wantDrop: true},
		{name: "sampled_zero_ratio_drops", mode: "sampled", ratio: 0, wantDrop: true},
		{name: "sampled_full_ratio_records", mode: "sampled", ratio: 1, wantDrop: false},
		{name: "detailed_records", mode: "detailed", ratio: 0, wantDrop: false},
		{name: "errors_mode_uses_low_sampling", mode: "errors", ratio: 1, wantDrop: false},
		{name: "unknown_mode_defaults_to_sampled", mode: "unknown", ratio: 1, wantDrop: false},
	}

	params := sdktrace.SamplingParameters{}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision := samplerForMode(tc.mode, tc.ratio).ShouldSample(params).Decision
			gotDrop := decision == sdktrace.Drop
			if gotDrop != tc.wantDrop {
				t.Fatalf("ShouldSample().Decision drop=%t, want %t", gotDrop, tc.wantDrop)
			}
		})
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		config Config
	}{
		{
			name: "disabled_tracing_uses_drop_sampler",
			config: Config{
				Enabled:     false,
				ServiceName: "github-review-stats",
				TraceMode:   "off",
			},
		},
		{
			name: "enabled_sampled_tracing",
			config: Config{
				Enabled:          true,
				ServiceName:      "github-review-stats",
				TraceMode:        "sampled",
				TraceSampleRatio: 0.25,
			},
		},
		{
			name: "enabled_with_exporter_endpoint",
			config: Config{
				Enabled:          true,
				TraceMode:        "detailed",
				ExporterEndpoint: "http://127.0.0.1:4318/v1/traces",
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runtime, err := Setup(tc.config)
			if err != nil {
				t.Fatalf("Setup() unexpected error: %v", err)
			}
			if runtime.TracerProvider == nil {
				t.Fatalf("TracerProvider is nil")
			}

			if err := runtime.Shutdown(context.Background()); err != nil {
				t.Fatalf("Shutdown() unexpected error: %v", err)
			}
		})
	}
}

// Not parallel: Setup replaces the global tracer provider and trace mode.
func TestSetupExportsRepositorySpansToEndpoint(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []otlpTraceRequest
	)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body otlpTraceRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
	}))
	t.Cleanup(collector.Close)

	runtime, err := Setup(Config{
		Enabled:          true,
		TraceMode:        "detailed",
		ExporterEndpoint: collector.URL + "/v1/traces",
	})
	if err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = Setup(Config{})
	})
	if !ShouldTraceDependencies() {
		t.Fatalf("ShouldTraceDependencies() = false, want true in detailed mode")
	}

	_, span := otel.Tracer("github-review-stats/internal/collect").Start(
		context.Background(),
		"collect.repository",
		trace.WithAttributes(attribute.String("github.repo", "widgets")),
	)
	span.End()

	if err := runtime.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var (
		found       bool
		serviceName string
	)
	for _, body := range bodies {
		for _, resourceSpans := range body.ResourceSpans {
			for _, attr := range resourceSpans.Resource.Attributes {
				if attr.Key == "service.name" && attr.Value.StringValue != nil {
					serviceName = *attr.Value.StringValue
				}
			}
			for _, scopeSpans := range resourceSpans.ScopeSpans {
				if scopeSpans.Scope.Name != "github-review-stats/internal/collect" {
					continue
				}
				for _, exported := range scopeSpans.Spans {
					if exported.Name != "collect.repository" {
						continue
					}
					for _, attr := range exported.Attributes {
						if attr.Key == "github.repo" && attr.Value.StringValue != nil && *attr.Value.StringValue == "widgets" {
							found = true
						}
					}
				}
			}
		}
	}
	if !found {
		t.Fatalf("collector received %d requests without a collect.repository span for widgets", len(bodies))
	}
	if serviceName != "github-review-stats" {
		t.Fatalf("service.name = %q, want github-review-stats", serviceName)
	}
}
