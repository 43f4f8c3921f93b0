package collect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/cam3ron2/github-review-stats/internal/telemetry"
)

type exportedSpan struct {
	Name       string `json:"name"`
	Attributes []struct {
		Key   string `json:"key"`
		Value struct {
			StringValue *string `json:"stringValue"`
		} `json:"value"`
	} `json:"attributes"`
}

type traceCollector struct {
	mu    sync.Mutex
	spans []exportedSpan
}

func (c *traceCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ResourceSpans []struct {
			ScopeSpans []struct {
				Spans []exportedSpan `json:"spans"`
			} `json:"scopeSpans"`
		} `json:"resourceSpans"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, resourceSpans := range body.ResourceSpans {
		for _, scopeSpans := range resourceSpans.ScopeSpans {
			c.spans = append(c.spans, scopeSpans.Spans...)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (c *traceCollector) repositories(spanName string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var repos []string
	for _, span := range c.spans {
		if span.Name != spanName {
			continue
		}
		for _, attr := range span.Attributes {
			if attr.Key == "github.repo" && attr.Value.StringValue != nil {
				repos = append(repos, *attr.Value.StringValue)
			}
		}
	}
	slices.Sort(repos)
	return repos
}

// Not parallel: telemetry.Setup installs the global tracer provider.
func TestSchedulerExportsRepositorySpans(t *testing.T) {
	collector := &traceCollector{}
	server := httptest.NewServer(collector)
	t.Cleanup(server.Close)

	runtime, err := telemetry.Setup(telemetry.Config{
		Enabled:          true,
		TraceMode:        "detailed",
		ExporterEndpoint: server.URL + "/v1/traces",
	})
	if err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = telemetry.Setup(telemetry.Config{})
	})

	task := func(_ context.Context, _ string) (History, error) {
		return History{}, nil
	}
	results := NewScheduler(SchedulerConfig{Concurrency: 2}).Run(context.Background(), repoNames(3), task)
	if len(results) != 3 {
		t.Fatalf("Run() returned %d results, want 3", len(results))
	}

	if err := runtime.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}

	got := collector.repositories("collect.repository")
	want := []string{"repo-00", "repo-01", "repo-02"}
	if !slices.Equal(got, want) {
		t.Fatalf("exported collect.repository spans for %v, want %v", got, want)
	}
}
