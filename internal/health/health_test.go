package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestStatusEvaluatorEvaluate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		input     Input
		wantReady bool
		wantMode  Mode
	}{
		{
			name:      "collecting_healthy",
			input:     Input{Phase: PhaseCollecting, GitHubClientUsable: true, RepositoriesFinished: 4},
			wantReady: true,
			wantMode:  ModeHealthy,
		},
		{
			name:      "failed_repository_degrades",
			input:     Input{Phase: PhaseCollecting, GitHubClientUsable: true, RepositoriesFinished: 4, RepositoriesFailed: 1},
			wantReady: true,
			wantMode:  ModeDegraded,
		},
		{
			name:      "truncated_repository_degrades",
			input:     Input{Phase: PhaseScoring, GitHubClientUsable: true, RepositoriesDegraded: 2},
			wantReady: true,
			wantMode:  ModeDegraded,
		},
		{
			name:      "not_ready_without_client",
			input:     Input{Phase: PhaseStarting},
			wantReady: false,
			wantMode:  ModeUnhealthy,
		},
		{
			name:      "not_ready_after_failure",
			input:     Input{Phase: PhaseFailed, GitHubClientUsable: true},
			wantReady: false,
			wantMode:  ModeUnhealthy,
		},
	}

	evaluator := NewStatusEvaluator()
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := evaluator.Evaluate(tc.input)
			if got.Ready != tc.wantReady {
				t.Fatalf("Evaluate().Ready = %t, want %t", got.Ready, tc.wantReady)
			}
			if got.Mode != tc.wantMode {
				t.Fatalf("Evaluate().Mode = %q, want %q", got.Mode, tc.wantMode)
			}
			if got.Phase != tc.input.Phase {
				t.Fatalf("Evaluate().Phase = %q, want %q", got.Phase, tc.input.Phase)
			}
		})
	}
}

func TestTrackerCountsConcurrentProgress(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.SetGitHubClientUsable(true)
	tracker.SetPhase(PhaseCollecting)

	outcomes := []string{"succeeded", "failed", "degraded", "succeeded"}
	var wg sync.WaitGroup
	for _, outcome := range outcomes {
		wg.Go(func() {
			tracker.InFlight(1)
			tracker.RepositoryFinished(outcome)
			tracker.InFlight(-1)
		})
	}
	wg.Wait()

	status := tracker.CurrentStatus(context.Background())
	if status.Mode != ModeDegraded || !status.Ready {
		t.Fatalf("CurrentStatus() = %+v, want ready and degraded", status)
	}
	want := map[string]int{"finished": 4, "failed": 1, "degraded": 1, "in_flight": 0}
	for key, value := range want {
		if status.Repositories[key] != value {
			t.Fatalf("repositories[%s] = %d, want %d", key, status.Repositories[key], value)
		}
	}
}

type staticProvider struct {
	status Status
}

func (s *staticProvider) CurrentStatus(_ context.Context) Status {
	return s.status
}

func TestHandler(t *testing.T) {
	t.Parallel()

	evaluator := NewStatusEvaluator()
	healthyStatus := evaluator.Evaluate(Input{Phase: PhaseCollecting, GitHubClientUsable: true})
	unhealthyStatus := evaluator.Evaluate(Input{Phase: PhaseFailed, GitHubClientUsable: true})

	testCases := []struct {
		name       string
		status     Status
		path       string
		wantCode   int
		wantSubstr []string
	}{
		{
			name:       "livez_always_ok",
			status:     unhealthyStatus,
			path:       "/livez",
			wantCode:   http.StatusOK,
			wantSubstr: []string{"ok"},
		},
		{
			name:       "readyz_healthy",
			status:     healthyStatus,
			path:       "/readyz",
			wantCode:   http.StatusOK,
			wantSubstr: []string{"ready"},
		},
		{
			name:       "readyz_unhealthy",
			status:     unhealthyStatus,
			path:       "/readyz",
			wantCode:   http.StatusServiceUnavailable,
			wantSubstr: []string{"not ready"},
		},
		{
			name:       "healthz_json_contains_phase_and_mode",
			status:     healthyStatus,
			path:       "/healthz",
			wantCode:   http.StatusOK,
			wantSubstr: []string{"phase", "collecting", "mode", "repositories"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := NewHandler(&staticProvider{status: tc.status})
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("status code = %d, want %d", rec.Code, tc.wantCode)
			}
			body := rec.Body.String()
			for _, substr := range tc.wantSubstr {
				if !strings.Contains(body, substr) {
					t.Fatalf("body %q missing %q", body, substr)
				}
			}

			if tc.path == "/healthz" {
				var parsed map[string]any
				if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
					t.Fatalf("healthz body is not valid json: %v", err)
				}
			}
		})
	}
}
