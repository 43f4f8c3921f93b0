package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cam3ron2/github-review-stats/internal/collect"
)

// Phase is the stage a collection run has reached.
type Phase string

const (
	// PhaseStarting is set before any GitHub call is made.
	PhaseStarting Phase = "starting"
	// PhaseEnumerating is set while repositories are listed.
	PhaseEnumerating Phase = "enumerating"
	// PhaseCollecting is set while pull request histories are fetched.
	PhaseCollecting Phase = "collecting"
	// PhaseScoring is set while the aggregate is ranked and rendered.
	PhaseScoring Phase = "scoring"
	// PhaseComplete is set after the report was written.
	PhaseComplete Phase = "complete"
	// PhaseFailed is set when the run aborted.
	PhaseFailed Phase = "failed"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates every repository so far was fetched completely.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the run continues but some repositories failed or were truncated.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates the run cannot make progress.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents run state used for health evaluation.
type Input struct {
	Phase                Phase
	GitHubClientUsable   bool
	RepositoriesFinished int
	RepositoriesFailed   int
	RepositoriesDegraded int
	InFlight             int
}

// Status represents evaluated run health.
type Status struct {
	Phase        Phase          `json:"phase"`
	Mode         Mode           `json:"mode"`
	Ready        bool           `json:"ready"`
	Repositories map[string]int `json:"repositories"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates run health and readiness.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from run state.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	repositories := map[string]int{
		"finished":  input.RepositoriesFinished,
		"failed":    input.RepositoriesFailed,
		"degraded":  input.RepositoriesDegraded,
		"in_flight": input.InFlight,
	}

	ready := input.GitHubClientUsable && input.Phase != PhaseFailed

	mode := ModeHealthy
	if !ready {
		mode = ModeUnhealthy
	} else if input.RepositoriesFailed > 0 || input.RepositoriesDegraded > 0 {
		mode = ModeDegraded
	}

	return Status{
		Phase:        input.Phase,
		Mode:         mode,
		Ready:        ready,
		Repositories: repositories,
	}
}

// Tracker records run progress and reports it as a Provider. It is safe for concurrent use.
type Tracker struct {
	evaluator *StatusEvaluator

	mu    sync.Mutex
	input Input
}

// NewTracker creates a Tracker in PhaseStarting.
func NewTracker() *Tracker {
	return &Tracker{
		evaluator: NewStatusEvaluator(),
		input:     Input{Phase: PhaseStarting},
	}
}

// SetPhase moves the run to phase.
func (t *Tracker) SetPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.Phase = phase
}

// SetGitHubClientUsable records whether credentials resolved and the client was built.
func (t *Tracker) SetGitHubClientUsable(usable bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.GitHubClientUsable = usable
}

// PageFetched is a no-op; page failures surface through RepositoryFinished.
func (t *Tracker) PageFetched(string, error) {}

// ThrottlePaused is a no-op.
func (t *Tracker) ThrottlePaused() {}

// RepositoryFinished counts one finished repository by outcome.
func (t *Tracker) RepositoryFinished(outcome string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.RepositoriesFinished++
	switch outcome {
	case collect.OutcomeFailed:
		t.input.RepositoriesFailed++
	case collect.OutcomeDegraded:
		t.input.RepositoriesDegraded++
	}
}

// InFlight adjusts the number of repositories being fetched.
func (t *Tracker) InFlight(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.InFlight += delta
}

// CurrentStatus implements Provider.
func (t *Tracker) CurrentStatus(_ context.Context) Status {
	t.mu.Lock()
	input := t.input
	t.mu.Unlock()
	return t.evaluator.Evaluate(input)
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				return
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			return
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		//nolint:gosec // Health payload is server-generated JSON status.
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	return mux
}
