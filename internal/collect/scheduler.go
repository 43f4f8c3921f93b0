package collect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cam3ron2/github-review-stats/internal/githubapi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of repositories fetched at once when none is configured.
const DefaultConcurrency = 5

// Task fetches the history of one repository.
type Task func(ctx context.Context, repo string) (History, error)

// RepositoryResult is the outcome of one repository task.
type RepositoryResult struct {
	Repo         string
	PullRequests []githubapi.PullRequest
	// Degraded is set when pagination ended early on a page failure; PullRequests holds what was fetched.
	Degraded error
	// Err is set when the task failed; PullRequests is empty.
	Err     error
	Elapsed time.Duration
}

// Outcome classifies the result for logging and metrics.
func (r RepositoryResult) Outcome() string {
	switch {
	case r.Err != nil:
		return OutcomeFailed
	case r.Degraded != nil:
		return OutcomeDegraded
	default:
		return OutcomeSucceeded
	}
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Concurrency int
	Throttle    Throttle
	Logger      *zap.Logger
	Recorder    Recorder
}

// Scheduler runs one task per repository with at most Concurrency tasks fetching at once.
type Scheduler struct {
	concurrency int
	throttle    Throttle
	logger      *zap.Logger
	recorder    Recorder
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Throttle == nil {
		cfg.Throttle = NoThrottle
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		concurrency: cfg.Concurrency,
		throttle:    cfg.Throttle,
		logger:      cfg.Logger,
		recorder:    recorderOrNop(cfg.Recorder),
	}
}

// Stream submits one task per repository and yields exactly one result per repository in completion order.
// The channel is closed after every task has finished. A failing task never cancels its siblings.
// If ctx is cancelled, repositories not yet submitted are reported with the context error.
func (s *Scheduler) Stream(ctx context.Context, repos []string, task Task) <-chan RepositoryResult {
	results := make(chan RepositoryResult, len(repos))
	gate := semaphore.NewWeighted(int64(s.concurrency))

	go func() {
		defer close(results)

		var wg sync.WaitGroup
		for i, repo := range repos {
			if err := s.throttle.Admit(ctx, i); err != nil {
				for _, skipped := range repos[i:] {
					results <- s.finish(RepositoryResult{Repo: skipped, Err: fmt.Errorf("not submitted: %w", err)})
				}
				break
			}
			s.logger.Info("processing repository", zap.String("repo", repo), zap.Int("index", i))
			wg.Go(func() {
				results <- s.finish(s.runTask(ctx, gate, repo, task))
			})
		}
		wg.Wait()
	}()

	return results
}

// Run is Stream drained into a slice.
func (s *Scheduler) Run(ctx context.Context, repos []string, task Task) []RepositoryResult {
	collected := make([]RepositoryResult, 0, len(repos))
	for result := range s.Stream(ctx, repos, task) {
		collected = append(collected, result)
	}
	return collected
}

func (s *Scheduler) runTask(ctx context.Context, gate *semaphore.Weighted, repo string, task Task) (result RepositoryResult) {
	result.Repo = repo
	if err := gate.Acquire(ctx, 1); err != nil {
		result.Err = fmt.Errorf("wait for fetch slot: %w", err)
		return result
	}
	defer gate.Release(1)

	s.recorder.InFlight(1)
	defer s.recorder.InFlight(-1)

	ctx, span := otel.Tracer("github-review-stats/internal/collect").Start(
		ctx,
		"collect.repository",
		trace.WithAttributes(attribute.String("github.repo", repo)),
	)
	defer span.End()

	started := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = RepositoryResult{Repo: repo, Err: fmt.Errorf("task panicked: %v", recovered)}
		}
		result.Elapsed = time.Since(started)
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
			return
		}
		span.SetAttributes(attribute.Int("github.pull_requests", len(result.PullRequests)))
		span.SetStatus(codes.Ok, result.Outcome())
	}()

	history, err := task(ctx, repo)
	if err != nil {
		result.Err = err
		return result
	}
	result.PullRequests = history.PullRequests
	result.Degraded = history.Degraded
	return result
}

func (s *Scheduler) finish(result RepositoryResult) RepositoryResult {
	outcome := result.Outcome()
	s.recorder.RepositoryFinished(outcome)

	fields := []zap.Field{
		zap.String("repo", result.Repo),
		zap.String("outcome", outcome),
		zap.Int("pull_requests", len(result.PullRequests)),
		zap.Duration("elapsed", result.Elapsed),
	}
	switch outcome {
	case OutcomeFailed:
		s.logger.Error("repository fetch failed, contributing nothing", append(fields, zap.Error(result.Err))...)
	case OutcomeDegraded:
		s.logger.Warn("repository fetch incomplete", append(fields, zap.Error(result.Degraded))...)
	default:
		s.logger.Debug("repository fetched", fields...)
	}
	return result
}
