package collect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-review-stats/internal/githubapi"
	"github.com/cam3ron2/github-review-stats/internal/paginate"
	"go.uber.org/zap"
)

const (
	sequenceMergedPullRequests = "merged_pull_requests"
	cutoffLayout               = "2006-01-02"
)

// PullRequestSource fetches one page of a repository's merged pull requests, newest-created first.
type PullRequestSource interface {
	FetchMergedPullRequests(ctx context.Context, owner, repo string, cursor paginate.Cursor) (paginate.Page[githubapi.PullRequest], error)
}

// Cutoff is an optional calendar date. Pull requests merged on or before it are excluded.
// The zero value is no cutoff.
type Cutoff struct {
	day time.Time
	set bool
}

// NewCutoff returns a cutoff at the UTC calendar date of ts.
func NewCutoff(ts time.Time) Cutoff {
	return Cutoff{day: utcDay(ts), set: true}
}

// ParseCutoff parses a YYYY-MM-DD date. An empty string yields no cutoff.
func ParseCutoff(raw string) (Cutoff, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Cutoff{}, nil
	}
	parsed, err := time.Parse(cutoffLayout, trimmed)
	if err != nil {
		return Cutoff{}, fmt.Errorf("parse cutoff date %q: %w", raw, err)
	}
	return NewCutoff(parsed), nil
}

// IsSet reports whether a cutoff date is configured.
func (c Cutoff) IsSet() bool {
	return c.set
}

// String returns the date as YYYY-MM-DD, or "none".
func (c Cutoff) String() string {
	if !c.set {
		return "none"
	}
	return c.day.Format(cutoffLayout)
}

// Excludes reports whether a pull request merged at ts falls on or before the cutoff date.
func (c Cutoff) Excludes(ts time.Time) bool {
	if !c.set {
		return false
	}
	return !utcDay(ts).After(c.day)
}

func utcDay(ts time.Time) time.Time {
	utc := ts.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// StopAtCutoff ends pagination once the last pull request of a page was merged on or before the cutoff.
//
// Pages are ordered by creation time while the cutoff applies to merge time, so this only bounds fetch
// volume; a pull request created before the boundary page but merged after the cutoff is never fetched.
// Trim is the authoritative filter.
func StopAtCutoff(cutoff Cutoff) paginate.StopFunc[githubapi.PullRequest] {
	return func(page paginate.Page[githubapi.PullRequest]) bool {
		last, ok := page.Last()
		if !ok {
			return false
		}
		return cutoff.Excludes(last.MergedAt)
	}
}

// Trim keeps only pull requests merged strictly after the cutoff, preserving order.
func Trim(prs []githubapi.PullRequest, cutoff Cutoff) []githubapi.PullRequest {
	if !cutoff.IsSet() {
		return prs
	}
	kept := make([]githubapi.PullRequest, 0, len(prs))
	for _, pr := range prs {
		if cutoff.Excludes(pr.MergedAt) {
			continue
		}
		kept = append(kept, pr)
	}
	return kept
}

// HistoryFetcher walks one repository's merged pull request history.
type HistoryFetcher struct {
	source   PullRequestSource
	logger   *zap.Logger
	recorder Recorder
}

// NewHistoryFetcher creates a HistoryFetcher.
func NewHistoryFetcher(source PullRequestSource, logger *zap.Logger, recorder Recorder) *HistoryFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryFetcher{
		source:   source,
		logger:   logger,
		recorder: recorderOrNop(recorder),
	}
}

// History is the trimmed pull request list of one repository.
type History struct {
	PullRequests []githubapi.PullRequest
	Pages        int
	// Degraded holds the page failure that cut the history short, if any.
	Degraded error
}

// Fetch returns the repository's pull requests merged after cutoff.
// Page failures end the walk and are reported in History.Degraded; only cancellation is returned as an error.
func (h *HistoryFetcher) Fetch(ctx context.Context, owner, repo string, cutoff Cutoff) (History, error) {
	if h == nil || h.source == nil {
		return History{}, fmt.Errorf("history fetcher is not initialized")
	}

	logger := h.logger.With(zap.String("owner", owner), zap.String("repo", repo))
	fetch := func(ctx context.Context, cursor paginate.Cursor) (paginate.Page[githubapi.PullRequest], error) {
		return h.source.FetchMergedPullRequests(ctx, owner, repo, cursor)
	}
	opts := paginate.Options[githubapi.PullRequest]{
		Name:   sequenceMergedPullRequests,
		Logger: logger,
		OnPage: func(_ int, err error) {
			h.recorder.PageFetched(sequenceMergedPullRequests, err)
		},
	}
	if cutoff.IsSet() {
		opts.Stop = StopAtCutoff(cutoff)
	}

	result, err := paginate.Collect(ctx, fetch, opts)
	if err != nil {
		return History{}, err
	}

	kept := Trim(result.Items, cutoff)
	truncatedReviews, truncatedComments := 0, 0
	for _, pr := range kept {
		if pr.ReviewsTruncated {
			truncatedReviews++
		}
		if pr.CommentsTruncated {
			truncatedComments++
		}
	}
	if truncatedReviews > 0 || truncatedComments > 0 {
		logger.Warn("nested lists exceeded the nested page size and were counted partially",
			zap.Int("pull_requests_with_truncated_reviews", truncatedReviews),
			zap.Int("pull_requests_with_truncated_comments", truncatedComments),
		)
	}
	logger.Debug("pull request history fetched",
		zap.Int("pages", result.Pages),
		zap.Int("fetched", len(result.Items)),
		zap.Int("kept", len(kept)),
		zap.Bool("early_stop", result.EarlyStop),
		zap.String("cutoff", cutoff.String()),
	)

	return History{
		PullRequests: kept,
		Pages:        result.Pages,
		Degraded:     result.Degraded,
	}, nil
}
