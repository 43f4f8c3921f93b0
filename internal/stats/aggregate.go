// Package stats folds fetched pull request histories into per-contributor totals and scores them.
package stats

import (
	"github.com/cam3ron2/github-review-stats/internal/collect"
	"github.com/cam3ron2/github-review-stats/internal/githubapi"
)

// UserStats accumulates one contributor's activity. Counters only ever increase; Score is set by Finalize.
type UserStats struct {
	Approvals        uint64
	Comments         uint64
	RequestedChanges uint64
	PullRequests     uint64
	Additions        uint64
	Deletions        uint64
	ChangedFiles     uint64
	Score            uint64
}

// Aggregate maps contributor login to statistics across every contribution role.
// It is not safe for concurrent use; fetch concurrently, then reduce on one goroutine.
type Aggregate struct {
	Users map[string]*UserStats

	// PullRequests and LinesChanged are the run totals used to derive the scoring weight.
	PullRequests uint64
	LinesChanged uint64

	Repositories         int
	FailedRepositories   []string
	DegradedRepositories []string
}

// NewAggregate returns an empty Aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{Users: make(map[string]*UserStats)}
}

func (a *Aggregate) user(author githubapi.Author) *UserStats {
	key := author.Key()
	stats, ok := a.Users[key]
	if !ok {
		stats = &UserStats{}
		a.Users[key] = stats
	}
	return stats
}

// AddPullRequest credits the author with the pull request and its line counts, each reviewer with their
// disposition, and each commenter with a comment. Unrecognized dispositions count toward nothing.
func (a *Aggregate) AddPullRequest(pr githubapi.PullRequest) {
	author := a.user(pr.Author)
	author.PullRequests++
	author.Additions += pr.Additions
	author.Deletions += pr.Deletions
	author.ChangedFiles += pr.ChangedFiles
	a.PullRequests++
	a.LinesChanged += pr.Additions + pr.Deletions

	for _, review := range pr.Reviews {
		reviewer := a.user(review.Author)
		switch review.State {
		case githubapi.ReviewApproved:
			reviewer.Approvals++
		case githubapi.ReviewCommented:
			reviewer.Comments++
		case githubapi.ReviewChangesRequested:
			reviewer.RequestedChanges++
		}
	}

	for _, comment := range pr.Comments {
		a.user(comment.Author).Comments++
	}
}

// AddRepository folds one repository result. A failed repository contributes nothing but is tracked.
func (a *Aggregate) AddRepository(result collect.RepositoryResult) {
	a.Repositories++
	if result.Err != nil {
		a.FailedRepositories = append(a.FailedRepositories, result.Repo)
		return
	}
	if result.Degraded != nil {
		a.DegradedRepositories = append(a.DegradedRepositories, result.Repo)
	}
	for _, pr := range result.PullRequests {
		a.AddPullRequest(pr)
	}
}

// Reduce folds every result into a new Aggregate.
func Reduce(results []collect.RepositoryResult) *Aggregate {
	aggregate := NewAggregate()
	for _, result := range results {
		aggregate.AddRepository(result)
	}
	return aggregate
}

// ReduceStream folds results as they arrive and returns once the channel is closed.
func ReduceStream(results <-chan collect.RepositoryResult) *Aggregate {
	aggregate := NewAggregate()
	for result := range results {
		aggregate.AddRepository(result)
	}
	return aggregate
}
