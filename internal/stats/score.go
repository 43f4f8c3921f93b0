package stats

import (
	"errors"
	"slices"
	"strings"
)

// ErrDivisionByZero is returned when a weight is requested for a run with no retained pull requests.
var ErrDivisionByZero = errors.New("stats: weight undefined for zero pull requests")

// Weight returns the average lines changed per pull request, truncated.
func (a *Aggregate) Weight() (uint64, error) {
	if a.PullRequests == 0 {
		return 0, ErrDivisionByZero
	}
	return a.LinesChanged / a.PullRequests, nil
}

// Score computes weight*approvals + weight*comments + 2*weight*requested + additions + (weight/10)*deletions
// with truncating integer division.
func Score(stats UserStats, weight uint64) uint64 {
	return weight*stats.Approvals +
		weight*stats.Comments +
		2*weight*stats.RequestedChanges +
		stats.Additions +
		(weight/10)*stats.Deletions
}

// Ranked is one contributor in a Ranking.
type Ranked struct {
	Login string
	Stats UserStats
}

// Ranking is the scored, ordered output of a run.
type Ranking struct {
	Weight               uint64
	TotalPullRequests    uint64
	TotalLines           uint64
	Repositories         int
	FailedRepositories   []string
	DegradedRepositories []string
	Users                []Ranked
}

// Rank scores every contributor with weight and orders them by score descending, then login ascending.
func (a *Aggregate) Rank(weight uint64) []Ranked {
	ranked := make([]Ranked, 0, len(a.Users))
	for login, stats := range a.Users {
		scored := *stats
		scored.Score = Score(scored, weight)
		ranked = append(ranked, Ranked{Login: login, Stats: scored})
	}
	slices.SortFunc(ranked, func(left, right Ranked) int {
		switch {
		case left.Stats.Score > right.Stats.Score:
			return -1
		case left.Stats.Score < right.Stats.Score:
			return 1
		default:
			return strings.Compare(left.Login, right.Login)
		}
	})
	return ranked
}

// Finalize derives the weight from the run totals and ranks every contributor.
func (a *Aggregate) Finalize() (Ranking, error) {
	weight, err := a.Weight()
	if err != nil {
		return Ranking{}, err
	}
	return Ranking{
		Weight:               weight,
		TotalPullRequests:    a.PullRequests,
		TotalLines:           a.LinesChanged,
		Repositories:         a.Repositories,
		FailedRepositories:   slices.Sorted(slices.Values(a.FailedRepositories)),
		DegradedRepositories: slices.Sorted(slices.Values(a.DegradedRepositories)),
		Users:                a.Rank(weight),
	}, nil
}
