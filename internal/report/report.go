// Package report renders a ranking as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cam3ron2/github-review-stats/internal/stats"
)

// Document is the rendered report.
type Document struct {
	Summary Summary `json:"summary"`
	Users   []User  `json:"users"`
}

// Summary describes the run the ranking was computed from.
type Summary struct {
	Owner                string    `json:"owner"`
	Cutoff               string    `json:"cutoff"`
	GeneratedAt          time.Time `json:"generated_at"`
	Weight               uint64    `json:"weight"`
	TotalPullRequests    uint64    `json:"total_pull_requests"`
	TotalLinesChanged    uint64    `json:"total_lines_changed"`
	Repositories         int       `json:"repositories"`
	FailedRepositories   []string  `json:"failed_repositories"`
	DegradedRepositories []string  `json:"degraded_repositories"`
}

// User is one ranked contributor.
type User struct {
	Login            string `json:"login"`
	Score            uint64 `json:"Score"`
	Approvals        uint64 `json:"Approvals"`
	Comments         uint64 `json:"Comments"`
	RequestedChanges uint64 `json:"Requested Changes"`
	PullRequests     uint64 `json:"Pull Requests"`
	Additions        uint64 `json:"Additions"`
	Deletions        uint64 `json:"Deletions"`
	ChangedFiles     uint64 `json:"Changed Files"`
}

// Meta is run context that is not part of the ranking itself.
type Meta struct {
	Owner       string
	Cutoff      string
	GeneratedAt time.Time
}

// Build converts a ranking into a Document, preserving rank order.
func Build(ranking stats.Ranking, meta Meta) Document {
	doc := Document{
		Summary: Summary{
			Owner:                meta.Owner,
			Cutoff:               meta.Cutoff,
			GeneratedAt:          meta.GeneratedAt.UTC(),
			Weight:               ranking.Weight,
			TotalPullRequests:    ranking.TotalPullRequests,
			TotalLinesChanged:    ranking.TotalLines,
			Repositories:         ranking.Repositories,
			FailedRepositories:   nonNil(ranking.FailedRepositories),
			DegradedRepositories: nonNil(ranking.DegradedRepositories),
		},
		Users: make([]User, 0, len(ranking.Users)),
	}
	for _, ranked := range ranking.Users {
		doc.Users = append(doc.Users, User{
			Login:            ranked.Login,
			Score:            ranked.Stats.Score,
			Approvals:        ranked.Stats.Approvals,
			Comments:         ranked.Stats.Comments,
			RequestedChanges: ranked.Stats.RequestedChanges,
			PullRequests:     ranked.Stats.PullRequests,
			Additions:        ranked.Stats.Additions,
			Deletions:        ranked.Stats.Deletions,
			ChangedFiles:     ranked.Stats.ChangedFiles,
		})
	}
	return doc
}

// Write renders the ranking as indented JSON followed by a newline.
func Write(w io.Writer, ranking stats.Ranking, meta Meta) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Build(ranking, meta)); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
