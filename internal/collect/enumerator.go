package collect

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/github-review-stats/internal/paginate"
	"go.uber.org/zap"
)

const sequenceOrgRepositories = "org_repositories"

// RepositoryLister lists one page of an organization's repositories.
type RepositoryLister interface {
	ListRepositories(ctx context.Context, org string, cursor paginate.Cursor) (paginate.Page[string], error)
}

// Enumerator lists every repository visible in an organization.
type Enumerator struct {
	lister   RepositoryLister
	logger   *zap.Logger
	recorder Recorder
}

// NewEnumerator creates an Enumerator.
func NewEnumerator(lister RepositoryLister, logger *zap.Logger, recorder Recorder) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{
		lister:   lister,
		logger:   logger,
		recorder: recorderOrNop(recorder),
	}
}

// Repositories returns the organization's repository names in listing order, without duplicates.
// A failure on the first page is returned; later page failures truncate the list and are logged.
func (e *Enumerator) Repositories(ctx context.Context, org string) ([]string, error) {
	if e == nil || e.lister == nil {
		return nil, fmt.Errorf("repository enumerator is not initialized")
	}
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}

	fetch := func(ctx context.Context, cursor paginate.Cursor) (paginate.Page[string], error) {
		return e.lister.ListRepositories(ctx, trimmedOrg, cursor)
	}
	result, err := paginate.Collect(ctx, fetch, paginate.Options[string]{
		Name:            sequenceOrgRepositories,
		StrictFirstPage: true,
		Logger:          e.logger.With(zap.String("org", trimmedOrg)),
		OnPage: func(_ int, err error) {
			e.recorder.PageFetched(sequenceOrgRepositories, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list repositories for %q: %w", trimmedOrg, err)
	}

	repos := dedupe(result.Items)
	if !result.Complete() {
		e.logger.Error("repository list is incomplete",
			zap.String("org", trimmedOrg),
			zap.Int("pages", result.Pages),
			zap.Int("repositories", len(repos)),
			zap.Error(result.Degraded),
		)
	}
	e.logger.Info("repositories enumerated",
		zap.String("org", trimmedOrg),
		zap.Int("pages", result.Pages),
		zap.Int("repositories", len(repos)),
	)
	return repos, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}
	return unique
}
