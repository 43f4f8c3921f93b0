package collect

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Request describes one collection run.
type Request struct {
	Owner string
	// Repositories restricts the run to the named repositories. Empty means every repository in Owner.
	Repositories []string
	Cutoff       Cutoff
}

// Collector ties enumeration, history fetching and scheduling together.
type Collector struct {
	enumerator *Enumerator
	history    *HistoryFetcher
	scheduler  *Scheduler
	logger     *zap.Logger
}

// NewCollector creates a Collector.
func NewCollector(enumerator *Enumerator, history *HistoryFetcher, scheduler *Scheduler, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		enumerator: enumerator,
		history:    history,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// Stream resolves the repository list and starts fetching. It returns the repositories that will be
// reported on and a channel yielding one result per repository.
func (c *Collector) Stream(ctx context.Context, req Request) ([]string, <-chan RepositoryResult, error) {
	if c == nil || c.history == nil || c.scheduler == nil {
		return nil, nil, fmt.Errorf("collector is not initialized")
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return nil, nil, fmt.Errorf("organization is required")
	}

	repos := dedupe(req.Repositories)
	if len(repos) == 0 {
		if c.enumerator == nil {
			return nil, nil, fmt.Errorf("no repositories given and no enumerator configured")
		}
		listed, err := c.enumerator.Repositories(ctx, owner)
		if err != nil {
			return nil, nil, err
		}
		repos = listed
	} else {
		c.logger.Info("using configured repository subset",
			zap.String("org", owner),
			zap.Int("repositories", len(repos)),
		)
	}

	c.logger.Info("collecting merged pull requests",
		zap.String("org", owner),
		zap.Int("repositories", len(repos)),
		zap.String("cutoff", req.Cutoff.String()),
	)

	task := func(ctx context.Context, repo string) (History, error) {
		return c.history.Fetch(ctx, owner, repo, req.Cutoff)
	}
	return repos, c.scheduler.Stream(ctx, repos, task), nil
}
