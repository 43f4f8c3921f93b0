package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/github-review-stats/internal/collect"
	"github.com/cam3ron2/github-review-stats/internal/config"
	"github.com/cam3ron2/github-review-stats/internal/githubapi"
	"github.com/cam3ron2/github-review-stats/internal/health"
	"github.com/cam3ron2/github-review-stats/internal/metrics"
	"github.com/cam3ron2/github-review-stats/internal/report"
	"github.com/cam3ron2/github-review-stats/internal/stats"
	"github.com/cam3ron2/github-review-stats/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "github-review-stats: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	org        string
	repos      string
	date       string
	envFile    string
	output     string
}

func parseOptions(args []string) (options, error) {
	var opts options
	flags := flag.NewFlagSet("github-review-stats", flag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "path to YAML config file (optional)")
	flags.StringVar(&opts.org, "org", "", "GitHub organization to report on")
	flags.StringVar(&opts.repos, "repos", "", "comma-separated repository subset; skips repository listing")
	flags.StringVar(&opts.date, "date", "", "only count pull requests merged after this date (YYYY-MM-DD)")
	flags.StringVar(&opts.envFile, "env-file", "", "optional .env file loaded before credentials are resolved")
	flags.StringVar(&opts.output, "output", "", "write the report to this file instead of stdout")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if strings.TrimSpace(opts.org) == "" {
		return options{}, &config.ConfigurationError{Field: "-org", Reason: "is required"}
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cutoff, err := collect.ParseCutoff(opts.date)
	if err != nil {
		return &config.ConfigurationError{Field: "-date", Reason: err.Error()}
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
			_, _ = fmt.Fprintf(os.Stderr, "github-review-stats: sync logger: %v\n", syncErr)
		}
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "github-review-stats",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
		ExporterEndpoint: cfg.Telemetry.OTELExporterEndpoint,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	tracker := health.NewTracker()
	recorder := metrics.NewRecorder()
	if cfg.Metrics.ListenAddr != "" {
		server, err := metrics.Listen(cfg.Metrics.ListenAddr, metrics.NewRouter(recorder.Handler(), health.NewHandler(tracker)), logger)
		if err != nil {
			return err
		}
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	collector, err := buildCollector(cfg, logger, recorder, tracker)
	if err != nil {
		tracker.SetPhase(health.PhaseFailed)
		return err
	}
	tracker.SetGitHubClientUsable(true)

	ranking, err := collectAndRank(ctx, collector, collect.Request{
		Owner:        opts.org,
		Repositories: splitRepos(opts.repos),
		Cutoff:       cutoff,
	}, logger, tracker)
	if err != nil {
		tracker.SetPhase(health.PhaseFailed)
		return err
	}
	recorder.SetRanking(ranking)

	out := stdout
	if opts.output != "" {
		file, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			_ = file.Close()
		}()
		out = file
	}
	if err := report.Write(out, ranking, report.Meta{
		Owner:       opts.org,
		Cutoff:      cutoff.String(),
		GeneratedAt: time.Now(),
	}); err != nil {
		tracker.SetPhase(health.PhaseFailed)
		return err
	}

	tracker.SetPhase(health.PhaseComplete)
	logger.Info("report written",
		zap.Int("contributors", len(ranking.Users)),
		zap.Uint64("pull_requests", ranking.TotalPullRequests),
		zap.Uint64("weight", ranking.Weight),
		zap.Int("repositories", ranking.Repositories),
		zap.Strings("failed_repositories", ranking.FailedRepositories),
	)
	if cfg.Metrics.ListenAddr != "" {
		lingerForScrape(ctx, cfg.Metrics.Linger, logger)
	}
	return nil
}

// lingerForScrape keeps the metrics endpoint up for linger so the final ranking can be scraped.
// It returns early when ctx is done.
func lingerForScrape(ctx context.Context, linger time.Duration, logger *zap.Logger) {
	if linger <= 0 {
		return
	}
	logger.Info("serving final metrics before exit", zap.Duration("linger", linger))
	timer := time.NewTimer(linger)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func collectAndRank(
	ctx context.Context,
	collector *collect.Collector,
	req collect.Request,
	logger *zap.Logger,
	tracker *health.Tracker,
) (stats.Ranking, error) {
	logger.Info("fetching statistics",
		zap.String("owner", req.Owner),
		zap.String("cutoff", req.Cutoff.String()),
		zap.Int("repository_subset", len(req.Repositories)),
	)

	tracker.SetPhase(health.PhaseEnumerating)
	_, results, err := collector.Stream(ctx, req)
	if err != nil {
		return stats.Ranking{}, err
	}
	tracker.SetPhase(health.PhaseCollecting)
	aggregate := stats.ReduceStream(results)

	tracker.SetPhase(health.PhaseScoring)
	ranking, err := aggregate.Finalize()
	if err != nil {
		if errors.Is(err, stats.ErrDivisionByZero) {
			return stats.Ranking{}, fmt.Errorf("no merged pull requests retained for %s after %s: %w", req.Owner, req.Cutoff, err)
		}
		return stats.Ranking{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn("run interrupted, report covers completed repositories only", zap.Error(ctxErr))
	}
	return ranking, nil
}

func buildCollector(cfg *config.Config, logger *zap.Logger, recorder *metrics.Recorder, tracker *health.Tracker) (*collect.Collector, error) {
	authConfig := githubapi.AuthConfig{
		AppID:          cfg.GitHub.AppID,
		InstallationID: cfg.GitHub.InstallationID,
		PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
		APIBaseURL:     cfg.GitHub.APIBaseURL,
		Timeout:        cfg.GitHub.RequestTimeout,
	}
	if cfg.GitHub.UsesApp() {
		logger.Info("authenticating as github app installation",
			zap.Int64("app_id", cfg.GitHub.AppID),
			zap.Int64("installation_id", cfg.GitHub.InstallationID),
		)
	} else {
		token, source := githubapi.ResolveToken(cfg.GitHub.TokenEnv, tokenHost(cfg.GitHub.APIBaseURL))
		if token == "" {
			return nil, &config.ConfigurationError{
				Field:  "github token",
				Reason: fmt.Sprintf("not found in $%s or gh CLI credentials", cfg.GitHub.TokenEnv),
			}
		}
		logger.Info("authenticating with token", zap.String("source", source))
		authConfig.Token = token
	}

	httpClient, err := githubapi.NewHTTPClient(authConfig)
	if err != nil {
		return nil, fmt.Errorf("build github http client: %w", err)
	}
	apiClient := githubapi.NewClient(httpClient, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
	}).WithObserver(recorder)

	rest, err := githubapi.NewGitHubRESTClient(&http.Client{Transport: apiClient}, cfg.GitHub.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("build github rest client: %w", err)
	}
	lister, err := githubapi.NewRepositoryLister(rest, cfg.GitHub.PageSize)
	if err != nil {
		return nil, err
	}
	fetcher, err := githubapi.NewPullRequestFetcher(cfg.GitHub.GraphQLURL, apiClient, cfg.GitHub.PageSize, cfg.GitHub.NestedPageSize)
	if err != nil {
		return nil, err
	}

	progress := collect.MultiRecorder(recorder, tracker)
	var throttle collect.Throttle = collect.FixedCadence{
		Every:    cfg.Scheduler.CooldownEvery,
		Pause:    cfg.Scheduler.Cooldown,
		Logger:   logger,
		Recorder: progress,
	}
	if cfg.Scheduler.CooldownDisable {
		throttle = collect.NoThrottle
	}

	return collect.NewCollector(
		collect.NewEnumerator(lister, logger, progress),
		collect.NewHistoryFetcher(fetcher, logger, progress),
		collect.NewScheduler(collect.SchedulerConfig{
			Concurrency: cfg.Scheduler.Concurrency,
			Throttle:    throttle,
			Logger:      logger,
			Recorder:    progress,
		}),
		logger,
	), nil
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	configFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()
	return config.Load(configFile)
}

func splitRepos(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	repos := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			repos = append(repos, trimmed)
		}
	}
	return repos
}

// tokenHost maps an API base URL to the host the gh CLI stores credentials under.
func tokenHost(apiBaseURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(apiBaseURL))
	if err != nil || parsed.Hostname() == "" {
		return "github.com"
	}
	host := parsed.Hostname()
	if host == "api.github.com" {
		return "github.com"
	}
	return host
}

// shouldIgnoreLoggerSyncError reports whether err is the EINVAL or ENOTTY that fsync returns for terminals and pipes.
func shouldIgnoreLoggerSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
