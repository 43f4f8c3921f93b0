package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	weightDesc = prometheus.NewDesc(
		namespace+"_weight",
		"Average lines changed per retained pull request.",
		nil, nil,
	)
	pullRequestsDesc = prometheus.NewDesc(
		namespace+"_pull_requests",
		"Retained merged pull requests in the run.",
		nil, nil,
	)
	linesChangedDesc = prometheus.NewDesc(
		namespace+"_lines_changed",
		"Additions plus deletions across retained pull requests.",
		nil, nil,
	)
	userScoreDesc = prometheus.NewDesc(
		namespace+"_user_score",
		"Ranked score per contributor.",
		[]string{"login"}, nil,
	)
	userActivityDesc = prometheus.NewDesc(
		namespace+"_user_activity",
		"Contributor activity counters by kind.",
		[]string{"login", "kind"}, nil,
	)
)

// rankingCollector renders the latest ranking as constant metrics on every scrape.
type rankingCollector struct {
	recorder *Recorder
}

func (c *rankingCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- weightDesc
	ch <- pullRequestsDesc
	ch <- linesChangedDesc
	ch <- userScoreDesc
	ch <- userActivityDesc
}

func (c *rankingCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.recorder == nil {
		return
	}
	ranking := c.recorder.currentRanking()
	if ranking == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(weightDesc, prometheus.GaugeValue, float64(ranking.Weight))
	ch <- prometheus.MustNewConstMetric(pullRequestsDesc, prometheus.GaugeValue, float64(ranking.TotalPullRequests))
	ch <- prometheus.MustNewConstMetric(linesChangedDesc, prometheus.GaugeValue, float64(ranking.TotalLines))

	for _, ranked := range ranking.Users {
		score, err := prometheus.NewConstMetric(userScoreDesc, prometheus.GaugeValue, float64(ranked.Stats.Score), ranked.Login)
		if err != nil {
			continue
		}
		ch <- score
		activity := []struct {
			kind  string
			value uint64
		}{
			{kind: "approvals", value: ranked.Stats.Approvals},
			{kind: "comments", value: ranked.Stats.Comments},
			{kind: "requested_changes", value: ranked.Stats.RequestedChanges},
			{kind: "pull_requests", value: ranked.Stats.PullRequests},
			{kind: "additions", value: ranked.Stats.Additions},
			{kind: "deletions", value: ranked.Stats.Deletions},
			{kind: "changed_files", value: ranked.Stats.ChangedFiles},
		}
		for _, item := range activity {
			metric, err := prometheus.NewConstMetric(userActivityDesc, prometheus.GaugeValue, float64(item.value), ranked.Login, item.kind)
			if err != nil {
				continue
			}
			ch <- metric
		}
	}
}
