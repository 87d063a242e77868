package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(tagsProtected, reconcileAnomalies, linesTranslated, qualityIssues)
}

var (
	tagsProtected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gameloc_tags_protected_total",
			Help: "Markup spans replaced by placeholders before translation.",
		},
	)

	reconcileAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameloc_reconcile_anomalies_total",
			Help: "Result records repaired with marker lines, by kind.",
		},
		[]string{"kind"},
	)

	linesTranslated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gameloc_lines_reconciled_total",
			Help: "Lines produced by reconciliation, markers included.",
		},
	)

	qualityIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameloc_quality_issues_total",
			Help: "Restored lines flagged by the post-translation checks, by kind.",
		},
		[]string{"kind"},
	)
)

func TagsProtected(n int) {
	tagsProtected.Add(float64(n))
}

func ReconcileAnomaly(kind string) {
	reconcileAnomalies.WithLabelValues(kind).Inc()
}

func LinesReconciled(n int) {
	linesTranslated.Add(float64(n))
}

func QualityIssue(kind string) {
	qualityIssues.WithLabelValues(kind).Inc()
}
