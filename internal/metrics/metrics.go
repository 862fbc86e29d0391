package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics carries the pipeline counters exposed on /metrics.
type Metrics struct {
	RecordsMatched   *prometheus.CounterVec
	CandidatesTotal  *prometheus.CounterVec
	IssuesRaised     *prometheus.CounterVec
	RecordsInjected  *prometheus.CounterVec
	InjectionErrors  *prometheus.CounterVec
	InjectionBlocked prometheus.Counter
}

var Module = fx.Provide(New)

func New() *Metrics {
	m := &Metrics{
		RecordsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "madaris_dq_records_matched_total",
			Help: "Records processed by the matching engine, by entity type.",
		}, []string{"entity_type"}),
		CandidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "madaris_dq_match_candidates_total",
			Help: "Match candidates recorded, by method.",
		}, []string{"method"}),
		IssuesRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "madaris_dq_issues_raised_total",
			Help: "Data-quality issues raised, by type.",
		}, []string{"issue_type"}),
		RecordsInjected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "madaris_dq_records_injected_total",
			Help: "Records created or updated during injection.",
		}, []string{"entity_type", "outcome"}),
		InjectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "madaris_dq_injection_errors_total",
			Help: "Per-record injection failures, by entity type.",
		}, []string{"entity_type"}),
		InjectionBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "madaris_dq_injection_blocked_total",
			Help: "Live injection attempts blocked by open high-severity issues.",
		}),
	}

	prometheus.MustRegister(
		m.RecordsMatched,
		m.CandidatesTotal,
		m.IssuesRaised,
		m.RecordsInjected,
		m.InjectionErrors,
		m.InjectionBlocked,
	)
	return m
}
