package engine

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ftahirops/xtriage/model"
)

// Metrics holds the Prometheus instruments for the monitor and analyzer.
// A nil *Metrics records nothing.
type Metrics struct {
	Ticks            prometheus.Counter
	HeartbeatAge     prometheus.Gauge
	HangDecisions    *prometheus.CounterVec // labels: suppress, reason
	CrashVerdicts    *prometheus.CounterVec // labels: verdict
	ViewerLaunches   *prometheus.CounterVec // labels: result
	Analyses         *prometheus.CounterVec // labels: tier
	AnalysisDuration prometheus.Histogram
	SignatureMatches prometheus.Counter
	RulesFired       *prometheus.CounterVec // labels: kind

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers every instrument on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xtriage_monitor_ticks_total",
			Help: "Telemetry records processed by the monitor",
		}),
		HeartbeatAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xtriage_heartbeat_age_seconds",
			Help: "Seconds since the last heartbeat at the latest tick",
		}),
		HangDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xtriage_hang_decisions_total",
			Help: "Hang observations by suppression outcome",
		}, []string{"suppress", "reason"}),
		CrashVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xtriage_crash_verdicts_total",
			Help: "Crash events by filter verdict",
		}, []string{"verdict"}),
		ViewerLaunches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xtriage_viewer_requests_total",
			Help: "Deferred crash viewer requests by result",
		}, []string{"result"}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xtriage_analyses_total",
			Help: "Completed analyses by confidence tier",
		}, []string{"tier"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xtriage_analysis_duration_seconds",
			Help:    "Wall time of one analysis pass",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		SignatureMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xtriage_signature_matches_total",
			Help: "Analyses where a known crash signature matched",
		}),
		RulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xtriage_rules_fired_total",
			Help: "Plugin and graphics rules that fired",
		}, []string{"kind"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.Ticks, m.HeartbeatAge, m.HangDecisions, m.CrashVerdicts, m.ViewerLaunches,
		m.Analyses, m.AnalysisDuration, m.SignatureMatches, m.RulesFired,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) observeTick() {
	if m == nil {
		return
	}
	m.Ticks.Inc()
}

func (m *Metrics) observeHang(det model.HangDetection, d model.HangDecision) {
	if m == nil {
		return
	}
	m.HeartbeatAge.Set(det.SecondsSinceHeartbeat)
	if !det.IsHang {
		return
	}
	suppress := "false"
	if d.Suppress {
		suppress = "true"
	}
	m.HangDecisions.WithLabelValues(suppress, d.Reason.String()).Inc()
}

func (m *Metrics) observeVerdict(v model.FilterVerdict) {
	if m == nil {
		return
	}
	m.CrashVerdicts.WithLabelValues(v.String()).Inc()
}

func (m *Metrics) observeViewer(result string) {
	if m == nil {
		return
	}
	m.ViewerLaunches.WithLabelValues(result).Inc()
}

func (m *Metrics) observeAnalysis(d *model.Diagnosis, took time.Duration) {
	if m == nil || d == nil {
		return
	}
	m.Analyses.WithLabelValues(d.Tier.String()).Inc()
	m.AnalysisDuration.Observe(took.Seconds())
	if d.SignatureMatched {
		m.SignatureMatches.Inc()
	}
	for _, r := range d.Rules {
		m.RulesFired.WithLabelValues(string(r.Kind)).Inc()
	}
}
