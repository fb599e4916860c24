package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkflowMetrics exposes counters/histograms for the clinical session workflow.
type WorkflowMetrics struct {
	noteVersions    *prometheus.CounterVec
	aiCalls         *prometheus.CounterVec
	aiLatency       *prometheus.HistogramVec
	emailDeliveries *prometheus.CounterVec
	planSends       *prometheus.CounterVec
	stepTransitions *prometheus.CounterVec
	busyRejections  *prometheus.CounterVec
	completions     *prometheus.CounterVec
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		noteVersions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "notes",
			Name:      "versions_created_total",
			Help:      "SOAP note versions written, by edit type",
		}, []string{"edit_type"}),
		aiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "ai",
			Name:      "calls_total",
			Help:      "Summarization calls by kind and outcome",
		}, []string{"kind", "outcome"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physio",
			Subsystem: "ai",
			Name:      "call_latency_seconds",
			Help:      "Latency of summarization calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"kind"}),
		emailDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "plans",
			Name:      "email_deliveries_total",
			Help:      "Per-recipient treatment plan email results",
		}, []string{"outcome"}),
		planSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "plans",
			Name:      "sends_total",
			Help:      "Treatment plan send operations by aggregate outcome",
		}, []string{"outcome"}),
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "workflow",
			Name:      "step_transitions_total",
			Help:      "Workflow step changes",
		}, []string{"from", "to"}),
		busyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "notes",
			Name:      "busy_rejections_total",
			Help:      "Note operations dropped because another was in flight",
		}, []string{"operation"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "workflow",
			Name:      "session_completions_total",
			Help:      "Session completion attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.noteVersions,
		m.aiCalls,
		m.aiLatency,
		m.emailDeliveries,
		m.planSends,
		m.stepTransitions,
		m.busyRejections,
		m.completions,
	)
	return m
}

func (m *WorkflowMetrics) ObserveNoteVersion(editType string) {
	if m == nil {
		return
	}
	m.noteVersions.WithLabelValues(editType).Inc()
}

func (m *WorkflowMetrics) ObserveAICall(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.aiCalls.WithLabelValues(kind, outcome).Inc()
	m.aiLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *WorkflowMetrics) ObserveEmailDelivery(ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "sent"
	}
	m.emailDeliveries.WithLabelValues(outcome).Inc()
}

func (m *WorkflowMetrics) ObservePlanSend(outcome string) {
	if m == nil {
		return
	}
	m.planSends.WithLabelValues(outcome).Inc()
}

func (m *WorkflowMetrics) ObserveStepTransition(from, to string) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(from, to).Inc()
}

func (m *WorkflowMetrics) ObserveBusyRejection(operation string) {
	if m == nil {
		return
	}
	m.busyRejections.WithLabelValues(operation).Inc()
}

func (m *WorkflowMetrics) ObserveCompletion(outcome string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
}
