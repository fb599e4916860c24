package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkflowMetrics(reg)
	m.ObserveNoteVersion("blur_manual")
	m.ObserveNoteVersion("blur_manual")
	m.ObserveAICall("soap", "ok", 1.2)
	m.ObserveEmailDelivery(true)
	m.ObserveEmailDelivery(false)
	m.ObservePlanSend("partial")
	m.ObserveStepTransition("consultation", "summary")
	m.ObserveBusyRejection("generate")
	m.ObserveCompletion("ok")

	families, err := reg.Gather()
	require.NoError(t, err)

	got := counterValue(families, "physio_notes_versions_created_total", "edit_type", "blur_manual")
	assert.Equal(t, 2.0, got)
	assert.Equal(t, 1.0, counterValue(families, "physio_plans_email_deliveries_total", "outcome", "failed"))
}

func TestWorkflowMetricsNilSafe(t *testing.T) {
	var m *WorkflowMetrics
	m.ObserveNoteVersion("final")
	m.ObserveAICall("narrative", "error", 0.1)
	m.ObserveEmailDelivery(true)
	m.ObservePlanSend("sent")
	m.ObserveStepTransition("a", "b")
	m.ObserveBusyRejection("save")
	m.ObserveCompletion("failed")
}

func counterValue(families []*dto.MetricFamily, name, label, value string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
