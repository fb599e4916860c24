package treatment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/soap"
)

func samplePlan() *Plan {
	var items exercises.Plan
	items.Add(exercises.Exercise{ID: "ex-1", Name: "Quad Set", Instructions: "Press the knee down"})
	items.Add(exercises.Exercise{ID: "ex-2", Name: "Heel <Slide>"})
	notes := "Stop if pain increases"
	_ = items.UpdateParameters(1, exercises.ParameterUpdate{Notes: &notes})
	return &Plan{ID: "plan-1", SessionID: "sess-1", PatientID: "pat-1", Status: StatusDraft, Exercises: items}
}

var sampleNote = soap.Summary{
	Subjective: "Knee pain on stairs",
	Objective:  "CLINICIAN ONLY flexion 110",
	Assessment: "Patellofemoral pain",
	Plan:       "Strengthen quadriceps",
}

func TestComposeEmailExcludesObjective(t *testing.T) {
	c := NewComposer("https://physio.example.com/")

	email, err := c.ComposeEmail(samplePlan(), sampleNote, "You are recovering well.", Message{Subject: "Your plan", Body: "Hi Sam"})
	require.NoError(t, err)

	assert.Equal(t, "Your plan", email.Subject)
	assert.Equal(t, "https://physio.example.com/plans/plan-1", email.Link)
	assert.Contains(t, email.HTML, "Knee pain on stairs")
	assert.Contains(t, email.HTML, "Patellofemoral pain")
	assert.Contains(t, email.HTML, "Strengthen quadriceps")
	assert.NotContains(t, email.HTML, "CLINICIAN ONLY")
	assert.Contains(t, email.HTML, "Hi Sam")
	assert.Contains(t, email.HTML, "You are recovering well.")
	assert.Contains(t, email.HTML, "Quad Set")
	assert.Contains(t, email.HTML, "3 sets x 10 reps, daily")
	assert.Contains(t, email.HTML, "Stop if pain increases")
	assert.Contains(t, email.HTML, `href="https://physio.example.com/plans/plan-1"`)
	assert.Contains(t, email.HTML, "Heel &lt;Slide&gt;")
}

func TestComposeEmailDefaultSubject(t *testing.T) {
	email, err := NewComposer("http://localhost:8080").ComposeEmail(&Plan{ID: "p"}, soap.Summary{}, "", Message{})
	require.NoError(t, err)
	assert.Equal(t, "Your treatment plan", email.Subject)
	assert.Contains(t, email.HTML, "No exercises were prescribed.")
}

func TestRenderPageMatchesEmailSections(t *testing.T) {
	page, err := NewComposer("http://localhost:8080").RenderPage(samplePlan(), sampleNote, "")
	require.NoError(t, err)
	assert.Contains(t, page, "<title>Your treatment plan</title>")
	assert.Contains(t, page, "Strengthen quadriceps")
	assert.Contains(t, page, "Quad Set")
	assert.NotContains(t, page, "CLINICIAN ONLY")
	assert.NotContains(t, page, "View your treatment plan online")
}
