package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/physioflow/internal/capture"
	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/internal/treatment"
	"github.com/wolfman30/physioflow/internal/workflow"
)

func decodeView(t *testing.T, body []byte) workflow.View {
	t.Helper()
	var v workflow.View
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func startSession(t *testing.T, f *apiFixture) string {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/sessions", `{"patient_id":"pat-9","appointment_id":"appt-9"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec.Body.Bytes()).SessionID
}

func TestStartSessionValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/sessions", `{"appointment_id":"appt-9"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "patient id required")

	rec = f.do(http.MethodPost, "/api/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowGateAndAdvance(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	base := "/api/sessions/" + id

	rec := f.do(http.MethodPost, base+"/workflow/advance", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, base+"/capture/notes", `{"text":"shoulder pain reaching overhead"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, base+"/workflow/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec.Body.Bytes())
	assert.Equal(t, workflow.StepSummary, view.Step)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "summary", raw["step"])

	rec = f.do(http.MethodPost, base+"/workflow/retreat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workflow.StepConsultation, decodeView(t, rec.Body.Bytes()).Step)
}

func TestWorkflowUnknownSession(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/api/sessions/missing/workflow", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestCaptureTranscriptReadOnlyWhileCapturing(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	base := "/api/sessions/" + id

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/capture/start", "").Code)
	rec := f.do(http.MethodPost, base+"/capture/fragments", `{"text":"it aches","final":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "it aches ", decodeView(t, rec.Body.Bytes()).Data.Transcript)

	rec = f.do(http.MethodPut, base+"/capture/transcript", `{"text":"manual"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/capture/stop", "").Code)
	rec = f.do(http.MethodPut, base+"/capture/transcript", `{"text":"manual"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manual", decodeView(t, rec.Body.Bytes()).Data.Transcript)

	rec = f.do(http.MethodPost, base+"/capture/fragments", `{"text":"late","final":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNotesEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	base := "/api/sessions/" + id

	rec := f.do(http.MethodPost, base+"/notes/generate", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v1 notes.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v1))
	assert.Equal(t, notes.EditAIGenerated, v1.EditType)

	rec = f.do(http.MethodPost, base+"/notes/blur", `{"subjective":"sore shoulder","assessment":"rotator cuff strain","plan":"band rows"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, base+"/notes/blur", `{"subjective":"sore shoulder","assessment":"impingement","plan":"band rows"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, base+"/notes/"+v1.ID+"/restore", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, base+"/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap notes.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Versions, 2)

	rec = f.do(http.MethodPost, base+"/notes/unknown-version/restore", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateRateLimited(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	f.generator.err = fmt.Errorf("%w: slow down", soap.ErrRateLimited)

	rec := f.do(http.MethodPost, "/api/sessions/"+id+"/notes/generate", `{"instruction":""}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestExerciseEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	base := "/api/sessions/" + id

	rec := f.do(http.MethodGet, "/api/exercises?body_area=shoulder&goal=mobility", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found struct {
		Exercises []map[string]any `json:"exercises"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found.Exercises, 1)
	assert.Equal(t, "Pendulum", found.Exercises[0]["name"])

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/exercises?limit=lots", "").Code)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/exercises", `{"exercise_id":"ex-row"}`).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/exercises", `{"exercise_id":"ex-pend"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, base+"/exercises", `{"exercise_id":"nope"}`).Code)

	rec = f.do(http.MethodPost, base+"/exercises/reorder", `{"from":1,"to":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ex-pend", decodeView(t, rec.Body.Bytes()).Data.SelectedExercises[0].Exercise.ID)

	rec = f.do(http.MethodPatch, base+"/exercises/0", `{"reps":15,"frequency":"weekly"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeView(t, rec.Body.Bytes()).Data.SelectedExercises[0]
	assert.Equal(t, 15, *first.Reps)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, base+"/exercises/0", `{"frequency":"hourly"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, base+"/exercises/7", `{"reps":5}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, base+"/exercises/x", `{"reps":5}`).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, base+"/exercises/custom", `{"name":" "}`).Code)
	rec = f.do(http.MethodPost, base+"/exercises/custom", `{"name":"Doorway stretch","body_area":"shoulder"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodDelete, base+"/exercises/ex-row", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeView(t, rec.Body.Bytes()).Data.SelectedExercises, 2)
}

func driveToFinalize(t *testing.T, f *apiFixture) string {
	t.Helper()
	id := startSession(t, f)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, f.do(http.MethodPut, base+"/capture/transcript", `{"text":"shoulder pain"}`).Code)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, base+"/notes/generate", "").Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/workflow/advance", "").Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/workflow/advance", "").Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/exercises", `{"exercise_id":"ex-row"}`).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/workflow/advance", "").Code)
	rec := f.do(http.MethodPost, base+"/workflow/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, workflow.StepFinalize, decodeView(t, rec.Body.Bytes()).Step)
	return id
}

func TestSendPlanOutcomes(t *testing.T) {
	f := newAPIFixture(t)
	id := driveToFinalize(t, f)
	base := "/api/sessions/" + id

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, base+"/plan/send", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, base+"/recipients", `{"email":"bad"}`).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/recipients", `{"email":"pat@example.com"}`).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/recipients", `{"email":"gp@example.com"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, base+"/recipients", `{"email":"gp@example.com"}`).Code)

	f.sender.failOn["gp@example.com"] = true
	rec := f.do(http.MethodPost, base+"/plan/send", `{"subject":"Your plan","body":"See you next week"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, string(treatment.OutcomePartial), report["outcome"])

	rec = f.do(http.MethodDelete, base+"/recipients/pat@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"gp@example.com"}, decodeView(t, rec.Body.Bytes()).Recipients)

	rec = f.do(http.MethodPost, base+"/plan/send", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"report"`)
}

func TestCompleteSession(t *testing.T) {
	f := newAPIFixture(t)
	id := driveToFinalize(t, f)

	rec := f.do(http.MethodPost, "/api/sessions/"+id+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res treatment.CompletionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.FinalVersion)
	assert.Equal(t, notes.EditFinal, res.FinalVersion.EditType)

	rec = f.do(http.MethodGet, "/api/sessions/"+id+"/workflow", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusForMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{notes.ErrBusy, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", notes.ErrVersionNotFound), http.StatusNotFound},
		{soap.ErrQuotaExceeded, http.StatusTooManyRequests},
		{capture.ErrDictationUnavailable, http.StatusServiceUnavailable},
		{treatment.ErrDeliveryFailed, http.StatusBadGateway},
		{workflow.ErrGateNotSatisfied, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestUpdateDataRejectsInvalidSelection(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	base := "/api/sessions/" + id

	dup := `{"selected_exercises":[{"exercise":{"id":"ex-row"},"frequency":"daily"},{"exercise":{"id":"ex-row"},"frequency":"daily"}]}`
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, base+"/workflow/data", dup).Code)
	badFreq := `{"selected_exercises":[{"exercise":{"id":"ex-row"},"frequency":"bogus"}]}`
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, base+"/workflow/data", badFreq).Code)
	unknown := `{"selected_exercises":[{"exercise":{"id":"nope"},"frequency":"daily"}]}`
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPatch, base+"/workflow/data", unknown).Code)

	rec := f.do(http.MethodPatch, base+"/workflow/data", `{"selected_exercises":[{"exercise":{"id":"ex-row"},"sets":2,"reps":8,"frequency":"daily"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	selected := decodeView(t, rec.Body.Bytes()).Data.SelectedExercises
	require.Len(t, selected, 1)
	assert.Equal(t, "Band Row", selected[0].Exercise.Name)

	rec = f.do(http.MethodPatch, base+"/exercises/0", `{"clear":["sets","reps"],"duration_seconds":45}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeView(t, rec.Body.Bytes()).Data.SelectedExercises[0]
	assert.Nil(t, first.Sets)
	assert.Nil(t, first.Reps)
	assert.Equal(t, 45, *first.DurationSeconds)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, base+"/exercises/0", `{"clear":["tempo"]}`).Code)
}

func TestCompleteBeforeFinalizeRejected(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)

	rec := f.do(http.MethodPost, "/api/sessions/"+id+"/complete", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodGet, "/api/sessions/"+id+"/workflow", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartSessionUnknownAppointment(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/api/sessions", `{"patient_id":"pat-9","appointment_id":"appt-404"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
