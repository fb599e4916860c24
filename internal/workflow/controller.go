// Package workflow sequences a clinical session through consultation,
// note summary, exercise selection, dosage configuration and finalization.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/physioflow/internal/capture"
	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/soap"
)

// ErrGateNotSatisfied is returned when the current step's exit condition is unmet.
var ErrGateNotSatisfied = errors.New("workflow: step requirements not met")

// Step is one stage of the session workflow.
type Step int

const (
	StepConsultation Step = iota
	StepSummary
	StepExercises
	StepConfigure
	StepFinalize
)

var stepNames = [...]string{"consultation", "summary", "exercises", "configure", "finalize"}

func (s Step) String() string {
	if s < StepConsultation || s > StepFinalize {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range stepNames {
		if n == name {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("workflow: unknown step %q", name)
}

// SessionData is the aggregate threaded through every step.
type SessionData struct {
	Transcript        string         `json:"transcript"`
	ClinicianNotes    string         `json:"clinician_notes"`
	Summary           soap.Summary   `json:"summary"`
	SelectedExercises exercises.Plan `json:"selected_exercises"`
}

func (d SessionData) clone() SessionData {
	d.SelectedExercises = d.SelectedExercises.Clone()
	return d
}

// DataUpdate is a partial update; nil fields are left unchanged.
type DataUpdate struct {
	Transcript        *string         `json:"transcript,omitempty"`
	ClinicianNotes    *string         `json:"clinician_notes,omitempty"`
	Summary           *soap.Summary   `json:"summary,omitempty"`
	SelectedExercises *exercises.Plan `json:"selected_exercises,omitempty"`
}

// Controller is the linear five-step state machine. It is not safe for
// concurrent use; callers serialize access.
type Controller struct {
	step Step
	data SessionData
}

func NewController() *Controller {
	return &Controller{step: StepConsultation}
}

// RestoreController resumes a controller from saved state.
func RestoreController(step Step, data SessionData) *Controller {
	if step < StepConsultation || step > StepFinalize {
		step = StepConsultation
	}
	return &Controller{step: step, data: data.clone()}
}

func (c *Controller) Step() Step { return c.step }

// Data returns a copy of the aggregate.
func (c *Controller) Data() SessionData { return c.data.clone() }

// CanAdvance reports whether the current step's gate is satisfied.
func (c *Controller) CanAdvance() error {
	switch c.step {
	case StepConsultation:
		if !capture.HasContent(c.data.Transcript, c.data.ClinicianNotes) {
			return fmt.Errorf("%w: transcript or clinician notes required", ErrGateNotSatisfied)
		}
	case StepExercises:
		if len(c.data.SelectedExercises) == 0 {
			return fmt.Errorf("%w: select at least one exercise", ErrGateNotSatisfied)
		}
	}
	return nil
}

// Advance moves forward one step. Advancing from the last step is a no-op.
func (c *Controller) Advance() (Step, error) {
	if c.step == StepFinalize {
		return c.step, nil
	}
	if err := c.CanAdvance(); err != nil {
		return c.step, err
	}
	c.step++
	return c.step, nil
}

// Retreat moves back one step. Retreating from the first step is a no-op.
func (c *Controller) Retreat() Step {
	if c.step > StepConsultation {
		c.step--
	}
	return c.step
}

// Update shallow-merges u into the aggregate.
func (c *Controller) Update(u DataUpdate) {
	if u.Transcript != nil {
		c.data.Transcript = *u.Transcript
	}
	if u.ClinicianNotes != nil {
		c.data.ClinicianNotes = *u.ClinicianNotes
	}
	if u.Summary != nil {
		c.data.Summary = *u.Summary
	}
	if u.SelectedExercises != nil {
		c.data.SelectedExercises = u.SelectedExercises.Clone()
	}
}
