// Package exercises holds the exercise library and the in-progress list of
// prescriptions a clinician builds during a session.
package exercises

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNameRequired      = errors.New("exercises: name is required")
	ErrExerciseNotFound  = errors.New("exercises: exercise not found")
	ErrInvalidFrequency  = errors.New("exercises: invalid frequency")
	ErrInvalidDosage     = errors.New("exercises: dosage values must be positive")
	ErrIndexOutOfRange   = errors.New("exercises: index out of range")
	ErrDuplicateExercise = errors.New("exercises: exercise already in plan")
	ErrUnknownField      = errors.New("exercises: unknown dosage field")
)

// Dosage fields that a ParameterUpdate can clear.
const (
	FieldSets     = "sets"
	FieldReps     = "reps"
	FieldDuration = "duration_seconds"
)

// Frequency is how often the patient performs an exercise.
type Frequency string

const (
	FrequencyDaily            Frequency = "daily"
	FrequencyTwiceDaily       Frequency = "twice_daily"
	FrequencyEveryOtherDay    Frequency = "every_other_day"
	FrequencyThreeTimesWeekly Frequency = "three_times_weekly"
	FrequencyWeekly           Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyTwiceDaily, FrequencyEveryOtherDay, FrequencyThreeTimesWeekly, FrequencyWeekly:
		return true
	}
	return false
}

// Label is the patient-facing wording.
func (f Frequency) Label() string {
	switch f {
	case FrequencyTwiceDaily:
		return "twice daily"
	case FrequencyEveryOtherDay:
		return "every other day"
	case FrequencyThreeTimesWeekly:
		return "three times a week"
	case FrequencyWeekly:
		return "weekly"
	default:
		return "daily"
	}
}

// Exercise is a library entry.
type Exercise struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	BodyArea     string    `json:"body_area,omitempty"`
	Goal         string    `json:"goal,omitempty"`
	Difficulty   string    `json:"difficulty,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	Custom       bool      `json:"custom"`
	CreatedAt    time.Time `json:"created_at"`
}

// Prescription is one exercise selected into a plan with its dosage.
type Prescription struct {
	Exercise        Exercise  `json:"exercise"`
	Sets            *int      `json:"sets,omitempty"`
	Reps            *int      `json:"reps,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	Frequency       Frequency `json:"frequency"`
	Notes           string    `json:"notes,omitempty"`
}

// Dosage renders the parameters as a short phrase, e.g. "3 sets x 10 reps, daily".
func (p Prescription) Dosage() string {
	var parts []string
	switch {
	case p.Sets != nil && p.Reps != nil:
		parts = append(parts, fmt.Sprintf("%d sets x %d reps", *p.Sets, *p.Reps))
	case p.Sets != nil:
		parts = append(parts, fmt.Sprintf("%d sets", *p.Sets))
	case p.Reps != nil:
		parts = append(parts, fmt.Sprintf("%d reps", *p.Reps))
	}
	if p.DurationSeconds != nil {
		parts = append(parts, fmt.Sprintf("%d seconds", *p.DurationSeconds))
	}
	parts = append(parts, p.Frequency.Label())
	return strings.Join(parts, ", ")
}

// ParameterUpdate is a partial dosage change; nil fields are left alone.
// Clear names optional fields to unset, e.g. ["sets", "reps"] for a
// duration-only hold.
type ParameterUpdate struct {
	Clear           []string   `json:"clear,omitempty"`
	Sets            *int       `json:"sets,omitempty"`
	Reps            *int       `json:"reps,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	Frequency       *Frequency `json:"frequency,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

func (u ParameterUpdate) validate() error {
	for _, v := range []*int{u.Sets, u.Reps, u.DurationSeconds} {
		if v != nil && *v <= 0 {
			return ErrInvalidDosage
		}
	}
	for _, field := range u.Clear {
		var set *int
		switch field {
		case FieldSets:
			set = u.Sets
		case FieldReps:
			set = u.Reps
		case FieldDuration:
			set = u.DurationSeconds
		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		if set != nil {
			return fmt.Errorf("%w: %s is both set and cleared", ErrInvalidDosage, field)
		}
	}
	if u.Frequency != nil && !u.Frequency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, *u.Frequency)
	}
	return nil
}
