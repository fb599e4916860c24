// Package soap turns consultation transcripts into structured SOAP notes and
// patient-facing narratives using a pluggable LLM provider.
package soap

import "strings"

// Summary is the four-field clinical note.
type Summary struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// Equal reports value equality across all four fields.
func (s Summary) Equal(other Summary) bool {
	return s == other
}

// IsEmpty is true when every field is blank.
func (s Summary) IsEmpty() bool {
	return strings.TrimSpace(s.Subjective) == "" &&
		strings.TrimSpace(s.Objective) == "" &&
		strings.TrimSpace(s.Assessment) == "" &&
		strings.TrimSpace(s.Plan) == ""
}

// Request is either a FreshGeneration or a Revision.
type Request interface {
	grounding() (transcript, clinicianNotes string)
	// Instruction returns the clinician's edit instruction, empty for fresh generation.
	Instruction() string
}

// FreshGeneration extracts a note from the transcript and clinician notes.
type FreshGeneration struct {
	Transcript     string
	ClinicianNotes string
}

func (r FreshGeneration) grounding() (string, string) { return r.Transcript, r.ClinicianNotes }

// Instruction is always empty for fresh generation.
func (FreshGeneration) Instruction() string { return "" }

// Revision rewrites CurrentSummary following Instruction. The transcript and
// notes are passed along as grounding context.
type Revision struct {
	Transcript     string
	ClinicianNotes string
	CurrentSummary Summary
	EditPrompt     string
}

func (r Revision) grounding() (string, string) { return r.Transcript, r.ClinicianNotes }

// Instruction returns the trimmed edit prompt.
func (r Revision) Instruction() string { return strings.TrimSpace(r.EditPrompt) }

// NewRequest picks the variant: a non-blank instruction yields a Revision of
// current, anything else a FreshGeneration.
func NewRequest(transcript, clinicianNotes string, current Summary, instruction string) Request {
	if strings.TrimSpace(instruction) != "" {
		return Revision{
			Transcript:     transcript,
			ClinicianNotes: clinicianNotes,
			CurrentSummary: current,
			EditPrompt:     instruction,
		}
	}
	return FreshGeneration{Transcript: transcript, ClinicianNotes: clinicianNotes}
}

// NarrativeExercise is the exercise shape fed to the narrative prompt.
type NarrativeExercise struct {
	Name   string
	Dosage string
}
