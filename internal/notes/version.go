// Package notes keeps the append-only ledger of SOAP note versions for each
// clinical session and enforces the one-operation-at-a-time editing protocol.
package notes

import (
	"errors"
	"time"

	"github.com/wolfman30/physioflow/internal/soap"
)

// EditType records how a version came to exist.
type EditType string

const (
	EditInitialAI   EditType = "initial_ai"
	EditAIGenerated EditType = "ai_generated"
	EditAIRevision  EditType = "ai_revision"
	EditBlurManual  EditType = "blur_manual"
	EditFinal       EditType = "final"
)

// Valid reports whether t is one of the known edit types.
func (t EditType) Valid() bool {
	switch t {
	case EditInitialAI, EditAIGenerated, EditAIRevision, EditBlurManual, EditFinal:
		return true
	}
	return false
}

var (
	// ErrBusy is returned when another generate/save/finalize is in flight for the session.
	ErrBusy = errors.New("notes: another note operation is in progress")
	// ErrVersionNotFound is returned for unknown version ids.
	ErrVersionNotFound = errors.New("notes: version not found")
	// ErrSessionRequired is returned when no session id is supplied.
	ErrSessionRequired = errors.New("notes: session id required")
)

// Version is one immutable snapshot of a session's note.
type Version struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Version     int          `json:"version"`
	Content     soap.Summary `json:"content"`
	EditType    EditType     `json:"edit_type"`
	Temporary   bool         `json:"temporary"`
	Prompt      string       `json:"prompt,omitempty"`
	FullSummary string       `json:"full_summary,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewVersion is the insert payload; the repository assigns ID, Version and CreatedAt.
type NewVersion struct {
	SessionID string
	Content   soap.Summary
	EditType  EditType
	Prompt    string
}

// Snapshot is what an editor needs to render the note panel.
type Snapshot struct {
	Versions        []Version    `json:"versions"`
	Current         soap.Summary `json:"current"`
	ActiveVersionID string       `json:"active_version_id,omitempty"`
}
