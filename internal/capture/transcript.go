// Package capture accumulates the consultation transcript from a dictation
// stream alongside the clinician's free-text notes.
package capture

import (
	"errors"
	"strings"
	"sync"
)

var (
	// ErrCaptureActive is returned for manual transcript edits while dictation runs.
	ErrCaptureActive = errors.New("capture: transcript is read-only while capturing")
	// ErrNotCapturing is returned for dictation fragments that arrive after Stop.
	ErrNotCapturing = errors.New("capture: not capturing")
	// ErrDictationUnavailable means the session has no dictation source; manual entry still works.
	ErrDictationUnavailable = errors.New("capture: dictation unavailable")
)

// State is a point-in-time view of a capture session.
type State struct {
	Transcript         string `json:"transcript"`
	ClinicianNotes     string `json:"clinician_notes"`
	Interim            string `json:"interim,omitempty"`
	Capturing          bool   `json:"capturing"`
	DictationAvailable bool   `json:"dictation_available"`
	LastError          string `json:"last_error,omitempty"`
}

// Ready reports whether there is enough material to summarize.
func (s State) Ready() bool {
	return HasContent(s.Transcript, s.ClinicianNotes)
}

// HasContent is the consultation gate: transcript or notes must be non-empty.
func HasContent(transcript, clinicianNotes string) bool {
	return strings.TrimSpace(transcript) != "" || strings.TrimSpace(clinicianNotes) != ""
}

// Transcript is safe for concurrent use.
type Transcript struct {
	mu        sync.Mutex
	text      string
	notes     string
	interim   string
	capturing bool
	available bool
	lastErr   string
}

// New starts from previously saved text. dictationAvailable is false on
// platforms without a dictation source.
func New(transcript, clinicianNotes string, dictationAvailable bool) *Transcript {
	return &Transcript{text: transcript, notes: clinicianNotes, available: dictationAvailable}
}

// Start begins capture. Starting twice is harmless.
func (t *Transcript) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.available {
		return ErrDictationUnavailable
	}
	t.capturing = true
	t.lastErr = ""
	return nil
}

// Stop ends capture and discards any unconfirmed interim text.
func (t *Transcript) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capturing = false
	t.interim = ""
}

// Fail stops capture after a dictation error. The transcript so far is kept
// and manual editing becomes available again.
func (t *Transcript) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capturing = false
	t.interim = ""
	if err != nil {
		t.lastErr = err.Error()
	}
}

// Disable marks the dictation source as unavailable for the rest of the session.
func (t *Transcript) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.available = false
	t.capturing = false
	t.interim = ""
	t.lastErr = ErrDictationUnavailable.Error()
}

// Interim shows unconfirmed text. It never reaches the transcript.
func (t *Transcript) Interim(fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capturing {
		t.interim = fragment
	}
}

// AppendFinal concatenates a confirmed fragment followed by a single space.
func (t *Transcript) AppendFinal(fragment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.capturing {
		return ErrNotCapturing
	}
	t.interim = ""
	if strings.TrimSpace(fragment) == "" {
		return nil
	}
	t.text += fragment + " "
	return nil
}

// SetTranscript replaces the transcript with a manual edit.
func (t *Transcript) SetTranscript(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capturing {
		return ErrCaptureActive
	}
	t.text = text
	return nil
}

// SetNotes replaces the clinician notes. Notes stay editable during capture.
func (t *Transcript) SetNotes(notes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notes = notes
}

func (t *Transcript) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Transcript:         t.text,
		ClinicianNotes:     t.notes,
		Interim:            t.interim,
		Capturing:          t.capturing,
		DictationAvailable: t.available,
		LastError:          t.lastErr,
	}
}
