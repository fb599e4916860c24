package workflow

import (
	"context"

	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/soap"
)

// LoadNotes loads the version history and makes the newest version the
// working note.
func (s *Service) LoadNotes(ctx context.Context, sessionID string) (notes.Snapshot, error) {
	live, err := s.session(ctx, sessionID)
	if err != nil {
		return notes.Snapshot{}, err
	}
	snap, err := s.notes.LoadVersions(ctx, live.sessionID)
	if err != nil {
		return notes.Snapshot{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	if len(snap.Versions) > 0 {
		live.ctrl.Update(DataUpdate{Summary: &snap.Current})
		live.activeVersion = snap.ActiveVersionID
		s.persist(ctx, live)
	}
	return snap, nil
}

// Generate produces a fresh note, or a revision of the working note when an
// instruction is given. The session lock is not held during the model call;
// overlapping note operations are rejected by the note store.
func (s *Service) Generate(ctx context.Context, sessionID, instruction string) (*notes.Version, error) {
	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	live.syncCapture()
	data := live.ctrl.Data()
	live.mu.Unlock()

	req := soap.NewRequest(data.Transcript, data.ClinicianNotes, data.Summary, instruction)
	v, err := s.notes.Generate(ctx, live.sessionID, req)
	if err != nil {
		return nil, err
	}

	live.mu.Lock()
	defer live.mu.Unlock()
	live.ctrl.Update(DataUpdate{Summary: &v.Content})
	live.activeVersion = v.ID
	s.persist(ctx, live)
	return v, nil
}

// SaveOnBlur takes the edited working note and records a manual version if
// it differs from the last saved content. (nil, nil) means nothing changed.
func (s *Service) SaveOnBlur(ctx context.Context, sessionID string, current soap.Summary) (*notes.Version, error) {
	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	live.ctrl.Update(DataUpdate{Summary: &current})
	s.persist(ctx, live)
	live.mu.Unlock()

	v, err := s.notes.SaveOnBlur(ctx, live.sessionID, current)
	if err != nil || v == nil {
		return v, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	live.activeVersion = v.ID
	s.persist(ctx, live)
	return v, nil
}

// RestoreNote makes a past version the working note.
func (s *Service) RestoreNote(ctx context.Context, sessionID, versionID string) (*notes.Version, error) {
	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	v, err := s.notes.Restore(ctx, live.sessionID, versionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	live.ctrl.Update(DataUpdate{Summary: &v.Content})
	live.activeVersion = v.ID
	s.persist(ctx, live)
	return v, nil
}
