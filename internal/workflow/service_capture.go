package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/physioflow/internal/capture"
)

func (s *Service) StartCapture(ctx context.Context, sessionID string) (*View, error) {
	return s.with(ctx, sessionID, func(live *liveSession) error {
		if live.ctrl.Step() != StepConsultation {
			return fmt.Errorf("%w: capture runs during consultation", ErrGateNotSatisfied)
		}
		return live.capture.Start()
	})
}

func (s *Service) StopCapture(ctx context.Context, sessionID string) (*View, error) {
	return s.with(ctx, sessionID, func(live *liveSession) error {
		live.capture.Stop()
		live.syncCapture()
		return nil
	})
}

// AppendFragment feeds one dictation result. Interim text is display-only
// and is not persisted.
func (s *Service) AppendFragment(ctx context.Context, sessionID, text string, final bool) (*View, error) {
	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	if !final {
		live.capture.Interim(text)
		return live.view(), nil
	}
	if err := live.capture.AppendFinal(text); err != nil {
		return nil, err
	}
	live.syncCapture()
	s.persist(ctx, live)
	return live.view(), nil
}

// CaptureFailed stops capture after a dictation error, keeping the text so
// far. An unavailable source disables dictation for the session.
func (s *Service) CaptureFailed(ctx context.Context, sessionID string, cause error) (*View, error) {
	return s.with(ctx, sessionID, func(live *liveSession) error {
		if errors.Is(cause, capture.ErrDictationUnavailable) {
			live.capture.Disable()
		} else {
			live.capture.Fail(cause)
		}
		live.syncCapture()
		s.logger.ForSession(live.sessionID).Warn("workflow: dictation stopped", "error", cause)
		return nil
	})
}

func (s *Service) SetTranscript(ctx context.Context, sessionID, text string) (*View, error) {
	return s.UpdateData(ctx, sessionID, DataUpdate{Transcript: &text})
}

func (s *Service) SetNotes(ctx context.Context, sessionID, text string) (*View, error) {
	return s.UpdateData(ctx, sessionID, DataUpdate{ClinicianNotes: &text})
}
