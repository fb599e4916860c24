package workflow

import (
	"context"
	"fmt"

	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/treatment"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (s *Service) SearchExercises(ctx context.Context, filter exercises.Filter) ([]exercises.Exercise, error) {
	return s.library.Search(ctx, filter)
}

// editPlan applies fn to a copy of the selected exercises and stores the result.
func (s *Service) editPlan(ctx context.Context, sessionID string, fn func(plan *exercises.Plan) error) (*View, error) {
	return s.with(ctx, sessionID, func(live *liveSession) error {
		plan := live.ctrl.Data().SelectedExercises
		if err := fn(&plan); err != nil {
			return err
		}
		live.ctrl.Update(DataUpdate{SelectedExercises: &plan})
		return nil
	})
}

// AddExercise adds a library exercise with default dosage. Adding one that is
// already selected changes nothing.
func (s *Service) AddExercise(ctx context.Context, sessionID, exerciseID string) (*View, error) {
	ex, err := s.library.Get(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	return s.editPlan(ctx, sessionID, func(plan *exercises.Plan) error {
		plan.Add(*ex)
		return nil
	})
}

func (s *Service) RemoveExercise(ctx context.Context, sessionID, exerciseID string) (*View, error) {
	return s.editPlan(ctx, sessionID, func(plan *exercises.Plan) error {
		plan.Remove(exerciseID)
		return nil
	})
}

func (s *Service) ReorderExercise(ctx context.Context, sessionID string, from, to int) (*View, error) {
	return s.editPlan(ctx, sessionID, func(plan *exercises.Plan) error {
		plan.Reorder(from, to)
		return nil
	})
}

func (s *Service) UpdateExercise(ctx context.Context, sessionID string, index int, update exercises.ParameterUpdate) (*View, error) {
	return s.editPlan(ctx, sessionID, func(plan *exercises.Plan) error {
		return plan.UpdateParameters(index, update)
	})
}

// CreateCustomExercise saves a clinician-defined exercise to the library and
// selects it.
func (s *Service) CreateCustomExercise(ctx context.Context, sessionID string, fields exercises.CustomExercise) (*exercises.Exercise, *View, error) {
	var created *exercises.Exercise
	view, err := s.editPlan(ctx, sessionID, func(plan *exercises.Plan) error {
		ex, err := s.library.CreateCustom(ctx, plan, fields)
		if err != nil {
			return err
		}
		created = ex
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, view, nil
}

// AddRecipient validates and adds a plan recipient.
func (s *Service) AddRecipient(ctx context.Context, sessionID, addr string) (*View, error) {
	return s.with(ctx, sessionID, func(live *liveSession) error {
		_, err := live.recipients.Add(addr)
		return err
	})
}

func (s *Service) RemoveRecipient(ctx context.Context, sessionID, addr string) (*View, error) {
	return s.with(ctx, sessionID, func(live *liveSession) error {
		live.recipients.Remove(addr)
		return nil
	})
}

// SendPlan emails the treatment plan to every recipient. It is only
// available on the finalize step.
func (s *Service) SendPlan(ctx context.Context, sessionID string, msg treatment.Message) (*treatment.DeliveryReport, error) {
	ctx, span := workflowTracer.Start(ctx, "workflow.send_plan", trace.WithAttributes(attribute.String("physio.session_id", sessionID)))
	defer span.End()

	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	if live.ctrl.Step() != StepFinalize {
		live.mu.Unlock()
		return nil, fmt.Errorf("%w: plans are sent from the finalize step", ErrGateNotSatisfied)
	}
	if live.planID == "" {
		if err := s.preparePlan(ctx, live); err != nil {
			live.mu.Unlock()
			span.RecordError(err)
			return nil, err
		}
		s.persist(ctx, live)
	}
	planID, recipients := live.planID, live.recipients
	live.mu.Unlock()

	report, err := s.plans.Send(ctx, planID, recipients, msg)
	if err != nil {
		span.RecordError(err)
	}
	return report, err
}

// Complete closes the session. It is only available on the finalize step,
// where the treatment plan already exists. On success the live state is
// dropped; on failure it is kept so the clinician can retry.
func (s *Service) Complete(ctx context.Context, sessionID string) (*treatment.CompletionResult, error) {
	ctx, span := workflowTracer.Start(ctx, "workflow.complete", trace.WithAttributes(attribute.String("physio.session_id", sessionID)))
	defer span.End()

	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	if live.ctrl.Step() != StepFinalize {
		live.mu.Unlock()
		return nil, fmt.Errorf("%w: sessions are completed from the finalize step", ErrGateNotSatisfied)
	}
	req := treatment.CompleteRequest{
		SessionID:     live.sessionID,
		AppointmentID: live.appointmentID,
		PlanID:        live.planID,
	}
	live.mu.Unlock()

	res, err := s.plans.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	s.notes.Forget(live.sessionID)
	if err := s.states.Delete(ctx, live.sessionID); err != nil {
		s.logger.Warn("workflow: state delete failed", "session_id", live.sessionID, "error", err)
	}
	s.mu.Lock()
	delete(s.live, live.sessionID)
	s.mu.Unlock()
	s.logger.ForSession(live.sessionID).Info("workflow: session closed", "plan_id", req.PlanID)
	return res, nil
}
