package treatment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/physioflow/internal/exercises"
)

// Repository persists treatment plans and their prescriptions.
type Repository interface {
	// FindBySessionPatient returns (nil, nil) when no plan exists.
	FindBySessionPatient(ctx context.Context, sessionID, patientID string) (*Plan, error)
	// Create inserts a draft plan, returning the existing row if another
	// writer created one first.
	Create(ctx context.Context, sessionID, patientID string) (*Plan, error)
	Get(ctx context.Context, id string) (*Plan, error)
	ReplaceExercises(ctx context.Context, planID string, items exercises.Plan) error
	MarkSent(ctx context.Context, planID string, at time.Time) error
}

// MemoryRepository stores plans in memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[string]*Plan)}
}

func (r *MemoryRepository) findLocked(sessionID, patientID string) *Plan {
	for _, p := range r.plans {
		if p.SessionID == sessionID && p.PatientID == patientID {
			return p
		}
	}
	return nil
}

func (r *MemoryRepository) FindBySessionPatient(ctx context.Context, sessionID, patientID string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(sessionID, patientID).clone(), nil
}

func (r *MemoryRepository) Create(ctx context.Context, sessionID, patientID string) (*Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.findLocked(sessionID, patientID); existing != nil {
		return existing.clone(), nil
	}
	now := time.Now().UTC()
	p := &Plan{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		PatientID: patientID,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.plans[p.ID] = p
	return p.clone(), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return p.clone(), nil
}

func (r *MemoryRepository) ReplaceExercises(ctx context.Context, planID string, items exercises.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	p.Exercises = items.Clone()
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) MarkSent(ctx context.Context, planID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	p.Status = StatusSent
	sent := at.UTC()
	p.SentAt = &sent
	p.UpdatedAt = sent
	return nil
}

// Count returns how many plans are stored.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plans)
}

var _ Repository = (*MemoryRepository)(nil)
