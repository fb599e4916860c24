package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps sessions and appointment statuses in memory.
type MemoryRepository struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	appointments map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:     make(map[string]*Session),
		appointments: make(map[string]string),
	}
}

// AddAppointment registers an appointment with the given status.
func (r *MemoryRepository) AddAppointment(id, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[id] = status
}

// AppointmentStatus returns the stored status for an appointment.
func (r *MemoryRepository) AppointmentStatus(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.appointments[id]
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) FindByAppointment(ctx context.Context, appointmentID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.AppointmentID == appointmentID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

// Create rejects an appointment ID that was never registered.
func (r *MemoryRepository) Create(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.AppointmentID != "" {
		if _, ok := r.appointments[s.AppointmentID]; !ok {
			return ErrAppointmentNotFound
		}
	}
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, appointmentID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[appointmentID]; !ok {
		return ErrAppointmentNotFound
	}
	r.appointments[appointmentID] = status
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
