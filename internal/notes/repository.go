package notes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists note versions. Append assigns version = max+1 for the
// session; PromoteLatest marks the highest version final and removes every
// other row for the session.
type Repository interface {
	List(ctx context.Context, sessionID string) ([]Version, error)
	Get(ctx context.Context, id string) (*Version, error)
	Latest(ctx context.Context, sessionID string) (*Version, error)
	Append(ctx context.Context, v NewVersion) (*Version, error)
	PromoteLatest(ctx context.Context, sessionID string) (*Version, error)
	SetFullSummary(ctx context.Context, id string, fullSummary string) error
}

// MemoryRepository keeps versions in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	versions map[string]*Version
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string]*Version)}
}

func (r *MemoryRepository) List(ctx context.Context, sessionID string) ([]Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(sessionID), nil
}

func (r *MemoryRepository) listLocked(sessionID string) []Version {
	var out []Version
	for _, v := range r.versions {
		if v.SessionID == sessionID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[id]
	if !ok {
		return nil, ErrVersionNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *MemoryRepository) Latest(ctx context.Context, sessionID string) (*Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.listLocked(sessionID)
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (r *MemoryRepository) Append(ctx context.Context, nv NewVersion) (*Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := 1
	if list := r.listLocked(nv.SessionID); len(list) > 0 {
		next = list[0].Version + 1
	}
	v := &Version{
		ID:        uuid.NewString(),
		SessionID: nv.SessionID,
		Version:   next,
		Content:   nv.Content,
		EditType:  nv.EditType,
		Temporary: true,
		Prompt:    nv.Prompt,
		CreatedAt: time.Now().UTC(),
	}
	r.versions[v.ID] = v
	cp := *v
	return &cp, nil
}

func (r *MemoryRepository) PromoteLatest(ctx context.Context, sessionID string) (*Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.listLocked(sessionID)
	if len(list) == 0 {
		return nil, nil
	}
	latest := r.versions[list[0].ID]
	latest.Temporary = false
	latest.EditType = EditFinal
	for _, v := range list[1:] {
		delete(r.versions, v.ID)
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) SetFullSummary(ctx context.Context, id string, fullSummary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return ErrVersionNotFound
	}
	v.FullSummary = fullSummary
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
