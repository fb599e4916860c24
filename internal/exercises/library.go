package exercises

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/physioflow/pkg/logging"
)

const defaultSearchLimit = 50

// Filter narrows a library search. Empty fields match everything.
type Filter struct {
	BodyArea   string
	Goal       string
	Difficulty string
	Query      string
	Limit      int
}

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 200 {
		return defaultSearchLimit
	}
	return f.Limit
}

// Repository persists library exercises.
type Repository interface {
	Search(ctx context.Context, filter Filter) ([]Exercise, error)
	Get(ctx context.Context, id string) (*Exercise, error)
	Create(ctx context.Context, ex Exercise) (*Exercise, error)
}

// CustomExercise holds the fields a clinician supplies for an ad-hoc exercise.
type CustomExercise struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	BodyArea     string `json:"body_area"`
	Goal         string `json:"goal"`
	Difficulty   string `json:"difficulty"`
	Instructions string `json:"instructions"`
}

// Library is the service over the exercise catalogue.
type Library struct {
	repo   Repository
	logger *logging.Logger
}

func NewLibrary(repo Repository, logger *logging.Logger) *Library {
	if repo == nil {
		panic("exercises: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Library{repo: repo, logger: logger}
}

func (l *Library) Search(ctx context.Context, filter Filter) ([]Exercise, error) {
	return l.repo.Search(ctx, filter)
}

func (l *Library) Get(ctx context.Context, id string) (*Exercise, error) {
	return l.repo.Get(ctx, id)
}

// CreateCustom persists a new library exercise and adds it to plan. Nothing
// is written when the name is blank.
func (l *Library) CreateCustom(ctx context.Context, plan *Plan, fields CustomExercise) (*Exercise, error) {
	name := strings.TrimSpace(fields.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	ex, err := l.repo.Create(ctx, Exercise{
		Name:         name,
		Description:  strings.TrimSpace(fields.Description),
		BodyArea:     strings.TrimSpace(fields.BodyArea),
		Goal:         strings.TrimSpace(fields.Goal),
		Difficulty:   strings.TrimSpace(fields.Difficulty),
		Instructions: strings.TrimSpace(fields.Instructions),
		Custom:       true,
	})
	if err != nil {
		return nil, err
	}
	if plan != nil {
		plan.Add(*ex)
	}
	l.logger.Info("exercises: custom exercise created", "exercise_id", ex.ID, "name", ex.Name)
	return ex, nil
}

// MemoryRepository is an in-process library.
type MemoryRepository struct {
	mu        sync.RWMutex
	exercises map[string]Exercise
}

func NewMemoryRepository(seed ...Exercise) *MemoryRepository {
	r := &MemoryRepository{exercises: make(map[string]Exercise)}
	for _, ex := range seed {
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}
		r.exercises[ex.ID] = ex
	}
	return r
}

func (r *MemoryRepository) Search(ctx context.Context, filter Filter) ([]Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	var out []Exercise
	for _, ex := range r.exercises {
		if !matchesField(ex.BodyArea, filter.BodyArea) || !matchesField(ex.Goal, filter.Goal) || !matchesField(ex.Difficulty, filter.Difficulty) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(ex.Name), q) && !strings.Contains(strings.ToLower(ex.Description), q) {
			continue
		}
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

func matchesField(value, want string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(value, want)
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.exercises[id]
	if !ok {
		return nil, ErrExerciseNotFound
	}
	return &ex, nil
}

func (r *MemoryRepository) Create(ctx context.Context, ex Exercise) (*Exercise, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ex.ID = uuid.NewString()
	ex.CreatedAt = time.Now().UTC()
	r.exercises[ex.ID] = ex
	return &ex, nil
}

var _ Repository = (*MemoryRepository)(nil)
