package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultStateTTL = 12 * time.Hour

// ErrStateNotFound is returned when no saved workflow state exists.
var ErrStateNotFound = errors.New("workflow: state not found")

// State is the resumable part of a session's workflow. ActiveVersionID is
// the note version the working note was last generated, saved or restored from.
type State struct {
	SessionID       string      `json:"session_id"`
	PatientID       string      `json:"patient_id"`
	AppointmentID   string      `json:"appointment_id,omitempty"`
	Step            Step        `json:"step"`
	Data            SessionData `json:"data"`
	PlanID          string      `json:"plan_id,omitempty"`
	Recipients      []string    `json:"recipients,omitempty"`
	ActiveVersionID string      `json:"active_version_id,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// StateStore caches workflow state between requests and across restarts.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisStateStore keeps workflow state as JSON with a sliding TTL.
type RedisStateStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if client == nil {
		panic("workflow: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &RedisStateStore{redis: client, ttl: ttl, tracer: otel.Tracer("physio.internal.workflow.state")}
}

func stateKey(sessionID string) string {
	return fmt.Sprintf("workflow:%s", sessionID)
}

func (s *RedisStateStore) Save(ctx context.Context, state *State) error {
	ctx, span := s.tracer.Start(ctx, "workflow.save_state")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("workflow: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(state.SessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("workflow: failed to persist state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Load(ctx context.Context, sessionID string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("workflow: failed to load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("workflow: failed to decode state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, stateKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("workflow: failed to delete state: %w", err)
	}
	return nil
}

// MemoryStateStore is used when Redis is not configured.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string][]byte)}
}

func (s *MemoryStateStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("workflow: failed to marshal state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID] = data
	return nil
}

func (s *MemoryStateStore) Load(ctx context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	data, ok := s.states[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("workflow: failed to decode state: %w", err)
	}
	return &state, nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}

var (
	_ StateStore = (*RedisStateStore)(nil)
	_ StateStore = (*MemoryStateStore)(nil)
)
