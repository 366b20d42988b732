package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const stateTTL = 24 * time.Hour

// Store persists session state.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, st State) error
}

// RedisStore keeps state as JSON under profile:state:{id}.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed store.
func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("profile: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("funcionariopro.internal.profile")
	}
	return &RedisStore{redis: client, tracer: tracer, ttl: stateTTL}
}

func stateKey(sessionID string) string {
	return fmt.Sprintf("profile:state:%s", sessionID)
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (State, error) {
	ctx, span := s.tracer.Start(ctx, "profile.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrStateNotFound
		}
		span.RecordError(err)
		return State{}, fmt.Errorf("profile: load state: %w", err)
	}
	st, err := DecodeState(data)
	if err != nil {
		span.RecordError(err)
		return State{}, err
	}
	if st.SessionID == "" {
		st.SessionID = sessionID
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, st State) error {
	ctx, span := s.tracer.Start(ctx, "profile.save_state")
	defer span.End()

	data, err := EncodeState(st)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.redis.Set(ctx, stateKey(st.SessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("profile: persist state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (State, error) {
	s.mu.RLock()
	data, ok := s.states[sessionID]
	s.mu.RUnlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	return DecodeState(data)
}

func (s *MemoryStore) Save(_ context.Context, st State) error {
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.states[st.SessionID] = data
	s.mu.Unlock()
	return nil
}
