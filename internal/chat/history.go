package chat

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

const historyTTL = 24 * time.Hour

// History persists chat transcripts keyed by prefix and session.
type History interface {
	Load(ctx context.Context, key string) ([]Entry, error)
	Save(ctx context.Context, key string, entries []Entry) error
	Delete(ctx context.Context, key string) error
}

type RedisHistory struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisHistory(client *redis.Client, tracer trace.Tracer) *RedisHistory {
	if client == nil {
		panic("chat: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("funcionariopro.internal.chat.history")
	}
	return &RedisHistory{redis: client, tracer: tracer}
}

// Load returns nil without error for unknown keys.
func (h *RedisHistory) Load(ctx context.Context, key string) ([]Entry, error) {
	ctx, span := h.tracer.Start(ctx, "chat.load_history")
	defer span.End()

	data, err := h.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to load history: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to decode history: %w", err)
	}
	return entries, nil
}

func (h *RedisHistory) Save(ctx context.Context, key string, entries []Entry) error {
	ctx, span := h.tracer.Start(ctx, "chat.save_history")
	defer span.End()

	data, err := json.Marshal(entries)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to marshal history: %w", err)
	}
	if err := h.redis.Set(ctx, key, data, historyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to persist history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Delete(ctx context.Context, key string) error {
	ctx, span := h.tracer.Start(ctx, "chat.delete_history")
	defer span.End()

	if err := h.redis.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to delete history: %w", err)
	}
	return nil
}

type MemoryHistory struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{entries: make(map[string][]Entry)}
}

func (h *MemoryHistory) Load(_ context.Context, key string) ([]Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	src := h.entries[key]
	if src == nil {
		return nil, nil
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out, nil
}

func (h *MemoryHistory) Save(_ context.Context, key string, entries []Entry) error {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	h.mu.Lock()
	h.entries[key] = cp
	h.mu.Unlock()
	return nil
}

func (h *MemoryHistory) Delete(_ context.Context, key string) error {
	h.mu.Lock()
	delete(h.entries, key)
	h.mu.Unlock()
	return nil
}
