package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const recordTTL = 24 * time.Hour

var ErrCheckoutNotFound = errors.New("billing: checkout not found")

// CheckoutStatus tracks a checkout through payment.
type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "pending"
	CheckoutCompleted CheckoutStatus = "completed"
)

// Checkout is a plan purchase in flight or done.
type Checkout struct {
	ID          uuid.UUID      `json:"id"`
	SessionID   string         `json:"session_id"`
	Plan        PlanID         `json:"plan"`
	URL         string         `json:"url"`
	ProviderID  string         `json:"provider_id"`
	Status      CheckoutStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Subscription is what a session has paid for.
type Subscription struct {
	Active      bool       `json:"is_subscribed"`
	Plan        PlanID     `json:"plan"`
	Features    []string   `json:"features"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// FreeSubscription is the state of every new session.
func FreeSubscription() Subscription {
	p, _ := LookupPlan(string(PlanFree))
	return Subscription{Plan: PlanFree, Features: p.Features}
}

// Store persists checkouts and subscriptions.
type Store interface {
	SaveCheckout(ctx context.Context, c Checkout) error
	LoadCheckout(ctx context.Context, id uuid.UUID) (Checkout, error)
	SaveSubscription(ctx context.Context, sessionID string, sub Subscription) error
	// LoadSubscription returns the free subscription when none is stored.
	LoadSubscription(ctx context.Context, sessionID string) (Subscription, error)
}

// RedisStore keeps billing records as JSON.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("billing: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("funcionariopro.internal.billing")
	}
	return &RedisStore{redis: client, tracer: tracer}
}

func checkoutKey(id uuid.UUID) string {
	return fmt.Sprintf("billing:checkout:%s", id)
}

func subscriptionKey(sessionID string) string {
	return fmt.Sprintf("billing:subscription:%s", sessionID)
}

func (s *RedisStore) SaveCheckout(ctx context.Context, c Checkout) error {
	ctx, span := s.tracer.Start(ctx, "billing.save_checkout")
	defer span.End()
	if err := s.put(ctx, checkoutKey(c.ID), c); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *RedisStore) LoadCheckout(ctx context.Context, id uuid.UUID) (Checkout, error) {
	ctx, span := s.tracer.Start(ctx, "billing.load_checkout")
	defer span.End()
	var c Checkout
	found, err := s.get(ctx, checkoutKey(id), &c)
	if err != nil {
		span.RecordError(err)
		return Checkout{}, err
	}
	if !found {
		return Checkout{}, ErrCheckoutNotFound
	}
	return c, nil
}

func (s *RedisStore) SaveSubscription(ctx context.Context, sessionID string, sub Subscription) error {
	ctx, span := s.tracer.Start(ctx, "billing.save_subscription")
	defer span.End()
	if err := s.put(ctx, subscriptionKey(sessionID), sub); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *RedisStore) LoadSubscription(ctx context.Context, sessionID string) (Subscription, error) {
	ctx, span := s.tracer.Start(ctx, "billing.load_subscription")
	defer span.End()
	var sub Subscription
	found, err := s.get(ctx, subscriptionKey(sessionID), &sub)
	if err != nil {
		span.RecordError(err)
		return Subscription{}, err
	}
	if !found {
		return FreeSubscription(), nil
	}
	return sub, nil
}

func (s *RedisStore) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("billing: encode %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, data, recordTTL).Err(); err != nil {
		return fmt.Errorf("billing: persist %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("billing: load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("billing: decode %s: %w", key, err)
	}
	return true, nil
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu            sync.RWMutex
	checkouts     map[uuid.UUID]Checkout
	subscriptions map[string]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkouts:     make(map[uuid.UUID]Checkout),
		subscriptions: make(map[string]Subscription),
	}
}

func (s *MemoryStore) SaveCheckout(_ context.Context, c Checkout) error {
	s.mu.Lock()
	s.checkouts[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadCheckout(_ context.Context, id uuid.UUID) (Checkout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checkouts[id]
	if !ok {
		return Checkout{}, ErrCheckoutNotFound
	}
	return c, nil
}

func (s *MemoryStore) SaveSubscription(_ context.Context, sessionID string, sub Subscription) error {
	s.mu.Lock()
	s.subscriptions[sessionID] = sub
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadSubscription(_ context.Context, sessionID string) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[sessionID]
	if !ok {
		return FreeSubscription(), nil
	}
	return sub, nil
}
