package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

var ErrCheckoutUnavailable = errors.New("billing: checkout not configured")

// Service starts and completes plan checkouts.
type Service struct {
	provider CheckoutProvider
	store    Store
	bus      bus.Publisher
	logger   *logging.Logger
	now      func() time.Time
}

// NewService wires a checkout provider. A nil provider disables checkout.
func NewService(provider CheckoutProvider, store Store, publisher bus.Publisher, logger *logging.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		provider: provider,
		store:    store,
		bus:      publisher,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Subscription returns the session's current subscription.
func (s *Service) Subscription(ctx context.Context, sessionID string) (Subscription, error) {
	return s.store.LoadSubscription(ctx, sessionID)
}

// StartCheckout creates a pending checkout for planID.
func (s *Service) StartCheckout(ctx context.Context, sessionID, planID string) (Checkout, error) {
	if s.provider == nil {
		return Checkout{}, ErrCheckoutUnavailable
	}
	plan, err := LookupPlan(planID)
	if err != nil {
		return Checkout{}, err
	}
	if !plan.Purchasable() {
		return Checkout{}, ErrPlanNotPurchasable
	}

	id := uuid.New()
	link, err := s.provider.CreatePaymentLink(ctx, CheckoutParams{CheckoutID: id, SessionID: sessionID, Plan: plan})
	if err != nil {
		return Checkout{}, fmt.Errorf("billing: create payment link: %w", err)
	}
	c := Checkout{
		ID:         id,
		SessionID:  sessionID,
		Plan:       plan.ID,
		URL:        link.URL,
		ProviderID: link.ProviderID,
		Status:     CheckoutPending,
		CreatedAt:  s.now(),
	}
	if err := s.store.SaveCheckout(ctx, c); err != nil {
		return Checkout{}, err
	}
	s.logger.Info("checkout started", "session_id", sessionID, "checkout_id", id, "plan", plan.ID)
	return c, nil
}

// Checkout loads a checkout by id.
func (s *Service) Checkout(ctx context.Context, id uuid.UUID) (Checkout, error) {
	return s.store.LoadCheckout(ctx, id)
}

// Complete marks a checkout paid and activates the plan. Completing an
// already completed checkout is a no-op.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (Checkout, Subscription, error) {
	c, err := s.store.LoadCheckout(ctx, id)
	if err != nil {
		return Checkout{}, Subscription{}, err
	}
	if c.Status == CheckoutCompleted {
		sub, err := s.store.LoadSubscription(ctx, c.SessionID)
		return c, sub, err
	}
	plan, err := LookupPlan(string(c.Plan))
	if err != nil {
		return Checkout{}, Subscription{}, err
	}

	now := s.now()
	sub := Subscription{Active: true, Plan: plan.ID, Features: plan.Features, ActivatedAt: &now}
	if err := s.store.SaveSubscription(ctx, c.SessionID, sub); err != nil {
		return Checkout{}, Subscription{}, err
	}
	c.Status = CheckoutCompleted
	c.CompletedAt = &now
	if err := s.store.SaveCheckout(ctx, c); err != nil {
		return Checkout{}, Subscription{}, err
	}

	s.logger.Info("checkout completed", "session_id", c.SessionID, "checkout_id", id, "plan", plan.ID)
	s.bus.Publish(bus.Message{Kind: bus.KindPlanSelected, SessionID: c.SessionID, Payload: sub})
	return c, sub, nil
}

// IsFake reports whether a checkout was created by the demo provider.
func (c Checkout) IsFake() bool {
	return strings.HasPrefix(c.ProviderID, "fake:")
}
