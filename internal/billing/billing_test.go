package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/funcionariopro/internal/bus"
)

type recordingPublisher struct{ msgs []bus.Message }

func (r *recordingPublisher) Publish(msg bus.Message) { r.msgs = append(r.msgs, msg) }

type failingProvider struct{}

func (failingProvider) CreatePaymentLink(context.Context, CheckoutParams) (*CheckoutResponse, error) {
	return nil, errors.New("provider down")
}

func TestPlans(t *testing.T) {
	all := Plans()
	require.Len(t, all, 4)
	assert.Equal(t, PlanFree, all[0].ID)
	assert.False(t, all[0].Purchasable())

	p, err := LookupPlan(" Starter ")
	require.NoError(t, err)
	assert.Equal(t, []string{"WhatsApp", "Suporte"}, p.Features)

	p.Features[0] = "mutated"
	again, _ := LookupPlan("starter")
	assert.Equal(t, "WhatsApp", again.Features[0])

	_, err = LookupPlan("platinum")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestFakeCheckoutService_RequiresBaseURL(t *testing.T) {
	svc := NewFakeCheckoutService("", nil)
	_, err := svc.CreatePaymentLink(context.Background(), CheckoutParams{CheckoutID: uuid.New()})
	assert.Error(t, err)

	svc = NewFakeCheckoutService("ftp://example.com", nil)
	_, err = svc.CreatePaymentLink(context.Background(), CheckoutParams{CheckoutID: uuid.New()})
	assert.Error(t, err)
}

func TestFakeCheckoutService_RequiresCheckoutID(t *testing.T) {
	svc := NewFakeCheckoutService("https://example.com", nil)
	_, err := svc.CreatePaymentLink(context.Background(), CheckoutParams{SessionID: "s1"})
	assert.Error(t, err)
}

func TestFakeCheckoutService_ReturnsInternalURL(t *testing.T) {
	id := uuid.New()
	svc := NewFakeCheckoutService("https://funcionariopro.example.com/", nil)
	resp, err := svc.CreatePaymentLink(context.Background(), CheckoutParams{CheckoutID: id})
	require.NoError(t, err)
	assert.Equal(t, "https://funcionariopro.example.com/payments/fake/"+id.String(), resp.URL)
	assert.Equal(t, "fake:"+id.String(), resp.ProviderID)
}

func TestServiceCheckoutFlow(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(NewFakeCheckoutService("https://example.com", nil), NewMemoryStore(), pub, nil)
	ctx := context.Background()

	sub, err := svc.Subscription(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, sub.Active)
	assert.Equal(t, PlanFree, sub.Plan)

	c, err := svc.StartCheckout(ctx, "s1", "pro")
	require.NoError(t, err)
	assert.Equal(t, CheckoutPending, c.Status)
	assert.True(t, c.IsFake())
	assert.Contains(t, c.URL, c.ID.String())

	done, sub, err := svc.Complete(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, CheckoutCompleted, done.Status)
	assert.True(t, sub.Active)
	assert.Equal(t, PlanPro, sub.Plan)
	assert.Contains(t, sub.Features, "Analytics")

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, bus.KindPlanSelected, pub.msgs[0].Kind)
	assert.Equal(t, "s1", pub.msgs[0].SessionID)

	_, _, err = svc.Complete(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, pub.msgs, 1, "completing twice publishes once")

	stored, err := svc.Subscription(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, stored.Active)
}

func TestServiceStartCheckoutErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(nil, nil, nil, nil).StartCheckout(ctx, "s1", "pro")
	assert.ErrorIs(t, err, ErrCheckoutUnavailable)

	svc := NewService(NewFakeCheckoutService("https://example.com", nil), nil, nil, nil)
	_, err = svc.StartCheckout(ctx, "s1", "free")
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
	_, err = svc.StartCheckout(ctx, "s1", "gold")
	assert.ErrorIs(t, err, ErrUnknownPlan)

	_, err = NewService(failingProvider{}, nil, nil, nil).StartCheckout(ctx, "s1", "starter")
	assert.Error(t, err)

	_, _, err = svc.Complete(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrCheckoutNotFound)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, nil)
	ctx := context.Background()

	sub, err := store.LoadSubscription(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, FreeSubscription(), sub)

	_, err = store.LoadCheckout(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrCheckoutNotFound)

	c := Checkout{ID: uuid.New(), SessionID: "s1", Plan: PlanStarter, Status: CheckoutPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.SaveCheckout(ctx, c))
	assert.Equal(t, recordTTL, mr.TTL(checkoutKey(c.ID)))

	loaded, err := store.LoadCheckout(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.SessionID, loaded.SessionID)
	assert.Equal(t, PlanStarter, loaded.Plan)

	require.NoError(t, store.SaveSubscription(ctx, "s1", Subscription{Active: true, Plan: PlanStarter}))
	sub, err = store.LoadSubscription(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sub.Active)
}
