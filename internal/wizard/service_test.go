package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/internal/chat"
	"github.com/wolfman30/funcionariopro/internal/llm"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/publish"
	"github.com/wolfman30/funcionariopro/internal/simulation"
)

const validScript = `{"simulation":[
{"id":1,"sender":"customer","content":"Oi, vocês abrem domingo?","delay":900},
{"id":2,"sender":"bot","content":"Abrimos sim, das 8h às 14h!","delay":1200}]}`

type stubGenerator struct{}

func (stubGenerator) Prompt(_ context.Context, prompt string) string {
	if strings.Contains(prompt, "CONVERSA ATÉ AGORA") {
		return `{"response":"Temos pão de queijo quentinho."}`
	}
	return validScript
}

type instantSleeper struct{}

func (instantSleeper) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type recordingBus struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (r *recordingBus) Publish(msg bus.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingBus) kinds() []bus.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Kind, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	svc *Service
	bus *recordingBus
	llm func(context.Context, llm.Request) (llm.Response, error)
	mu  sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{bus: &recordingBus{}}
	f.llm = func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: "Claro! Como posso ajudar?"}, nil
	}
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		f.mu.Lock()
		fn := f.llm
		f.mu.Unlock()
		return fn(ctx, req)
	})

	engine := simulation.NewEngine(stubGenerator{}, simulation.Options{Sleeper: instantSleeper{}, Publisher: f.bus})
	t.Cleanup(engine.Close)

	f.svc = NewService(Deps{
		Profiles:    profile.NewController(profile.NewMemoryStore(), f.bus, nil),
		Simulations: engine,
		AgentChat:   chat.NewService(chat.AgentPersona, client, nil, nil, time.Second, nil),
		Calibration: chat.NewService(chat.CalibrationPersona, client, nil, nil, time.Second, nil),
		Billing:     billing.NewService(billing.NewFakeCheckoutService("https://example.com", nil), nil, f.bus, nil),
		Publisher:   publish.NewService(nil, nil, f.bus, nil),
		Bus:         f.bus,
	})
	return f
}

func (f *fixture) failLLM() {
	f.mu.Lock()
	f.llm = func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("provider down")
	}
	f.mu.Unlock()
}

func strPtr(s string) *string { return &s }

func configure(t *testing.T, f *fixture, id string) {
	t.Helper()
	_, err := f.svc.UpdateProfile(context.Background(), id, profile.Patch{
		Name:        strPtr("Padaria Pão Quente"),
		Description: strPtr("Padaria artesanal no centro"),
	})
	require.NoError(t, err)
}

func TestCreateFromTemplate(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Create(context.Background(), "Restaurante")
	require.NoError(t, err)

	assert.NotEmpty(t, v.SessionID)
	assert.Equal(t, StepConfigure, v.Step)
	assert.Equal(t, "restaurante", v.Profile.Category)
	assert.Equal(t, profile.DefaultPersonality, v.Profile.Personality)
	assert.NotEmpty(t, v.Profile.Hours)
	assert.Contains(t, v.TemplateInfo, "Horários:")
	assert.False(t, v.Configured)
	assert.False(t, v.Subscription.Active)
	require.Len(t, v.Steps, 3)
	assert.False(t, v.Steps[1].Available)

	_, err = f.svc.Create(context.Background(), "padaria-espacial")
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	blank, err := f.svc.Create(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, blank.Template)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.StartSimulation(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Chat(ctx, "nope", "oi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.Close(ctx, "nope"), ErrSessionNotFound)
}

func TestStepGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "salao")
	require.NoError(t, err)

	_, err = f.svc.SetStep(ctx, v.SessionID, StepTest)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = f.svc.SetStep(ctx, v.SessionID, Step("launch"))
	assert.ErrorIs(t, err, ErrInvalidStep)

	configure(t, f, v.SessionID)
	v, err = f.svc.SetStep(ctx, v.SessionID, StepTest)
	require.NoError(t, err)
	assert.Equal(t, StepTest, v.Step)
	assert.True(t, v.Steps[2].Available)

	_, err = f.svc.SetStep(ctx, v.SessionID, StepPublish)
	assert.ErrorIs(t, err, ErrUpgradeRequired)
	assert.Contains(t, f.bus.kinds(), bus.KindUpgradeRequested)

	v, err = f.svc.Get(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StepTest, v.Step, "a refused step leaves the wizard where it was")
}

func TestCheckoutUnlocksPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "restaurante")
	require.NoError(t, err)
	configure(t, f, v.SessionID)

	_, err = f.svc.Publish(ctx, v.SessionID, publish.Request{WhatsAppNumber: "11987654321"})
	assert.ErrorIs(t, err, ErrUpgradeRequired)

	c, err := f.svc.Checkout(ctx, v.SessionID, "starter")
	require.NoError(t, err)
	assert.Contains(t, c.URL, "/payments/fake/")

	v, err = f.svc.CompleteCheckout(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPublish, v.Step)
	assert.True(t, v.Subscription.Active)
	assert.Equal(t, billing.PlanStarter, v.Subscription.Plan)

	agent, err := f.svc.Publish(ctx, v.SessionID, publish.Request{WhatsAppNumber: "11987654321"})
	require.NoError(t, err)
	assert.Equal(t, "starter", agent.Plan)
	assert.Equal(t, "Padaria Pão Quente", agent.Profile.Name)
	assert.Contains(t, f.bus.kinds(), bus.KindPlanSelected)
	assert.Contains(t, f.bus.kinds(), bus.KindAgentPublished)
}

func TestSimulationAndFollowUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "restaurante")
	require.NoError(t, err)

	_, err = f.svc.StartSimulation(ctx, v.SessionID)
	assert.ErrorIs(t, err, ErrNotConfigured)

	configure(t, f, v.SessionID)
	_, err = f.svc.Ask(ctx, v.SessionID, "Tem café?")
	assert.ErrorIs(t, err, simulation.ErrSimulationNotComplete)

	snap, err := f.svc.StartSimulation(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, simulation.StatusGenerating, snap.Status)

	sess, ok := f.svc.simulations.Lookup(v.SessionID)
	require.True(t, ok)
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, sess.Wait(waitCtx))

	snap, err = f.svc.Simulation(ctx, v.SessionID)
	require.NoError(t, err)
	assert.True(t, snap.Complete)
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, simulation.SpeakerAgent, snap.Transcript[1].Speaker)

	res, err := f.svc.Ask(ctx, v.SessionID, "Tem café?")
	require.NoError(t, err)
	require.NotNil(t, res.Answer)
	assert.Equal(t, "Temos pão de queijo quentinho.", res.Answer.Text)

	view, err := f.svc.Get(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StepTest, view.Step)
}

func TestCalibrateAppliesHeuristics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "")
	require.NoError(t, err)

	res, err := f.svc.Calibrate(ctx, v.SessionID, "Minha loja se chama Bazar, vendo roupas femininas")
	require.NoError(t, err)
	require.NotNil(t, res.Applied.Name)
	assert.Equal(t, "bazar", *res.Applied.Name)
	assert.Equal(t, "loja", res.View.Profile.Category)
	assert.Equal(t, "loja", res.View.Template)
	assert.Contains(t, res.View.Profile.Description, "roupas femininas")
	require.NotNil(t, res.Reply)
	assert.Equal(t, "Claro! Como posso ajudar?", res.Reply.Answer.Content)

	f.failLLM()
	res, err = f.svc.Calibrate(ctx, v.SessionID, "Abrimos de segunda a sábado das 9h às 19h")
	require.NoError(t, err)
	assert.Nil(t, res.Reply)
	assert.Contains(t, res.View.Profile.Description, "Abrimos de segunda")

	transcript, err := f.svc.CalibrationTranscript(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Len(t, transcript, 4, "greeting, first exchange and the unanswered message")

	_, err = f.svc.Calibrate(ctx, v.SessionID, "  ")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestChatAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "restaurante")
	require.NoError(t, err)
	configure(t, f, v.SessionID)

	entries, err := f.svc.ChatTranscript(ctx, v.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "Padaria Pão Quente")

	for i := 0; i < 2; i++ {
		_, err := f.svc.Chat(ctx, v.SessionID, fmt.Sprintf("mensagem %d", i))
		require.NoError(t, err)
	}
	entries, err = f.svc.ClearChat(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, f.svc.Close(ctx, v.SessionID))
	_, ok := f.svc.simulations.Lookup(v.SessionID)
	assert.False(t, ok)
}
