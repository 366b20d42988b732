package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/internal/catalog"
	"github.com/wolfman30/funcionariopro/internal/chat"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/publish"
	"github.com/wolfman30/funcionariopro/internal/simulation"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// View is the client-facing state of a wizard session.
type View struct {
	SessionID    string                  `json:"session_id"`
	Step         Step                    `json:"step"`
	Steps        []StepStatus            `json:"steps"`
	Profile      profile.BusinessProfile `json:"profile"`
	Template     string                  `json:"template,omitempty"`
	TemplateInfo string                  `json:"template_info,omitempty"`
	Configured   bool                    `json:"is_configured"`
	Completion   int                     `json:"completion_percent"`
	Subscription billing.Subscription    `json:"subscription"`
}

// CalibrationResult is what one calibration message changed and the
// assistant's reply. Reply is nil when the assistant was unavailable.
type CalibrationResult struct {
	Applied profile.Patch `json:"applied"`
	Reply   *chat.Reply   `json:"reply,omitempty"`
	View    View          `json:"session"`
}

// Deps are the collaborators of a Service.
type Deps struct {
	Profiles    *profile.Controller
	Catalog     *catalog.Catalog
	Simulations *simulation.Engine
	AgentChat   *chat.Service
	Calibration *chat.Service
	Billing     *billing.Service
	Publisher   *publish.Service
	Bus         bus.Publisher
	Logger      *logging.Logger
}

type Service struct {
	profiles    *profile.Controller
	catalog     *catalog.Catalog
	simulations *simulation.Engine
	agentChat   *chat.Service
	calibration *chat.Service
	billing     *billing.Service
	publisher   *publish.Service
	bus         bus.Publisher
	logger      *logging.Logger

	mu    sync.Mutex
	steps map[string]Step
}

func NewService(d Deps) *Service {
	if d.Profiles == nil || d.Simulations == nil || d.AgentChat == nil || d.Calibration == nil || d.Billing == nil || d.Publisher == nil {
		panic("wizard: missing dependency")
	}
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if d.Bus == nil {
		d.Bus = bus.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return &Service{
		profiles:    d.Profiles,
		catalog:     d.Catalog,
		simulations: d.Simulations,
		agentChat:   d.AgentChat,
		calibration: d.Calibration,
		billing:     d.Billing,
		publisher:   d.Publisher,
		bus:         d.Bus,
		logger:      d.Logger,
		steps:       make(map[string]Step),
	}
}

// Create starts a session, pre-filled from templateKey when one is given.
func (s *Service) Create(ctx context.Context, templateKey string) (View, error) {
	templateKey = strings.ToLower(strings.TrimSpace(templateKey))
	var bp profile.BusinessProfile
	if templateKey != "" {
		if !s.catalog.Has(templateKey) {
			return View{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateKey)
		}
		bp = s.catalog.Prefill(templateKey)
	}
	id := uuid.NewString()
	st, err := s.profiles.Create(ctx, id, bp, templateKey)
	if err != nil {
		return View{}, err
	}
	s.setStep(id, StepConfigure)
	s.logger.Info("wizard session created", "session_id", id, "template", templateKey)
	return s.view(ctx, st)
}

// Get returns the current view of a session.
func (s *Service) Get(ctx context.Context, sessionID string) (View, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, st)
}

// UpdateProfile applies a patch from the configuration form.
func (s *Service) UpdateProfile(ctx context.Context, sessionID string, patch profile.Patch) (View, error) {
	if _, err := s.load(ctx, sessionID); err != nil {
		return View{}, err
	}
	st, err := s.profiles.Apply(ctx, sessionID, patch)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, st)
}

// Calibrate extracts profile facts from the owner's message, applies them
// and forwards the message to the calibration assistant.
func (s *Service) Calibrate(ctx context.Context, sessionID, message string) (CalibrationResult, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return CalibrationResult{}, err
	}
	if strings.TrimSpace(message) == "" {
		return CalibrationResult{}, chat.ErrEmptyMessage
	}
	patch := profile.Calibrate(st.Profile, message)
	if !patch.IsEmpty() {
		if st, err = s.profiles.Apply(ctx, sessionID, patch); err != nil {
			return CalibrationResult{}, err
		}
	}

	result := CalibrationResult{Applied: patch}
	reply, err := s.calibration.Send(ctx, sessionID, st.Profile, message)
	switch {
	case errors.Is(err, chat.ErrUnavailable):
		s.logger.Warn("calibration assistant unavailable", "session_id", sessionID, "error", err)
	case err != nil:
		return CalibrationResult{}, err
	default:
		result.Reply = &reply
	}
	if result.View, err = s.view(ctx, st); err != nil {
		return CalibrationResult{}, err
	}
	return result, nil
}

// CalibrationTranscript returns the calibration chat.
func (s *Service) CalibrationTranscript(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.calibration.Transcript(ctx, sessionID, st.Profile)
}

// SetStep moves the wizard. Testing needs a configured profile and
// publishing also needs an active subscription; without one the visitor is
// offered an upgrade.
func (s *Service) SetStep(ctx context.Context, sessionID string, step Step) (View, error) {
	if !step.valid() {
		return View{}, fmt.Errorf("%w: %q", ErrInvalidStep, step)
	}
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	switch step {
	case StepTest:
		if !st.Profile.IsConfigured() {
			return View{}, ErrNotConfigured
		}
	case StepPublish:
		if err := s.requireSubscription(ctx, sessionID); err != nil {
			return View{}, err
		}
	}
	s.setStep(sessionID, step)
	return s.view(ctx, st)
}

func (s *Service) requireSubscription(ctx context.Context, sessionID string) error {
	sub, err := s.billing.Subscription(ctx, sessionID)
	if err != nil {
		return err
	}
	if sub.Active {
		return nil
	}
	s.bus.Publish(bus.Message{Kind: bus.KindUpgradeRequested, SessionID: sessionID, Payload: billing.Plans()})
	return ErrUpgradeRequired
}

// StartSimulation generates and plays a new scripted conversation,
// cancelling any run in progress.
func (s *Service) StartSimulation(ctx context.Context, sessionID string) (simulation.Snapshot, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return simulation.Snapshot{}, err
	}
	if !st.Profile.IsConfigured() {
		return simulation.Snapshot{}, ErrNotConfigured
	}
	s.setStep(sessionID, StepTest)
	return s.simulations.Session(sessionID).Start(st.Profile), nil
}

// Simulation returns the simulation transcript.
func (s *Service) Simulation(ctx context.Context, sessionID string) (simulation.Snapshot, error) {
	if _, err := s.load(ctx, sessionID); err != nil {
		return simulation.Snapshot{}, err
	}
	return s.simulations.Session(sessionID).Snapshot(), nil
}

// Ask sends a follow-up question once the simulation is complete.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (simulation.FollowUpResult, error) {
	if _, err := s.load(ctx, sessionID); err != nil {
		return simulation.FollowUpResult{}, err
	}
	sess, ok := s.simulations.Lookup(sessionID)
	if !ok {
		return simulation.FollowUpResult{}, simulation.ErrSimulationNotComplete
	}
	return sess.Ask(ctx, question)
}

// Chat sends a live message to the configured agent.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (chat.Reply, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return chat.Reply{}, err
	}
	return s.agentChat.Send(ctx, sessionID, st.Profile, message)
}

// ChatTranscript returns the live chat, starting with the welcome message.
func (s *Service) ChatTranscript(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.agentChat.Transcript(ctx, sessionID, st.Profile)
}

// ClearChat resets the live chat to the welcome message.
func (s *Service) ClearChat(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.agentChat.Clear(ctx, sessionID, st.Profile)
}

// Checkout starts a plan purchase for the session.
func (s *Service) Checkout(ctx context.Context, sessionID, plan string) (billing.Checkout, error) {
	if _, err := s.load(ctx, sessionID); err != nil {
		return billing.Checkout{}, err
	}
	return s.billing.StartCheckout(ctx, sessionID, plan)
}

// CompleteCheckout activates the purchased plan and moves the wizard to
// the publish step.
func (s *Service) CompleteCheckout(ctx context.Context, checkoutID uuid.UUID) (View, error) {
	c, _, err := s.billing.Complete(ctx, checkoutID)
	if err != nil {
		return View{}, err
	}
	st, err := s.load(ctx, c.SessionID)
	if err != nil {
		return View{}, err
	}
	s.setStep(c.SessionID, StepPublish)
	return s.view(ctx, st)
}

// Publish puts the agent live on the owner's WhatsApp number.
func (s *Service) Publish(ctx context.Context, sessionID string, req publish.Request) (publish.PublishedAgent, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return publish.PublishedAgent{}, err
	}
	if !st.Profile.IsConfigured() {
		return publish.PublishedAgent{}, ErrNotConfigured
	}
	if err := s.requireSubscription(ctx, sessionID); err != nil {
		return publish.PublishedAgent{}, err
	}
	sub, err := s.billing.Subscription(ctx, sessionID)
	if err != nil {
		return publish.PublishedAgent{}, err
	}
	return s.publisher.Publish(ctx, sessionID, string(sub.Plan), st.Profile, req)
}

// Close tears down the session's simulation and conversations.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	if _, err := s.load(ctx, sessionID); err != nil {
		return err
	}
	s.simulations.Remove(sessionID)
	if err := s.agentChat.Forget(ctx, sessionID); err != nil {
		return err
	}
	if err := s.calibration.Forget(ctx, sessionID); err != nil {
		return err
	}
	s.profiles.Forget(sessionID)
	s.mu.Lock()
	delete(s.steps, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *Service) load(ctx context.Context, sessionID string) (profile.State, error) {
	st, err := s.profiles.Load(ctx, sessionID)
	if errors.Is(err, profile.ErrStateNotFound) {
		return profile.State{}, ErrSessionNotFound
	}
	return st, err
}

func (s *Service) setStep(sessionID string, step Step) {
	s.mu.Lock()
	s.steps[sessionID] = step
	s.mu.Unlock()
}

func (s *Service) step(sessionID string) Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step, ok := s.steps[sessionID]; ok {
		return step
	}
	return StepConfigure
}

func (s *Service) view(ctx context.Context, st profile.State) (View, error) {
	sub, err := s.billing.Subscription(ctx, st.SessionID)
	if err != nil {
		return View{}, err
	}
	v := View{
		SessionID:    st.SessionID,
		Step:         s.step(st.SessionID),
		Steps:        stepStatuses(st.Profile.IsConfigured()),
		Profile:      st.Profile,
		Template:     st.Template,
		Configured:   st.Profile.IsConfigured(),
		Completion:   st.Profile.CompletionPercent(),
		Subscription: sub,
	}
	if tmpl, ok := s.catalog.Lookup(st.Template); ok {
		v.TemplateInfo = tmpl.InfoSummary()
	}
	return v, nil
}
