package publish

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/internal/notify"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

var ErrInvalidRequest = errors.New("publish: invalid request")

var nonDigits = regexp.MustCompile(`\D`)

// Request carries what the owner supplies on the publish step.
type Request struct {
	WhatsAppNumber string `json:"whatsapp_number"`
	OwnerEmail     string `json:"owner_email"`
}

// NormalizeWhatsApp keeps digits and prefixes the Brazilian country code
// when it is missing. Numbers outside 10 to 13 digits are rejected.
func NormalizeWhatsApp(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) == 10 || len(digits) == 11 {
		digits = "55" + digits
	}
	if len(digits) < 12 || len(digits) > 13 {
		return "", fmt.Errorf("%w: whatsapp number %q", ErrInvalidRequest, raw)
	}
	return "+" + digits, nil
}

type Service struct {
	repo   Repository
	email  notify.EmailSender
	bus    bus.Publisher
	logger *logging.Logger
	now    func() time.Time
}

func NewService(repo Repository, email notify.EmailSender, publisher bus.Publisher, logger *logging.Logger) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = notify.NewStubEmailSender(logger)
	}
	if publisher == nil {
		publisher = bus.Nop{}
	}
	return &Service{
		repo:   repo,
		email:  email,
		bus:    publisher,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish stores the agent and emails the owner. A failed email is logged
// and does not undo the publish.
func (s *Service) Publish(ctx context.Context, sessionID, plan string, p profile.BusinessProfile, req Request) (PublishedAgent, error) {
	number, err := NormalizeWhatsApp(req.WhatsAppNumber)
	if err != nil {
		return PublishedAgent{}, err
	}
	email := strings.TrimSpace(req.OwnerEmail)
	if email != "" && !strings.Contains(email, "@") {
		return PublishedAgent{}, fmt.Errorf("%w: owner email %q", ErrInvalidRequest, email)
	}

	agent, err := s.repo.Upsert(ctx, PublishedAgent{
		ID:             uuid.New(),
		SessionID:      sessionID,
		Plan:           plan,
		Profile:        p,
		WhatsAppNumber: number,
		OwnerEmail:     email,
		PublishedAt:    s.now(),
	})
	if err != nil {
		return PublishedAgent{}, err
	}
	s.logger.Info("agent published", "session_id", sessionID, "agent_id", agent.ID, "plan", plan)
	s.bus.Publish(bus.Message{Kind: bus.KindAgentPublished, SessionID: sessionID, Payload: agent})

	if email != "" {
		if err := s.email.Send(ctx, confirmationEmail(agent)); err != nil {
			s.logger.Warn("publish confirmation email failed", "session_id", sessionID, "error", err)
		}
	}
	return agent, nil
}

// Get returns the published agent for a session.
func (s *Service) Get(ctx context.Context, sessionID string) (PublishedAgent, error) {
	return s.repo.GetBySession(ctx, sessionID)
}

func confirmationEmail(agent PublishedAgent) notify.EmailMessage {
	name := agent.Profile.Name
	if name == "" {
		name = "seu negócio"
	}
	body := fmt.Sprintf(`Olá!

O funcionário virtual de %s já está atendendo no WhatsApp %s.

Plano: %s
Publicado em: %s

Você pode voltar ao painel a qualquer momento para ajustar as informações do negócio.

Equipe FuncionárioPro`, name, agent.WhatsAppNumber, agent.Plan, agent.PublishedAt.Format("02/01/2006 15:04"))
	return notify.EmailMessage{
		To:      agent.OwnerEmail,
		Subject: fmt.Sprintf("%s: seu funcionário virtual está no ar", name),
		Body:    body,
	}
}
