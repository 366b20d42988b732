// Package chat runs free-form conversations with the configured agent and
// with the calibration assistant.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/internal/llm"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrUnavailable  = errors.New("chat: assistant unavailable")
)

// Entry is one chat message.
type Entry struct {
	ID      string    `json:"id"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Reply is the outcome of Send.
type Reply struct {
	Message Entry `json:"message"`
	Answer  Entry `json:"answer"`
	Failed  bool  `json:"failed"`
}

// Observer is implemented by *metrics.GenerationMetrics.
type Observer interface {
	ObserveChat(outcome string)
}

type Service struct {
	persona  Persona
	client   llm.Client
	history  History
	observer Observer
	logger   *logging.Logger
	timeout  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(persona Persona, client llm.Client, history History, observer Observer, timeout time.Duration, logger *logging.Logger) *Service {
	if client == nil {
		panic("chat: llm client cannot be nil")
	}
	if history == nil {
		history = NewMemoryHistory()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = llm.DefaultTimeout
	}
	return &Service{
		persona:  persona,
		client:   client,
		history:  history,
		observer: observer,
		logger:   logger,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.persona.KeyPrefix, sessionID)
}

func (s *Service) lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *Service) entry(sender, content string) Entry {
	return Entry{ID: uuid.NewString(), Sender: sender, Content: content, At: s.now()}
}

func (s *Service) greeting(p profile.BusinessProfile) []Entry {
	return []Entry{s.entry(SenderAssistant, s.persona.Greeting(p))}
}

// Transcript returns the stored conversation, starting it with the greeting
// when empty.
func (s *Service) Transcript(ctx context.Context, sessionID string, p profile.BusinessProfile) ([]Entry, error) {
	unlock := s.lock(sessionID)
	defer unlock()
	return s.transcriptLocked(ctx, sessionID, p)
}

func (s *Service) transcriptLocked(ctx context.Context, sessionID string, p profile.BusinessProfile) ([]Entry, error) {
	entries, err := s.history.Load(ctx, s.key(sessionID))
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	entries = s.greeting(p)
	if err := s.history.Save(ctx, s.key(sessionID), entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Send appends message, asks the model with the full history and appends the
// reply.
func (s *Service) Send(ctx context.Context, sessionID string, p profile.BusinessProfile, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	unlock := s.lock(sessionID)
	defer unlock()

	entries, err := s.transcriptLocked(ctx, sessionID, p)
	if err != nil {
		return Reply{}, err
	}

	messages := make([]llm.Message, 0, len(entries)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.persona.SystemPrompt(p)})
	for _, e := range entries {
		role := llm.RoleAssistant
		if e.Sender == SenderUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: e.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	userEntry := s.entry(SenderUser, message)
	entries = append(entries, userEntry)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	resp, callErr := s.client.Complete(callCtx, llm.Request{
		Messages:    messages,
		MaxTokens:   500,
		Temperature: 0.7,
	})
	cancel()

	reply := Reply{Message: userEntry}
	switch {
	case callErr != nil && s.persona.FailureReply == "":
		s.logger.Warn("chat: assistant call failed", "persona", s.persona.Name, "session_id", sessionID, "error", callErr)
		s.observe("error")
		if err := s.history.Save(ctx, s.key(sessionID), entries); err != nil {
			return Reply{}, err
		}
		return Reply{}, fmt.Errorf("%w: %v", ErrUnavailable, callErr)
	case callErr != nil:
		s.logger.Warn("chat: assistant call failed, sending apology", "persona", s.persona.Name, "session_id", sessionID, "error", callErr)
		s.observe("apology")
		reply.Answer = s.entry(SenderAssistant, s.persona.FailureReply)
		reply.Failed = true
	default:
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			text = s.persona.EmptyReply
		}
		s.observe("replied")
		reply.Answer = s.entry(SenderAssistant, text)
	}

	entries = append(entries, reply.Answer)
	if err := s.history.Save(ctx, s.key(sessionID), entries); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// Clear resets the conversation to the greeting.
func (s *Service) Clear(ctx context.Context, sessionID string, p profile.BusinessProfile) ([]Entry, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	entries := s.greeting(p)
	if err := s.history.Save(ctx, s.key(sessionID), entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Forget deletes the stored conversation.
func (s *Service) Forget(ctx context.Context, sessionID string) error {
	unlock := s.lock(sessionID)
	defer unlock()
	return s.history.Delete(ctx, s.key(sessionID))
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveChat(outcome)
	}
}
