// Package bus carries typed, per-session notifications between the wizard
// components and the websocket stream.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// Kind enumerates every message the application publishes.
type Kind string

const (
	KindProfileUpdated      Kind = "profile.updated"
	KindSimulationStarted   Kind = "simulation.started"
	KindTurnAppended        Kind = "simulation.turn_appended"
	KindSimulationCompleted Kind = "simulation.completed"
	KindSimulationExhausted Kind = "simulation.exhausted"
	KindFollowUpAnswered    Kind = "simulation.followup_answered"
	KindUpgradeRequested    Kind = "wizard.upgrade_requested"
	KindPlanSelected        Kind = "billing.plan_selected"
	KindAgentPublished      Kind = "publish.agent_published"
)

var kinds = map[Kind]struct{}{
	KindProfileUpdated:      {},
	KindSimulationStarted:   {},
	KindTurnAppended:        {},
	KindSimulationCompleted: {},
	KindSimulationExhausted: {},
	KindFollowUpAnswered:    {},
	KindUpgradeRequested:    {},
	KindPlanSelected:        {},
	KindAgentPublished:      {},
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Message is a single notification scoped to a session.
type Message struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	SessionID  string    `json:"session_id"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is implemented by *Bus; components depend on this.
type Publisher interface {
	Publish(msg Message)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(Message) {}

const defaultBuffer = 64

// Bus fans messages out to subscribers of a session. A subscriber registered
// with an empty session id receives every message.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Message
	nextID uint64
	buffer int
	logger *logging.Logger
}

// New builds a bus whose subscriber channels hold buffer messages.
func New(buffer int, logger *logging.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{
		subs:   make(map[string]map[uint64]chan Message),
		buffer: buffer,
		logger: logger,
	}
}

// Publish delivers msg without blocking. Subscribers with a full buffer miss
// the message.
func (b *Bus) Publish(msg Message) {
	if !msg.Kind.Valid() {
		b.logger.Warn("bus: dropping message with unknown kind", "kind", msg.Kind)
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	b.deliver(b.subs[msg.SessionID], msg)
	if msg.SessionID != "" {
		b.deliver(b.subs[""], msg)
	}
}

func (b *Bus) deliver(targets map[uint64]chan Message, msg Message) {
	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("bus: subscriber buffer full", "kind", msg.Kind, "session_id", msg.SessionID)
		}
	}
}

// Subscribe registers for messages of sessionID. The returned func removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(sessionID string) (<-chan Message, func()) {
	ch := make(chan Message, b.buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[uint64]chan Message)
	}
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions for sessionID.
func (b *Bus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
