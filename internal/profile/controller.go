package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// Controller is the single owner of session profiles. Each session is loaded
// from the store once and every committed change is written back.
type Controller struct {
	store     Store
	publisher bus.Publisher
	logger    *logging.Logger
	now       func() time.Time

	mu     sync.Mutex
	states map[string]State
}

// NewController wires a controller to its store.
func NewController(store Store, publisher bus.Publisher, logger *logging.Logger) *Controller {
	if store == nil {
		panic("profile: store cannot be nil")
	}
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		states:    make(map[string]State),
	}
}

// Create initialises and persists a new session state.
func (c *Controller) Create(ctx context.Context, sessionID string, bp BusinessProfile, template string) (State, error) {
	st := NewState(sessionID, bp, template, c.now())

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(ctx, st); err != nil {
		return State{}, fmt.Errorf("profile: create %s: %w", sessionID, err)
	}
	c.states[sessionID] = st
	return st, nil
}

// Load returns the session state, reading the store only on first access.
func (c *Controller) Load(ctx context.Context, sessionID string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx, sessionID)
}

func (c *Controller) loadLocked(ctx context.Context, sessionID string) (State, error) {
	if st, ok := c.states[sessionID]; ok {
		return st, nil
	}
	st, err := c.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) || errors.Is(err, ErrUnsupportedSchema) {
			return State{}, err
		}
		return State{}, fmt.Errorf("profile: load %s: %w", sessionID, err)
	}
	c.states[sessionID] = st
	return st, nil
}

// Apply validates and commits patch. An empty patch returns the current state
// without writing.
func (c *Controller) Apply(ctx context.Context, sessionID string, patch Patch) (State, error) {
	if err := patch.Validate(); err != nil {
		return State{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.loadLocked(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	if patch.IsEmpty() {
		return st, nil
	}

	next := st
	next.Profile = patch.ApplyTo(st.Profile)
	if patch.Category != nil {
		next.Template = next.Profile.Category
	}
	next.UpdatedAt = c.now().UTC()
	if err := c.store.Save(ctx, next); err != nil {
		return State{}, fmt.Errorf("profile: save %s: %w", sessionID, err)
	}
	c.states[sessionID] = next

	c.logger.Debug("profile updated", "session_id", sessionID, "completion", next.Profile.CompletionPercent())
	c.publisher.Publish(bus.Message{
		Kind:      bus.KindProfileUpdated,
		SessionID: sessionID,
		Payload:   next.Profile,
	})
	return next, nil
}

// Forget drops the cached copy so the next Load reads the store again.
func (c *Controller) Forget(sessionID string) {
	c.mu.Lock()
	delete(c.states, sessionID)
	c.mu.Unlock()
}
