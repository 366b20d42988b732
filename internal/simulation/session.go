package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

var (
	ErrSimulationNotComplete = errors.New("simulation: not complete")
	ErrEmptyQuestion         = errors.New("simulation: question is empty")
	ErrQuestionPending       = errors.New("simulation: a question is already being answered")
	ErrQuestionTooLong       = errors.New("simulation: question is too long")
)

// ApologyText replaces the transcript when every generation attempt failed.
const ApologyText = "Desculpe, não consegui gerar a simulação de conversa agora. Clique em \"Reiniciar simulação\" para tentar novamente."

// Status summarises where a session is in its lifecycle.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusPlaying    Status = "playing"
	StatusComplete   Status = "complete"
	StatusExhausted  Status = "exhausted"
	StatusStopped    Status = "stopped"
)

// EntrySource tells where a transcript entry came from.
type EntrySource string

const (
	SourceScript   EntrySource = "script"
	SourceApology  EntrySource = "apology"
	SourceQuestion EntrySource = "question"
	SourceAnswer   EntrySource = "answer"
)

// TranscriptEntry is a rendered message.
type TranscriptEntry struct {
	ID      int         `json:"id"`
	Speaker Speaker     `json:"speaker"`
	Text    string      `json:"text"`
	Source  EntrySource `json:"source"`
	At      time.Time   `json:"at"`
}

// Snapshot is a copy of a session's observable state.
type Snapshot struct {
	SessionID  string            `json:"session_id"`
	Epoch      uint64            `json:"epoch"`
	Status     Status            `json:"status"`
	Complete   bool              `json:"is_simulation_complete"`
	Attempts   int               `json:"attempts"`
	Transcript []TranscriptEntry `json:"transcript"`
}

// FollowUpResult holds the appended question and, when the reply parsed, the
// answer.
type FollowUpResult struct {
	Question TranscriptEntry  `json:"question"`
	Answer   *TranscriptEntry `json:"answer,omitempty"`
}

// Metrics is implemented by *metrics.GenerationMetrics.
type Metrics interface {
	RunObserver
	ObserveFollowUp(outcome string)
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	SettleDelay    time.Duration
	MaxQuestionLen int
	Sleeper        Sleeper
	Publisher      bus.Publisher
	Metrics        Metrics
	Logger         *logging.Logger
}

// Engine owns the simulation sessions of every visitor.
type Engine struct {
	generator Generator
	retry     *RetryController
	playback  Playback
	publisher bus.Publisher
	metrics   Metrics
	logger    *logging.Logger
	maxQLen   int
	now       func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewEngine(generator Generator, opts Options) *Engine {
	if generator == nil {
		panic("simulation: generator cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = bus.Nop{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Sleeper == nil {
		opts.Sleeper = TimerSleeper{}
	}
	var observer RunObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		generator: generator,
		retry:     NewRetryController(generator, opts.MaxAttempts, opts.RetryDelay, opts.Sleeper, observer, opts.Logger),
		playback:  NewPlayback(opts.Sleeper, opts.SettleDelay),
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		maxQLen:   opts.MaxQuestionLen,
		now:       func() time.Time { return time.Now().UTC() },
		baseCtx:   ctx,
		stop:      cancel,
		sessions:  make(map[string]*Session),
	}
}

// Session returns the session for id, creating an idle one when needed.
func (e *Engine) Session(id string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		s = &Session{id: id, engine: e, status: StatusIdle}
		e.sessions[id] = s
	}
	return s
}

// Lookup returns an existing session.
func (e *Engine) Lookup(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Remove tears down and forgets a session.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// Close tears down every session.
func (e *Engine) Close() {
	e.stop()
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// Session is one visitor's simulation panel. Every continuation scheduled by
// a run checks (epoch, active) under mu before touching the transcript.
type Session struct {
	id     string
	engine *Engine

	mu     sync.Mutex
	epoch  uint64
	active bool
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
	status Status
	// askingEpoch is the epoch with a follow-up in flight, 0 when none.
	askingEpoch uint64
	attempts    int
	complete    bool
	profile     profile.BusinessProfile
	transcript  []TranscriptEntry
}

func (s *Session) ID() string { return s.id }

// Start begins a new run for p, invalidating any run in progress. The
// transcript is reset to empty.
func (s *Session) Start(p profile.BusinessProfile) Snapshot {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.epoch++
	epoch := s.epoch
	ctx, cancel := context.WithCancel(s.engine.baseCtx)
	done := make(chan struct{})
	s.runCtx = ctx
	s.cancel = cancel
	s.done = done
	s.active = true
	s.status = StatusGenerating
	s.attempts = 0
	s.complete = false
	s.profile = p
	s.transcript = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.engine.logger.Info("simulation started", "session_id", s.id, "epoch", epoch)
	s.publish(bus.KindSimulationStarted, map[string]any{"epoch": epoch})
	go s.run(ctx, epoch, p, done)
	return snap
}

// Stop tears the session down. Pending continuations become no-ops.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.active {
		s.active = false
		s.status = StatusStopped
	}
}

// Wait blocks until the current run finishes or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot copies the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	transcript := make([]TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)
	return Snapshot{
		SessionID:  s.id,
		Epoch:      s.epoch,
		Status:     s.status,
		Complete:   s.complete,
		Attempts:   s.attempts,
		Transcript: transcript,
	}
}

// guard runs fn only if epoch is still the live run.
func (s *Session) guard(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.epoch != epoch {
		return false
	}
	fn()
	return true
}

func (s *Session) appendLocked(speaker Speaker, text string, source EntrySource) TranscriptEntry {
	entry := TranscriptEntry{
		ID:      len(s.transcript) + 1,
		Speaker: speaker,
		Text:    text,
		Source:  source,
		At:      s.engine.now(),
	}
	s.transcript = append(s.transcript, entry)
	return entry
}

func (s *Session) run(ctx context.Context, epoch uint64, p profile.BusinessProfile, done chan struct{}) {
	defer close(done)
	log := s.engine.logger.With("session_id", s.id, "epoch", epoch)

	outcome := s.engine.retry.Run(ctx, BuildScriptPrompt(p))
	if outcome.Canceled {
		log.Debug("simulation run canceled during generation")
		s.markStopped(epoch)
		return
	}

	if outcome.State == Exhausted {
		var apology TranscriptEntry
		if !s.guard(epoch, func() {
			s.attempts = outcome.Attempts
			s.status = StatusExhausted
			apology = s.appendLocked(SpeakerAgent, ApologyText, SourceApology)
		}) {
			return
		}
		s.publish(bus.KindSimulationExhausted, apology)
		return
	}

	if !s.guard(epoch, func() {
		s.attempts = outcome.Attempts
		s.status = StatusPlaying
	}) {
		return
	}

	emit := func(turn ScriptTurn) bool {
		var entry TranscriptEntry
		if !s.guard(epoch, func() {
			entry = s.appendLocked(turn.Speaker, turn.Text, SourceScript)
		}) {
			return false
		}
		s.publish(bus.KindTurnAppended, entry)
		return true
	}
	complete := func() bool {
		return s.guard(epoch, func() {
			s.complete = true
			s.status = StatusComplete
		})
	}
	if s.engine.playback.Play(ctx, outcome.Script, emit, complete) {
		log.Info("simulation complete", "turns", outcome.Script.Len(), "attempts", outcome.Attempts)
		s.publish(bus.KindSimulationCompleted, map[string]any{"turns": outcome.Script.Len()})
		return
	}
	if ctx.Err() != nil {
		s.markStopped(epoch)
	}
}

// markStopped ends a run whose context was canceled while it was still the
// live one, e.g. after Engine.Close.
func (s *Session) markStopped(epoch uint64) {
	s.guard(epoch, func() {
		s.active = false
		s.status = StatusStopped
	})
}

// Ask appends question and asks the model once for an answer. When the reply
// does not parse, the question stays in the transcript and no answer is added.
func (s *Session) Ask(ctx context.Context, question string) (FollowUpResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return FollowUpResult{}, ErrEmptyQuestion
	}
	if s.engine.maxQLen > 0 && len([]rune(question)) > s.engine.maxQLen {
		return FollowUpResult{}, ErrQuestionTooLong
	}

	s.mu.Lock()
	if !s.active || !s.complete {
		s.mu.Unlock()
		return FollowUpResult{}, ErrSimulationNotComplete
	}
	if s.askingEpoch == s.epoch {
		s.mu.Unlock()
		return FollowUpResult{}, ErrQuestionPending
	}
	epoch := s.epoch
	s.askingEpoch = epoch
	runCtx := s.runCtx
	p := s.profile
	history := make([]TranscriptEntry, len(s.transcript))
	copy(history, s.transcript)
	asked := s.appendLocked(SpeakerCustomer, question, SourceQuestion)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.askingEpoch == epoch {
			s.askingEpoch = 0
		}
		s.mu.Unlock()
	}()

	// The call ends with either the request or the run it belongs to.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(runCtx, cancel)()

	result := FollowUpResult{Question: asked}
	reply := s.engine.generator.Prompt(ctx, BuildFollowUpPrompt(p, history, question))
	if runCtx.Err() != nil {
		s.observeFollowUp("stale")
		return result, nil
	}
	answer, ok := parseFollowUp(reply)
	if !ok {
		s.engine.logger.Warn("follow-up answer dropped", "session_id", s.id, "epoch", epoch)
		s.observeFollowUp("dropped")
		return result, nil
	}

	var entry TranscriptEntry
	if !s.guard(epoch, func() {
		entry = s.appendLocked(SpeakerAgent, answer, SourceAnswer)
	}) {
		s.observeFollowUp("stale")
		return result, nil
	}
	s.observeFollowUp("answered")
	s.publish(bus.KindFollowUpAnswered, entry)
	result.Answer = &entry
	return result, nil
}

func parseFollowUp(text string) (string, bool) {
	var reply struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &reply); err != nil {
		return "", false
	}
	if reply.Response == nil || strings.TrimSpace(*reply.Response) == "" {
		return "", false
	}
	return strings.TrimSpace(*reply.Response), true
}

func (s *Session) observeFollowUp(outcome string) {
	if s.engine.metrics != nil {
		s.engine.metrics.ObserveFollowUp(outcome)
	}
}

func (s *Session) publish(kind bus.Kind, payload any) {
	s.engine.publisher.Publish(bus.Message{Kind: kind, SessionID: s.id, Payload: payload})
}
