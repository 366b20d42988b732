package simulation

import (
	"context"
	"time"

	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// RetryState is the phase of a script generation run.
type RetryState int

const (
	Attempting RetryState = iota
	Accepted
	Exhausted
)

func (s RetryState) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Accepted:
		return "accepted"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s RetryState) Terminal() bool {
	return s == Accepted || s == Exhausted
}

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1500 * time.Millisecond
)

// Retry is the state value plus attempt counter.
type Retry struct {
	State   RetryState
	Attempt int
	Bound   int
}

// NewRetry starts at attempt 1 in Attempting.
func NewRetry(bound int) Retry {
	if bound < 1 {
		bound = 1
	}
	return Retry{State: Attempting, Attempt: 1, Bound: bound}
}

// Next applies the validator verdict for the current attempt. Terminal states
// are returned unchanged.
func (r Retry) Next(accepted bool) Retry {
	if r.State.Terminal() {
		return r
	}
	switch {
	case accepted:
		r.State = Accepted
	case r.Attempt >= r.Bound:
		r.State = Exhausted
	default:
		r.Attempt++
	}
	return r
}

// Generator is the one-shot JSON call used for each attempt.
type Generator interface {
	Prompt(ctx context.Context, prompt string) string
}

// RunObserver receives validator verdicts and terminal states.
type RunObserver interface {
	ObserveAttempt(result string)
	ObserveRun(state string)
}

// Outcome is the terminal result of a run. Canceled is set when ctx ended
// before a terminal state was reached; State is then Attempting.
type Outcome struct {
	State    RetryState
	Attempts int
	Script   ConversationScript
	Canceled bool
}

// RetryController drives Retry against a Generator.
type RetryController struct {
	generator Generator
	bound     int
	delay     time.Duration
	sleeper   Sleeper
	observer  RunObserver
	logger    *logging.Logger
}

func NewRetryController(generator Generator, bound int, delay time.Duration, sleeper Sleeper, observer RunObserver, logger *logging.Logger) *RetryController {
	if generator == nil {
		panic("simulation: generator cannot be nil")
	}
	if bound < 1 {
		bound = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryController{
		generator: generator,
		bound:     bound,
		delay:     delay,
		sleeper:   sleeper,
		observer:  observer,
		logger:    logger,
	}
}

// Run reuses prompt for every attempt and returns on Accepted, Exhausted or
// cancellation.
func (c *RetryController) Run(ctx context.Context, prompt string) Outcome {
	r := NewRetry(c.bound)
	for {
		if ctx.Err() != nil {
			return Outcome{State: r.State, Attempts: r.Attempt - 1, Canceled: true}
		}
		script, ok := ValidateScript(c.generator.Prompt(ctx, prompt))
		c.observeAttempt(ok)

		attempt := r.Attempt
		r = r.Next(ok)
		switch r.State {
		case Accepted:
			c.observeRun(r.State)
			return Outcome{State: Accepted, Attempts: attempt, Script: script}
		case Exhausted:
			c.logger.Warn("simulation script generation exhausted", "attempts", attempt)
			c.observeRun(r.State)
			return Outcome{State: Exhausted, Attempts: attempt}
		}

		c.logger.Info("simulation script rejected, retrying", "attempt", attempt, "delay", c.delay)
		if err := c.sleeper.Sleep(ctx, c.delay); err != nil {
			return Outcome{State: Attempting, Attempts: attempt, Canceled: true}
		}
	}
}

func (c *RetryController) observeAttempt(ok bool) {
	if c.observer == nil {
		return
	}
	if ok {
		c.observer.ObserveAttempt("accepted")
		return
	}
	c.observer.ObserveAttempt("rejected")
}

func (c *RetryController) observeRun(s RetryState) {
	if c.observer != nil {
		c.observer.ObserveRun(s.String())
	}
}
