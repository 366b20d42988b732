package simulation

import (
	"context"
	"time"
)

const DefaultSettleDelay = 1000 * time.Millisecond

// Playback reveals a script one turn at a time, waiting each turn's own delay
// before emitting it.
type Playback struct {
	sleeper Sleeper
	settle  time.Duration
}

func NewPlayback(sleeper Sleeper, settle time.Duration) Playback {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if settle < 0 {
		settle = DefaultSettleDelay
	}
	return Playback{sleeper: sleeper, settle: settle}
}

// Play emits every turn in order, then waits the settle delay and calls
// complete. emit and complete return false when the run has been superseded,
// which stops playback. Play reports whether complete was accepted.
func (p Playback) Play(ctx context.Context, script ConversationScript, emit func(ScriptTurn) bool, complete func() bool) bool {
	for _, turn := range script.turns {
		if err := p.sleeper.Sleep(ctx, time.Duration(turn.DelayMS)*time.Millisecond); err != nil {
			return false
		}
		if !emit(turn) {
			return false
		}
	}
	if err := p.sleeper.Sleep(ctx, p.settle); err != nil {
		return false
	}
	return complete()
}
