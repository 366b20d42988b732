package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedGenerator returns replies in order, then the empty-object sentinel.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func newGenerator(replies ...string) *scriptedGenerator {
	return &scriptedGenerator{replies: replies}
}

func (g *scriptedGenerator) Prompt(_ context.Context, prompt string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if idx < len(g.replies) {
		return g.replies[idx]
	}
	return "{}"
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *scriptedGenerator) promptAt(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[i]
}

// recordingSleeper returns immediately and records every requested delay.
type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.slept))
	copy(out, s.slept)
	return out
}

type sleepCall struct {
	d       time.Duration
	release chan struct{}
}

// gateSleeper blocks each Sleep until the test releases it. When honorCtx is
// false the sleeper ignores cancellation, which leaves only the epoch guard to
// discard stale continuations.
type gateSleeper struct {
	calls    chan *sleepCall
	honorCtx bool
}

func newGateSleeper(honorCtx bool) *gateSleeper {
	return &gateSleeper{calls: make(chan *sleepCall, 64), honorCtx: honorCtx}
}

func (g *gateSleeper) Sleep(ctx context.Context, d time.Duration) error {
	call := &sleepCall{d: d, release: make(chan struct{})}
	g.calls <- call
	if !g.honorCtx {
		<-call.release
		return nil
	}
	select {
	case <-call.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gateSleeper) next(t *testing.T) *sleepCall {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sleep call")
		return nil
	}
}

// releaseAll releases every call until stop is closed.
func (g *gateSleeper) releaseAll(stop <-chan struct{}) {
	for {
		select {
		case c := <-g.calls:
			close(c.release)
		case <-stop:
			return
		}
	}
}

type fakeMetrics struct {
	mu       sync.Mutex
	attempts []string
	runs     []string
	followUp []string
}

func (m *fakeMetrics) ObserveAttempt(r string) {
	m.mu.Lock()
	m.attempts = append(m.attempts, r)
	m.mu.Unlock()
}

func (m *fakeMetrics) ObserveRun(s string) {
	m.mu.Lock()
	m.runs = append(m.runs, s)
	m.mu.Unlock()
}

func (m *fakeMetrics) ObserveFollowUp(o string) {
	m.mu.Lock()
	m.followUp = append(m.followUp, o)
	m.mu.Unlock()
}

// scriptJSON builds a valid reply of n turns alternating so that the last turn
// is the agent's. Delays start at 900ms and grow by 100ms.
func scriptJSON(n int, prefix string) string {
	type turn struct {
		ID      int    `json:"id"`
		Sender  string `json:"sender"`
		Content string `json:"content"`
		Delay   int    `json:"delay"`
	}
	turns := make([]turn, n)
	for i := range turns {
		sender := "customer"
		if (n-1-i)%2 == 0 {
			sender = "agent"
		}
		turns[i] = turn{ID: i + 1, Sender: sender, Content: fmt.Sprintf("%s-%d", prefix, i+1), Delay: 900 + i*100}
	}
	data, _ := json.Marshal(map[string]any{"simulation": turns})
	return string(data)
}

func waitRun(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func texts(entries []TranscriptEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}
