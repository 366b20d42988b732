package llm

import (
	"context"
	"time"
)

// CallObserver receives per-call outcomes. *metrics.GenerationMetrics
// satisfies it.
type CallObserver interface {
	ObserveLLMCall(provider string, err error, elapsed time.Duration)
}

// InstrumentedClient reports latency and outcome of every call.
type InstrumentedClient struct {
	next     Client
	provider string
	observer CallObserver
	now      func() time.Time
}

func NewInstrumentedClient(next Client, provider string, observer CallObserver) *InstrumentedClient {
	if next == nil {
		panic("llm: client cannot be nil")
	}
	return &InstrumentedClient{next: next, provider: provider, observer: observer, now: time.Now}
}

func (c *InstrumentedClient) Complete(ctx context.Context, req Request) (Response, error) {
	start := c.now()
	resp, err := c.next.Complete(ctx, req)
	if c.observer != nil {
		c.observer.ObserveLLMCall(c.provider, err, c.now().Sub(start))
	}
	return resp, err
}
