package llm

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// EmptyObject is returned by JSONCaller whenever a call fails.
const EmptyObject = "{}"

const DefaultTimeout = 30 * time.Second

// JSONCaller performs one JSON-mode completion and folds every failure into
// the EmptyObject sentinel, so callers validate a single shape.
type JSONCaller struct {
	client      Client
	timeout     time.Duration
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
}

type JSONCallerOption func(*JSONCaller)

// WithTimeout bounds each call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) JSONCallerOption {
	return func(c *JSONCaller) { c.timeout = d }
}

func WithMaxTokens(n int32) JSONCallerOption {
	return func(c *JSONCaller) { c.maxTokens = n }
}

func WithTemperature(t float32) JSONCallerOption {
	return func(c *JSONCaller) { c.temperature = t }
}

func NewJSONCaller(client Client, logger *logging.Logger, opts ...JSONCallerOption) *JSONCaller {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &JSONCaller{
		client:      client,
		timeout:     DefaultTimeout,
		temperature: 0.7,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call returns the raw content text, or EmptyObject on transport errors,
// timeouts and empty replies. It never retries.
func (c *JSONCaller) Call(ctx context.Context, messages []Message) string {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.Complete(ctx, Request{
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		JSON:        true,
	})
	if err != nil {
		c.logger.Warn("llm json call failed", "error", err)
		return EmptyObject
	}
	if strings.TrimSpace(resp.Text) == "" {
		c.logger.Warn("llm json call returned empty content")
		return EmptyObject
	}
	return resp.Text
}

// Prompt calls with a single user message.
func (c *JSONCaller) Prompt(ctx context.Context, prompt string) string {
	return c.Call(ctx, []Message{{Role: RoleUser, Content: prompt}})
}
