// Package llm wraps the chat-completion providers the application can talk to.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request describes one completion. A negative Temperature leaves the
// provider default in place. JSON asks the provider for a JSON object reply.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	JSON        bool
}

type Response struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Client performs a single completion. Implementations never retry.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// splitSystem separates system messages from the conversational turns.
func splitSystem(messages []Message) (system []string, turns []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
