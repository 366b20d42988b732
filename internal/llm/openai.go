package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL points the OpenAI-compatible client at Mistral.
const (
	DefaultBaseURL = "https://api.mistral.ai/v1"
	DefaultModel   = "mistral-small-latest"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient speaks the OpenAI chat-completion protocol, which Mistral
// also implements.
type OpenAIClient struct {
	client chatClient
	model  string
}

// NewOpenAIClient builds a client with bearer auth against baseURL.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return newOpenAIClient(openai.NewClientWithConfig(cfg), model), nil
}

func newOpenAIClient(client chatClient, model string) *OpenAIClient {
	if client == nil {
		panic("llm: chat client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &OpenAIClient{client: client, model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return Response{}, fmt.Errorf("llm: unsupported role %q", m.Role)
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	creq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		creq.Temperature = req.Temperature
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("llm: chat completion returned no choices")
	}
	choice := resp.Choices[0]
	return Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
