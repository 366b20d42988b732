package llm

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
}

func (s *stubConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.input = in
	return s.out, nil
}

func TestBedrockClientSplitsSystemMessages(t *testing.T) {
	stub := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: ` {"response":"oi"} `}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(3), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(5)},
	}}
	client := NewBedrockClient(stub, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "sistema"},
			{Role: RoleUser, Content: "pergunta"},
		},
		Temperature: -1,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"response":"oi"}`, resp.Text)
	assert.Equal(t, int32(5), resp.Usage.TotalTokens)
	assert.Len(t, stub.input.System, 1)
	assert.Len(t, stub.input.Messages, 1)
	assert.Nil(t, stub.input.InferenceConfig)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(stub.input.ModelId))
}

func TestBedrockClientRequiresModel(t *testing.T) {
	client := NewBedrockClient(&stubConverse{}, "")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorContains(t, err, "model id")
}

func TestBedrockClientEmptyOutput(t *testing.T) {
	client := NewBedrockClient(&stubConverse{out: &bedrockruntime.ConverseOutput{}}, "m")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.Error(t, err)
}
