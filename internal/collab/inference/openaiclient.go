package inference

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kernel/cellruntime/internal/collab"
)

// OpenAISDKClient binds collab.Inference to github.com/sashabaranov/go-openai,
// the idiomatic choice when the provider is plain OpenAI-compatible and the
// HTTPClient's tiering/thinking-block stripping isn't needed.
type OpenAISDKClient struct {
	client *openai.Client
	model  string
}

// NewOpenAISDKClient builds a client from OPENAI_API_KEY / OPENAI_BASE_URL /
// OPENAI_MODEL, the same environment variables HTTPClient's default tier reads.
func NewOpenAISDKClient() *OpenAISDKClient {
	cfg := openai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	return &OpenAISDKClient{
		client: openai.NewClientWithConfig(cfg),
		model:  os.Getenv("OPENAI_MODEL"),
	}
}

// Generate implements collab.Inference.
func (c *OpenAISDKClient) Generate(ctx context.Context, system string, messages []collab.InferenceMessage, params collab.InferenceParams) (collab.InferenceResult, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   params.MaxTokens,
		Temperature: float32(params.Temperature),
		Stop:        params.Stop,
	})
	if err != nil {
		return collab.InferenceResult{}, fmt.Errorf("inference: openai sdk: %w", err)
	}
	if len(resp.Choices) == 0 {
		return collab.InferenceResult{}, fmt.Errorf("inference: openai sdk: no choices in response")
	}
	return collab.InferenceResult{
		Text:       StripFences(resp.Choices[0].Message.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
