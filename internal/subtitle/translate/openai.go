package translate

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sublate/backend/internal/retry"
)

const defaultChatModel = "gpt-4o"

// OpenAITranslator translates batches with the OpenAI Chat Completions API.
// A custom base URL points it at any OpenAI-compatible server.
type OpenAITranslator struct {
	client *openai.Client
}

func NewOpenAITranslator(apiKey, baseURL string) *OpenAITranslator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAITranslator{client: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAITranslator) Name() string {
	return "openai"
}

func (o *OpenAITranslator) Translate(ctx context.Context, req Request) ([]string, error) {
	model := req.Model
	if model == "" {
		model = defaultChatModel
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(req.Options)},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(req)},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError("openai translate", err)
	}
	if len(resp.Choices) == 0 {
		return nil, retry.Transient("openai translate", errors.New("no choices in completion"))
	}
	return ParseNumbered(resp.Choices[0].Message.Content, len(req.Lines))
}

// classifyOpenAIError maps client failures onto the retry taxonomy.
// Cancellation passes through untouched so the caller sees ctx errors.
func classifyOpenAIError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retry.FromHTTPStatus(op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return retry.Transient(op, err)
}
