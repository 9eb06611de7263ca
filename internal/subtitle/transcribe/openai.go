package transcribe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sublate/backend/internal/retry"
)

// OpenAIWhisperClient transcribes clips with the OpenAI audio API. A custom
// base URL points it at any OpenAI-compatible server.
type OpenAIWhisperClient struct {
	client *openai.Client
}

func NewOpenAIWhisperClient(apiKey, baseURL string) *OpenAIWhisperClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIWhisperClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIWhisperClient) Name() string {
	return "openai"
}

// MaxClipDuration keeps uploads under the API's 25 MB limit: ten minutes of
// 16 kHz mono PCM is about 19 MB.
func (c *OpenAIWhisperClient) MaxClipDuration() time.Duration {
	return 10 * time.Minute
}

func (c *OpenAIWhisperClient) Recognize(ctx context.Context, wav []byte, opts Options) ([]Fragment, error) {
	model := opts.Model
	if model == "" {
		model = openai.Whisper1
	}
	req := openai.AudioRequest{
		Model:    model,
		Reader:   bytes.NewReader(wav),
		FilePath: "clip.wav",
		Format:   openai.AudioResponseFormatVerboseJSON,
		Prompt:   opts.Prompt,
	}
	if opts.Language != "" && opts.Language != "auto" {
		req.Language = opts.Language
	}

	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError("openai recognize", err)
	}

	fragments := make([]Fragment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		fragments = append(fragments, Fragment{
			Start:        secondsToDuration(s.Start),
			End:          secondsToDuration(s.End),
			Text:         strings.TrimSpace(s.Text),
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	if len(fragments) == 0 && strings.TrimSpace(resp.Text) != "" {
		fragments = append(fragments, Fragment{Text: strings.TrimSpace(resp.Text)})
	}
	return fragments, nil
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
