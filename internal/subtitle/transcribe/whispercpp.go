package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sublate/backend/internal/retry"
)

// WhisperCppClient talks to the whisper.cpp HTTP server (whisper-server).
type WhisperCppClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewWhisperCppClient creates a client for the whisper.cpp server
func NewWhisperCppClient(baseURL string) *WhisperCppClient {
	return &WhisperCppClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // transcription can be very long
		},
	}
}

func (c *WhisperCppClient) Name() string {
	return "whispercpp"
}

// MaxClipDuration caps clips at ten minutes: the server accepts more, but
// decoding quality and memory use degrade on very long windows.
func (c *WhisperCppClient) MaxClipDuration() time.Duration {
	return 10 * time.Minute
}

func (c *WhisperCppClient) Recognize(ctx context.Context, wav []byte, opts Options) ([]Fragment, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "clip.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("temperature", "0.0")
	if opts.Language != "" && opts.Language != "auto" {
		writer.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		writer.WriteField("prompt", opts.Prompt)
	}
	writer.Close()

	url := c.baseURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, retry.Transient("whispercpp recognize", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient("whispercpp recognize", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.FromHTTPStatus("whispercpp recognize", resp.StatusCode, string(body))
	}

	var parsed struct {
		Text     string `json:"text"`
		Segments []struct {
			Start        float64 `json:"start"`
			End          float64 `json:"end"`
			Text         string  `json:"text"`
			NoSpeechProb float64 `json:"no_speech_prob"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, retry.Transient("whispercpp recognize", fmt.Errorf("parse response: %w", err))
	}

	fragments := make([]Fragment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		fragments = append(fragments, Fragment{
			Start:        secondsToDuration(s.Start),
			End:          secondsToDuration(s.End),
			Text:         strings.TrimSpace(s.Text),
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	if len(fragments) == 0 && strings.TrimSpace(parsed.Text) != "" {
		// Older server builds return only the flat text field.
		fragments = append(fragments, Fragment{Text: strings.TrimSpace(parsed.Text)})
	}
	return fragments, nil
}
