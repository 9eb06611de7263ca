package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sublate/backend/internal/retry"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/models"

// Dialogue trips the default safety filters constantly, and a blocked batch
// punches a passthrough hole into the middle of a track, so every category
// is relaxed.
var geminiSafetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

// Wire shapes for the generateContent endpoint.
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiSafety struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction geminiContent   `json:"system_instruction"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
	SafetySettings    []geminiSafety  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// ModelResolver supplies the settings-stored default model.
type ModelResolver func() string

// GeminiTranslator translates batches using the Google Gemini API.
type GeminiTranslator struct {
	apiKey        string
	apiBase       string
	modelResolver ModelResolver
	httpClient    *http.Client
}

func NewGeminiTranslator(apiKey string, modelResolver ModelResolver) *GeminiTranslator {
	return &GeminiTranslator{
		apiKey:        apiKey,
		apiBase:       geminiAPIBase,
		modelResolver: modelResolver,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// currentModel picks the per-run override, then the stored setting, then the
// built-in default.
func (g *GeminiTranslator) currentModel(override string) string {
	if override != "" {
		return override
	}
	if g.modelResolver != nil {
		if m := g.modelResolver(); m != "" {
			return m
		}
	}
	return "gemini-2.0-flash"
}

func (g *GeminiTranslator) Name() string {
	return "gemini"
}

func (g *GeminiTranslator) Translate(ctx context.Context, req Request) ([]string, error) {
	if g.apiKey == "" {
		return nil, retry.Permanent("gemini translate", errors.New("API key not configured"))
	}

	body := geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: SystemPrompt(req.Options)}}},
		Contents:          []geminiContent{{Parts: []geminiPart{{Text: UserPrompt(req)}}}},
		GenerationConfig:  geminiGenConfig{Temperature: 0.3},
	}
	for _, cat := range geminiSafetyCategories {
		body.SafetySettings = append(body.SafetySettings, geminiSafety{Category: cat, Threshold: "BLOCK_NONE"})
	}

	text, err := g.generate(ctx, g.currentModel(req.Model), body)
	if err != nil {
		return nil, err
	}
	return ParseNumbered(text, len(req.Lines))
}

// generate posts one generateContent call and returns the first candidate's
// text.
func (g *GeminiTranslator) generate(ctx context.Context, model string, body geminiRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s:generateContent", g.apiBase, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", retry.Transient("gemini translate", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Transient("gemini translate", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", retry.FromHTTPStatus("gemini translate", resp.StatusCode, string(raw))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", retry.Transient("gemini translate", fmt.Errorf("parse response: %w", err))
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		if reason := parsed.PromptFeedback.BlockReason; reason != "" {
			// Blocks are batch-specific: retries may pass with the stricter
			// re-prompt, and exhaustion degrades to passthrough.
			return "", retry.Transient("gemini translate", fmt.Errorf("prompt blocked: %s", reason))
		}
		return "", retry.Transient("gemini translate", errors.New("empty response"))
	}
	if fr := parsed.Candidates[0].FinishReason; fr != "" && fr != "STOP" {
		log.Printf("[gemini] WARNING: finishReason=%s", fr)
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
