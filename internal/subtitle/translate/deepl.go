package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sublate/backend/internal/retry"
)

const deeplAPIURL = "https://api-free.deepl.com/v2/translate"

// deeplLanguages maps ISO 639-1 codes and human-readable names to DeepL
// target codes. Lookups are lowercased; anything unknown is uppercased and
// sent as-is.
var deeplLanguages = map[string]string{
	"ko": "KO", "korean": "KO",
	"en": "EN", "english": "EN",
	"ja": "JA", "japanese": "JA",
	"zh": "ZH", "chinese": "ZH",
	"simplified chinese":  "ZH-HANS",
	"traditional chinese": "ZH-HANT",
	"de": "DE", "german": "DE",
	"fr": "FR", "french": "FR",
	"es": "ES", "spanish": "ES",
	"it": "IT", "italian": "IT",
	"pt": "PT-BR", "portuguese": "PT-BR",
	"ru": "RU", "russian": "RU",
	"nl": "NL", "dutch": "NL",
	"pl": "PL", "polish": "PL",
}

// deeplFormality maps prompt presets onto DeepL's formality knob.
var deeplFormality = map[string]string{
	"documentary": "more",
	"anime":       "less",
	"movie":       "default",
}

// DeepLTranslator translates batches using the DeepL API. DeepL returns one
// translation per submitted text, so the numbered prompt protocol is not
// needed; Strict and Context are ignored.
type DeepLTranslator struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

func NewDeepLTranslator(apiKey string) *DeepLTranslator {
	return &DeepLTranslator{
		apiKey: apiKey,
		apiURL: deeplAPIURL,
		httpClient: &http.Client{
			Timeout: 1 * time.Minute,
		},
	}
}

func (d *DeepLTranslator) Name() string {
	return "deepl"
}

func (d *DeepLTranslator) Translate(ctx context.Context, req Request) ([]string, error) {
	if d.apiKey == "" {
		return nil, retry.Permanent("deepl translate", errors.New("API key not configured"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL,
		strings.NewReader(deeplForm(req).Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, retry.Transient("deepl translate", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient("deepl translate", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.FromHTTPStatus("deepl translate", resp.StatusCode, string(body))
	}

	var deeplResp struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal(body, &deeplResp); err != nil {
		return nil, retry.Transient("deepl translate", fmt.Errorf("parse response: %w", err))
	}

	if len(deeplResp.Translations) != len(req.Lines) {
		return nil, &AlignmentError{Want: len(req.Lines), Got: len(deeplResp.Translations)}
	}
	out := make([]string, len(deeplResp.Translations))
	for i, t := range deeplResp.Translations {
		out[i] = t.Text
	}
	return out, nil
}

// deeplForm builds the translate form, one text field per line.
func deeplForm(req Request) url.Values {
	form := url.Values{}
	for _, line := range req.Lines {
		form.Add("text", flattenLine(line))
	}
	form.Set("target_lang", deeplLangCode(req.TargetLang))
	if req.SourceLang != "" && req.SourceLang != "auto" {
		form.Set("source_lang", deeplLangCode(req.SourceLang))
	}
	if formality, ok := deeplFormality[req.Preset]; ok {
		form.Set("formality", formality)
	}
	return form
}

func deeplLangCode(lang string) string {
	if mapped, ok := deeplLanguages[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return mapped
	}
	return strings.ToUpper(lang)
}
