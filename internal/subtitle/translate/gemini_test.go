package translate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sublate/backend/internal/retry"
)

func geminiReply(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	}
}

func newTestGemini(url string) *GeminiTranslator {
	return &GeminiTranslator{
		apiKey:     "test-key",
		apiBase:    url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGeminiTranslateParsesNumberedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("path = %q, want default model", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "[1] hello") {
			t.Errorf("request body missing numbered line: %s", body)
		}
		json.NewEncoder(w).Encode(geminiReply("[1] 你好\n[2] 世界"))
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	got, err := g.Translate(context.Background(), Request{
		Lines:   []string{"hello", "world"},
		Options: Options{TargetLang: "Simplified Chinese"},
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got[0] != "你好" || got[1] != "世界" {
		t.Errorf("translations = %v", got)
	}
}

func TestGeminiBlockedPromptIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{},
			"promptFeedback": map[string]string{
				"blockReason": "SAFETY",
			},
		})
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	_, err := g.Translate(context.Background(), Request{Lines: []string{"x"}})
	if err == nil {
		t.Fatal("expected an error for a blocked prompt")
	}
	if retry.IsPermanent(err) {
		t.Errorf("blocked prompt should degrade to passthrough, not abort the run: %v", err)
	}
}

func TestGeminiAuthFailureIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	_, err := g.Translate(context.Background(), Request{Lines: []string{"x"}})
	if !retry.IsPermanent(err) {
		t.Fatalf("auth failure should be permanent, got %v", err)
	}
}

func TestGeminiMisalignedReplyIsAlignmentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiReply("[1] together now"))
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	_, err := g.Translate(context.Background(), Request{Lines: []string{"a", "b"}})
	if _, ok := err.(*AlignmentError); !ok {
		t.Fatalf("want AlignmentError, got %v", err)
	}
}

func TestGeminiModelOverride(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(geminiReply("[1] ok"))
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	g.modelResolver = func() string { return "gemini-2.5-pro" }
	if _, err := g.Translate(context.Background(), Request{Lines: []string{"a"}}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(path, "gemini-2.5-pro") {
		t.Errorf("path = %q, want resolver model", path)
	}

	if _, err := g.Translate(context.Background(), Request{
		Lines:   []string{"a"},
		Options: Options{Model: "gemini-exp"},
	}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(path, "gemini-exp") {
		t.Errorf("path = %q, request model should beat the resolver", path)
	}
}
