package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sublate/backend/internal/retry"
)

// GoogleRecognizerConfig configures the Cloud Speech-to-Text v2 engine.
type GoogleRecognizerConfig struct {
	ProjectID       string
	Location        string // "global" or a region like "us-central1"
	Model           string // "latest_long", "chirp", ...
	CredentialsJSON string // service account key; empty uses ambient credentials
}

// GoogleRecognizer transcribes clips with Cloud Speech-to-Text v2. The API
// reports word-level offsets rather than sentence segments, so words are
// regrouped into utterance-sized fragments after recognition.
type GoogleRecognizer struct {
	client    *speech.Client
	projectID string
	location  string
	model     string
}

// NewGoogleRecognizer dials the regional Speech endpoint once; the client is
// reused across all clips of a run.
func NewGoogleRecognizer(ctx context.Context, cfg GoogleRecognizerConfig) (*GoogleRecognizer, error) {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			CredentialsJSON: []byte(cfg.CredentialsJSON),
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))
	}
	if location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:443", location)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "latest_long"
	}
	return &GoogleRecognizer{
		client:    client,
		projectID: cfg.ProjectID,
		location:  location,
		model:     model,
	}, nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

func (g *GoogleRecognizer) Name() string {
	return "google"
}

// MaxClipDuration reflects the synchronous Recognize limit of one minute.
func (g *GoogleRecognizer) MaxClipDuration() time.Duration {
	return 59 * time.Second
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, wav []byte, opts Options) ([]Fragment, error) {
	req := &speechpb.RecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", g.projectID, g.location),
		Config: &speechpb.RecognitionConfig{
			Model:         g.model,
			LanguageCodes: []string{googleLangCode(opts.Language)},
			DecodingConfig: &speechpb.RecognitionConfig_AutoDecodingConfig{
				AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
			},
			Features: &speechpb.RecognitionFeatures{
				EnableWordTimeOffsets:      true,
				EnableAutomaticPunctuation: true,
			},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: wav},
	}

	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		return nil, classifyGRPCError("google recognize", err)
	}

	var words []spokenWord
	var transcript strings.Builder
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		alt := alts[0]
		if t := strings.TrimSpace(alt.GetTranscript()); t != "" {
			if transcript.Len() > 0 {
				transcript.WriteString(" ")
			}
			transcript.WriteString(t)
		}
		conf := float64(alt.GetConfidence())
		for _, w := range alt.GetWords() {
			words = append(words, spokenWord{
				start:      w.GetStartOffset().AsDuration(),
				end:        w.GetEndOffset().AsDuration(),
				text:       w.GetWord(),
				confidence: conf,
			})
		}
	}

	if len(words) == 0 {
		// No word offsets (model or language without them): one fragment
		// spanning the whole clip.
		text := strings.TrimSpace(transcript.String())
		if text == "" {
			return nil, nil
		}
		return []Fragment{{Text: text}}, nil
	}
	return groupWords(words), nil
}

type spokenWord struct {
	start      time.Duration
	end        time.Duration
	text       string
	confidence float64
}

const (
	maxWordsPerFragment    = 12
	punctuationSplitMinLen = 5
)

// groupWords folds a word stream into utterance-sized fragments: at most
// maxWordsPerFragment words each, splitting earlier at sentence punctuation
// once a fragment holds punctuationSplitMinLen words.
func groupWords(words []spokenWord) []Fragment {
	var fragments []Fragment
	var cur []spokenWord

	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		var conf float64
		for i, w := range cur {
			texts[i] = w.text
			conf += w.confidence
		}
		f := Fragment{
			Start:      cur[0].start,
			End:        cur[len(cur)-1].end,
			Text:       strings.TrimSpace(strings.Join(texts, " ")),
			Confidence: conf / float64(len(cur)),
		}
		if f.End <= f.Start {
			f.End = f.Start + 2*time.Second
		}
		fragments = append(fragments, f)
		cur = cur[:0]
	}

	for _, w := range words {
		cur = append(cur, w)
		if len(cur) >= maxWordsPerFragment ||
			(len(cur) >= punctuationSplitMinLen && endsSentence(w.text)) {
			flush()
		}
	}
	flush()
	return fragments
}

var sentenceEnders = map[rune]bool{
	'。': true, '？': true, '！': true, '，': true,
	'.': true, '?': true, '!': true, ',': true,
}

func endsSentence(word string) bool {
	r, _ := utf8.DecodeLastRuneInString(strings.TrimSpace(word))
	return sentenceEnders[r]
}

// googleLangCode widens bare ISO 639-1 codes to the BCP-47 tags the v2 API
// expects, and maps auto-detection onto the API's "auto" tag.
func googleLangCode(code string) string {
	switch code {
	case "", "auto":
		return "auto"
	}
	if strings.Contains(code, "-") {
		return code
	}
	regions := map[string]string{
		"en": "en-US",
		"ko": "ko-KR",
		"ja": "ja-JP",
		"zh": "cmn-Hans-CN",
		"es": "es-ES",
		"fr": "fr-FR",
		"de": "de-DE",
		"pt": "pt-BR",
		"it": "it-IT",
		"ru": "ru-RU",
		"th": "th-TH",
		"vi": "vi-VN",
		"id": "id-ID",
		"hi": "hi-IN",
		"ar": "ar-XA",
	}
	if tag, ok := regions[code]; ok {
		return tag
	}
	return code
}

// classifyGRPCError maps gRPC failures onto the retry taxonomy: transport
// and throttling codes are transient, auth and argument errors permanent.
func classifyGRPCError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return retry.Transient(op, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Internal:
		return retry.Transient(op, err)
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument,
		codes.NotFound, codes.FailedPrecondition, codes.OutOfRange:
		return retry.Permanent(op, err)
	}
	return retry.Transient(op, err)
}
