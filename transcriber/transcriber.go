// Package transcriber turns recorded speech into text with a hosted Whisper
// endpoint. It backs the engine capture mode, where the recognized text is
// sent for analysis instead of the audio.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voicediary/nettrace"
)

type Segment struct {
	Text         string
	NoSpeechProb float64
	AvgLogProb   float64
	Start        float64
	End          float64
}

type Result struct {
	Text         string
	Metrics      *nettrace.Metrics
	RateLimit    string
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
	Segments     []Segment
}

// Recognizer transcribes one complete utterance.
type Recognizer interface {
	Name() string
	Language() string
	Recognize(ctx context.Context, audio []byte, format string) (*Result, error)
}

// New picks a provider by name. Supported: groq, openai.
func New(provider, apiKey, lang string) (Recognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for %s recognizer", provider)
	}
	switch provider {
	case "", "groq":
		return NewGroq(apiKey, lang), nil
	case "openai":
		return NewOpenAI(apiKey, lang), nil
	default:
		return nil, fmt.Errorf("unknown recognizer %q", provider)
	}
}

type baseRecognizer struct {
	client *nettrace.Client
	apiURL string
	apiKey string
	model  string
	lang   string
}

func newBase(apiURL, apiKey, model, lang string) baseRecognizer {
	return baseRecognizer{
		client: nettrace.New(30 * time.Second),
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		lang:   lang,
	}
}

func (b *baseRecognizer) Language() string { return b.lang }

// SetURL points the recognizer at another endpoint.
func (b *baseRecognizer) SetURL(u string) { b.apiURL = u }

// Warm opens a connection ahead of the first upload.
func (b *baseRecognizer) Warm() {
	b.client.Warm(b.apiURL)
}

// post uploads audio as an OpenAI-compatible multipart transcription request
// and decodes the JSON reply into out.
func (b *baseRecognizer) post(ctx context.Context, provider string, audio []byte, format, responseFormat string, out any) (*nettrace.Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	writer.WriteField("model", b.model)
	writer.WriteField("response_format", responseFormat)
	if b.lang != "" {
		writer.WriteField("language", b.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API error %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, fmt.Errorf("%s response parse error: %w", provider, err)
	}
	return resp, nil
}

func rateLimit(h http.Header) string {
	return nettrace.FirstNonEmpty(h, "x-ratelimit-remaining-requests") + "/" +
		nettrace.FirstNonEmpty(h, "x-ratelimit-limit-requests")
}
