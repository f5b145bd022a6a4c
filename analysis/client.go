// Package analysis turns a spoken or written health report into a
// structured clinical record using a remote multimodal model.
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"voicediary/log"
	"voicediary/nettrace"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"

	textMaxOutputTokens = 1024
)

// Transport performs one HTTP round trip. *nettrace.Client implements it.
type Transport interface {
	Do(req *http.Request) (*nettrace.Response, error)
}

type Config struct {
	APIKey          string
	Endpoint        string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Policy          RetryPolicy
	// Sleep defaults to a context-aware timer.
	Sleep Sleeper
}

// Client submits requests to a Gemini generateContent endpoint. Analyze is
// safe for concurrent use.
type Client struct {
	cfg       Config
	transport Transport
	url       string
}

func NewClient(cfg Config, transport Transport) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}
	if cfg.Policy.MaxAttempts < 1 || cfg.Policy.IsRetryable == nil || cfg.Policy.DelayFor == nil {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Client{
		cfg:       cfg,
		transport: transport,
		url:       fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(cfg.Endpoint, "/"), cfg.Model),
	}
}

func (c *Client) Model() string { return c.cfg.Model }

// Analyze never fails: any unrecoverable problem yields Fallback(req, ...).
func (c *Client) Analyze(ctx context.Context, req Request) Result {
	res, err := c.analyze(ctx, req)
	if err != nil {
		log.Errorf("analysis failed: %v", err)
		return Fallback(req, reasonFailed)
	}
	return res
}

func (c *Client) analyze(ctx context.Context, req Request) (Result, error) {
	if c.cfg.APIKey == "" {
		log.Warn("no analysis API key configured, using fallback")
		return Fallback(req, reasonNoAPIKey), nil
	}
	if (req.IsAudio() && len(req.audio) == 0) || (!req.IsAudio() && req.Transcript() == "") {
		return Fallback(req, reasonNoAudio), nil
	}

	body, err := json.Marshal(c.payload(req))
	if err != nil {
		return Result{}, fmt.Errorf("encoding request: %w", err)
	}

	resp, attempts, err := c.send(ctx, body)
	if err != nil {
		return Result{}, err
	}

	text := responseText(resp.Body)
	if strings.TrimSpace(text) == "" {
		log.Warn("empty model response, using fallback")
		return Fallback(req, reasonEmptyResponse), nil
	}

	fields, stage := parse(text)
	if stage != stageStrict {
		log.Warnf("model output recovered by %s parse", stage)
	}
	result := resultFromFields(fields, req)

	m := resp.Metrics
	if m == nil {
		m = &nettrace.Metrics{}
	}
	log.AnalysisDone(req.kind(), string(result.Severity.Level), false, attempts, log.NetTimings{
		DNSMs:      float64(m.DNS.Milliseconds()),
		TLSMs:      float64(m.TLS.Milliseconds()),
		TTFBMs:     float64(m.TTFB.Milliseconds()),
		TotalMs:    float64(m.Total.Milliseconds()),
		ConnReused: m.ConnReused,
	})
	return result, nil
}

// send runs the retry loop. A terminal status returns immediately; after the
// last attempt the most recent failure is returned.
func (c *Client) send(ctx context.Context, body []byte) (*nettrace.Response, int, error) {
	policy := c.cfg.Policy
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.cfg.Sleep(ctx, policy.DelayFor(attempt-1)); err != nil {
				return nil, attempt, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, attempt + 1, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)

		status := 0
		resp, err := c.transport.Do(req)
		switch {
		case err != nil:
			lastErr = &TransportError{Attempt: attempt + 1, Err: err}
		case resp.OK():
			return resp, attempt + 1, nil
		default:
			status = resp.StatusCode
			se := &StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body), retryable: policy.IsRetryable(resp.StatusCode)}
			if !se.retryable {
				return nil, attempt + 1, se
			}
			lastErr = se
		}

		if ctx.Err() != nil {
			return nil, attempt + 1, ctx.Err()
		}
		var wait = policy.DelayFor(attempt)
		if attempt == policy.MaxAttempts-1 {
			wait = 0
		}
		log.AnalysisAttempt(attempt+1, status, wait, lastErr)
	}
	return nil, policy.MaxAttempts, lastErr
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

func (c *Client) payload(req Request) generateRequest {
	gen := generationConfig{
		Temperature:      c.cfg.Temperature,
		MaxOutputTokens:  c.cfg.MaxOutputTokens,
		ResponseMimeType: "application/json",
	}
	if req.IsAudio() {
		return generateRequest{
			Contents: []content{{Parts: []part{
				{Text: systemInstruction},
				{InlineData: &inlineData{
					MimeType: req.MimeType(),
					Data:     base64.StdEncoding.EncodeToString(req.audio),
				}},
			}}},
			GenerationConfig: gen,
		}
	}
	gen.MaxOutputTokens = min(gen.MaxOutputTokens, textMaxOutputTokens)
	return generateRequest{
		Contents:         []content{{Parts: []part{{Text: textPrompt(req.Transcript())}}}},
		GenerationConfig: gen,
	}
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text    string `json:"text"`
				Thought bool   `json:"thought"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// responseText joins the non-thought text parts of the first candidate.
// An undecodable envelope yields "".
func responseText(body []byte) string {
	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil || len(gr.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		if !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
