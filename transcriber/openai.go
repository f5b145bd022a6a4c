package transcriber

import "context"

type OpenAI struct {
	baseRecognizer
}

func NewOpenAI(apiKey, lang string) *OpenAI {
	return &OpenAI{
		baseRecognizer: newBase("https://api.openai.com/v1/audio/transcriptions", apiKey, "gpt-4o-transcribe", lang),
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Recognize(ctx context.Context, audio []byte, format string) (*Result, error) {
	var oResp struct {
		Text string `json:"text"`
	}
	resp, err := o.post(ctx, "openai", audio, format, "json", &oResp)
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:      oResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: rateLimit(resp.Header),
	}, nil
}
