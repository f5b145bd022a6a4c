package analysis

// Request is one report to analyze: either captured audio or a transcript.
// It is immutable; accessors return copies.
type Request struct {
	audio      []byte
	mimeType   string
	transcript string
}

func NewAudioRequest(data []byte, mimeType string) Request {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Request{audio: buf, mimeType: mimeType}
}

func NewTextRequest(transcript string) Request {
	return Request{transcript: transcript}
}

func (r Request) IsAudio() bool { return r.audio != nil }

func (r Request) Audio() []byte {
	if r.audio == nil {
		return nil
	}
	buf := make([]byte, len(r.audio))
	copy(buf, r.audio)
	return buf
}

func (r Request) MimeType() string   { return r.mimeType }
func (r Request) Transcript() string { return r.transcript }

func (r Request) kind() string {
	if r.IsAudio() {
		return "audio"
	}
	return "text"
}

// Result is the structured clinical record for one report. Every field is
// populated, either from the model or from a fixed default.
type Result struct {
	Transcript      string       `json:"transcript"`
	ClinicalSummary string       `json:"clinical_summary"`
	Severity        SeverityInfo `json:"severity"`
	Mood            string       `json:"mood"`
	Advice          string       `json:"advice"`

	// Fallback is set when the record was not produced by the model.
	Fallback       bool   `json:"fallback,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

const (
	defaultTranscript   = "unable to transcribe"
	defaultSummary      = "unable to summarize symptoms"
	defaultMood         = "unspecified"
	defaultAdvice       = "please consult a doctor if symptoms do not improve"
	fallbackSummary     = "unable to analyze symptoms"
	fallbackAdvice      = "please consult a doctor if you notice anything unusual"
	reasonNoAPIKey      = "no API key configured"
	reasonNoAudio       = "no audio received"
	reasonEmptyResponse = "empty model response"
	reasonFailed        = "analysis failed"
)

// resultFromFields maps parsed model output onto a Result for req.
func resultFromFields(f Fields, req Request) Result {
	r := Result{
		Transcript:      f.Transcript(),
		ClinicalSummary: f.ClinicalSummary,
		Severity:        MapSeverity(f.Severity),
		Mood:            f.Mood,
		Advice:          f.Advice,
	}
	if r.Transcript == "" {
		r.Transcript = defaultTranscript
		if !req.IsAudio() && req.Transcript() != "" {
			r.Transcript = req.Transcript()
		}
	}
	if r.ClinicalSummary == "" {
		r.ClinicalSummary = defaultSummary
		if !req.IsAudio() && req.Transcript() != "" {
			r.ClinicalSummary = req.Transcript()
		}
	}
	if r.Mood == "" {
		r.Mood = defaultMood
	}
	if r.Advice == "" {
		r.Advice = defaultAdvice
	}
	return r
}

// Fallback is the deterministic result used when analysis cannot complete.
// The transcript is echoed when the request carried one.
func Fallback(req Request, reason string) Result {
	transcript, summary := req.Transcript(), req.Transcript()
	if transcript == "" {
		transcript, summary = defaultTranscript, fallbackSummary
	}
	return Result{
		Transcript:      transcript,
		ClinicalSummary: summary,
		Severity:        MapSeverity(string(SeverityLow)),
		Mood:            defaultMood,
		Advice:          fallbackAdvice,
		Fallback:        true,
		FallbackReason:  reason,
	}
}
