package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Fields is the raw record recovered from model output. Every field is
// always set: strings default to "" and Severity to "Low".
type Fields struct {
	DialectTranscript string
	OriginalDialect   string
	ClinicalSummary   string
	Severity          string
	Mood              string
	Advice            string
}

// Transcript prefers dialect_transcript over the legacy original_dialect key.
func (f Fields) Transcript() string {
	if f.DialectTranscript != "" {
		return f.DialectTranscript
	}
	return f.OriginalDialect
}

type parseStage int

const (
	stageStrict parseStage = iota
	stageRepaired
	stageExtracted
)

func (s parseStage) String() string {
	switch s {
	case stageStrict:
		return "strict"
	case stageRepaired:
		return "repaired"
	default:
		return "extracted"
	}
}

// Parse recovers Fields from raw model text. It never fails: strict JSON,
// then structurally repaired JSON, then per-key pattern extraction.
func Parse(raw string) Fields {
	f, _ := parse(raw)
	return f
}

func parse(raw string) (Fields, parseStage) {
	text := stripFence(raw)
	if f, ok := parseStrict(text); ok {
		return f, stageStrict
	}
	if f, ok := parseStrict(repairStructure(text)); ok {
		return f, stageRepaired
	}
	return extractFields(text), stageExtracted
}

// stripFence removes a ``` or ```json wrapper by exact prefix/suffix match.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "\r")
	s = strings.TrimPrefix(s, "\n")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}

var fieldKeys = []string{
	"dialect_transcript",
	"original_dialect",
	"clinical_summary",
	"severity",
	"mood",
	"advice",
}

func (f *Fields) set(key, value string) {
	switch key {
	case "dialect_transcript":
		f.DialectTranscript = value
	case "original_dialect":
		f.OriginalDialect = value
	case "clinical_summary":
		f.ClinicalSummary = value
	case "severity":
		f.Severity = value
	case "mood":
		f.Mood = value
	case "advice":
		f.Advice = value
	}
}

func (f *Fields) fillDefaults() {
	if f.Severity == "" {
		f.Severity = string(SeverityLow)
	}
}

// parseStrict accepts only a JSON object. Non-string values for known keys
// are treated as missing.
func parseStrict(text string) (Fields, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return Fields{}, false
	}
	var f Fields
	for _, key := range fieldKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			f.set(key, v)
		}
	}
	f.fillDefaults()
	return f, true
}

// repairStructure closes an unterminated string and any unbalanced braces.
// Braces inside string literals are not counted.
func repairStructure(text string) string {
	inStr, esc := false, false
	depth := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if esc {
			esc = false
			continue
		}
		if inStr {
			switch c {
			case '\\':
				esc = true
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
		}
	}

	var b strings.Builder
	if esc {
		// A dangling backslash would escape the closing quote.
		b.WriteString(text[:len(text)-1])
	} else {
		b.WriteString(text)
	}
	if inStr {
		b.WriteByte('"')
	}
	for ; depth > 0; depth-- {
		b.WriteByte('}')
	}
	return b.String()
}

var fieldPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(fieldKeys))
	for _, key := range fieldKeys {
		m[key] = regexp.MustCompile(`"` + key + `"\s*:\s*"([^"]*?)"`)
	}
	return m
}()

// extractFields pulls each "key": "value" pair literally, without unescaping.
func extractFields(text string) Fields {
	var f Fields
	for _, key := range fieldKeys {
		if m := fieldPatterns[key].FindStringSubmatch(text); m != nil {
			f.set(key, m[1])
		}
	}
	f.fillDefaults()
	return f
}
