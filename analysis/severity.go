package analysis

// Severity is the coarse tag the model assigns to a report.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// SeverityInfo is the display form of a Severity.
type SeverityInfo struct {
	Level Severity `json:"level"`
	Label string   `json:"label"`
	Color string   `json:"color"`
}

var severityTable = map[Severity]SeverityInfo{
	SeverityLow:    {Level: SeverityLow, Label: "normal", Color: "green"},
	SeverityMedium: {Level: SeverityMedium, Label: "moderate", Color: "orange"},
	SeverityHigh:   {Level: SeverityHigh, Label: "needs attention", Color: "red"},
}

// MapSeverity looks up tag exactly. Anything unrecognized maps to Low.
func MapSeverity(tag string) SeverityInfo {
	if info, ok := severityTable[Severity(tag)]; ok {
		return info
	}
	return severityTable[SeverityLow]
}
