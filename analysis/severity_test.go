package analysis

import "testing"

func TestMapSeverity(t *testing.T) {
	for _, tt := range []struct {
		tag   string
		level Severity
		label string
		color string
	}{
		{"Low", SeverityLow, "normal", "green"},
		{"Medium", SeverityMedium, "moderate", "orange"},
		{"High", SeverityHigh, "needs attention", "red"},
		{"", SeverityLow, "normal", "green"},
		{"high", SeverityLow, "normal", "green"},
		{"Critical", SeverityLow, "normal", "green"},
	} {
		t.Run(tt.tag, func(t *testing.T) {
			got := MapSeverity(tt.tag)
			if got.Level != tt.level || got.Label != tt.label || got.Color != tt.color {
				t.Errorf("MapSeverity(%q) = %+v, want {%s %s %s}", tt.tag, got, tt.level, tt.label, tt.color)
			}
		})
	}
}
