package correction

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var changeMarker = regexp.MustCompile(`(?s)<change confidence="([0-9.]+)" rule="([^"]*)" from="([^"]*)">(.*?)</change>`)

// Change is one parsed change marker.
type Change struct {
	RuleID     string  `json:"rule_id"`
	Confidence float64 `json:"confidence"`
	From       string  `json:"from"`
	To         string  `json:"to"`
}

// FormatMarker renders a replacement as an inline change marker. The original
// span travels in the from attribute so the edit can be reverted.
func FormatMarker(ruleID string, confidence float64, from, to string) string {
	var b strings.Builder
	b.WriteString(`<change confidence="`)
	b.WriteString(strconv.FormatFloat(confidence, 'f', 2, 64))
	b.WriteString(`" rule="`)
	b.WriteString(html.EscapeString(ruleID))
	b.WriteString(`" from="`)
	b.WriteString(html.EscapeString(from))
	b.WriteString(`">`)
	b.WriteString(html.EscapeString(to))
	b.WriteString(`</change>`)
	return b.String()
}

// StripMarkers returns the corrected text without markers.
func StripMarkers(text string) string {
	return changeMarker.ReplaceAllStringFunc(text, func(m string) string {
		return html.UnescapeString(changeMarker.FindStringSubmatch(m)[4])
	})
}

// RestoreOriginal undoes every marked change.
func RestoreOriginal(text string) string {
	return changeMarker.ReplaceAllStringFunc(text, func(m string) string {
		return html.UnescapeString(changeMarker.FindStringSubmatch(m)[3])
	})
}

// ParseChanges lists the markers of a corrected text in source order.
func ParseChanges(text string) []Change {
	found := changeMarker.FindAllStringSubmatch(text, -1)
	out := make([]Change, 0, len(found))
	for _, m := range found {
		confidence, _ := strconv.ParseFloat(m[1], 64)
		out = append(out, Change{
			RuleID:     html.UnescapeString(m[2]),
			Confidence: confidence,
			From:       html.UnescapeString(m[3]),
			To:         html.UnescapeString(m[4]),
		})
	}
	return out
}
