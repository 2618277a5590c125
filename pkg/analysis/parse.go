package analysis

import (
	"strconv"
	"strings"
)

// parseSummary normalises a summary response to a single line, tolerating a
// model that echoes a "SUMMARY:" marker despite the prompt.
func parseSummary(text string) string {
	return strings.Join(strings.Fields(stripMarker(text, "SUMMARY:")), " ")
}

// parseKeywords splits a keyword response on commas and newlines, dropping
// empties and list bullets.
func parseKeywords(text string) []string {
	var keywords []string
	for _, kw := range strings.FieldsFunc(stripMarker(text, "KEYWORDS:"), func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		kw = strings.TrimSpace(strings.TrimLeft(kw, "-* \t"))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// parseScore extracts the relevance score from a response: the first token
// that parses as a number, clamped to [0, 1]. The bool is false when no such
// token exists; the score is then 0.0.
func parseScore(text string) (float64, bool) {
	for _, field := range strings.Fields(stripMarker(text, "RELEVANCE:")) {
		field = strings.Trim(field, ".,;:")
		if score, err := strconv.ParseFloat(field, 64); err == nil {
			return clampScore(score), true
		}
	}
	return 0, false
}

// stripMarker drops a leading marker line prefix, case-insensitively.
func stripMarker(text, marker string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= len(marker) && strings.EqualFold(trimmed[:len(marker)], marker) {
		return strings.TrimSpace(trimmed[len(marker):])
	}
	return trimmed
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
