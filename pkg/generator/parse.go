package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/garethmul/newsmill/pkg/models"
)

const maxTitleRunes = 255

// post is the parsed output of the main generation template.
type post struct {
	Title     string
	Body      string
	WordCount int
}

// parsePost splits the main template's response into title and body. The
// title is the first markdown H1, or failing that the first non-empty line,
// truncated to 255 runes. A response with no body cannot fill the draft.
func parsePost(text string) (*post, error) {
	title, rest := splitTitle(strings.Split(text, "\n"))
	if title == "" {
		return nil, errors.New("response has no title line")
	}
	body := strings.TrimSpace(strings.Join(rest, "\n"))
	if body == "" {
		return nil, errors.New("response has no body")
	}
	return &post{
		Title:     truncateRunes(title, maxTitleRunes),
		Body:      body,
		WordCount: len(strings.Fields(body)),
	}, nil
}

// splitTitle pulls the title out of the response lines: the first markdown
// H1 wins, otherwise the first non-empty line is promoted to title.
func splitTitle(lines []string) (string, []string) {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		title := trimmed
		if after, ok := strings.CutPrefix(trimmed, "# "); ok {
			title = strings.TrimSpace(after)
		}
		return title, lines[i+1:]
	}
	return "", nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// parseContent shapes a template response into the content_data blob for its
// parsing method. It never fails: when the response does not match the
// declared shape, the raw text is wrapped instead and the returned warning
// says why.
func parseContent(method, text string) (json.RawMessage, string) {
	trimmed := strings.TrimSpace(text)

	switch method {
	case models.ParseGenericText, "":
		return rawTextContent(trimmed), ""

	case models.ParseSocialMediaJSON, models.ParseVideoScriptJSON:
		obj := extractJSON(trimmed)
		if obj == nil {
			return rawTextContent(trimmed), fmt.Sprintf("%s response is not valid JSON", method)
		}
		return obj, ""

	case models.ParsePrayerPoints:
		points := parseListItems(trimmed)
		if len(points) == 0 {
			return rawTextContent(trimmed), "no numbered points found"
		}
		return mustJSON(map[string]any{"points": points}), ""

	case models.ParseImagePromptList:
		prompts := parseListItems(trimmed)
		if len(prompts) == 0 {
			return rawTextContent(trimmed), "no prompt lines found"
		}
		return mustJSON(map[string]any{"prompts": prompts}), ""

	default:
		return rawTextContent(trimmed), fmt.Sprintf("unknown parsing method %q", method)
	}
}

func rawTextContent(text string) json.RawMessage {
	return mustJSON(map[string]string{"text": text})
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// Maps of strings cannot fail to marshal.
		panic(err)
	}
	return raw
}

// extractJSON finds the JSON object or array in a response, tolerating
// markdown code fences and surrounding prose. Returns nil when nothing
// parseable is present.
func extractJSON(text string) json.RawMessage {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil
	}
	end := strings.LastIndexAny(text, "}]")
	if end < start {
		return nil
	}
	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil
	}
	return json.RawMessage(candidate)
}

// parseListItems extracts the items of a numbered or bulleted list, one per
// line. Lines without a list prefix are skipped.
func parseListItems(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		item, ok := stripListPrefix(trimmed)
		if ok && item != "" {
			items = append(items, item)
		}
	}
	return items
}

// stripListPrefix removes a leading "1." / "1)" / "-" / "*" marker.
func stripListPrefix(line string) (string, bool) {
	if after, ok := strings.CutPrefix(line, "- "); ok {
		return strings.TrimSpace(after), true
	}
	if after, ok := strings.CutPrefix(line, "* "); ok {
		return strings.TrimSpace(after), true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return "", false
	}
	if line[i] != '.' && line[i] != ')' {
		return "", false
	}
	return strings.TrimSpace(line[i+1:]), true
}
