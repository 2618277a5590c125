package templates

import "regexp"

// placeholderRegex matches {{name}} tokens. Names are word characters plus
// dots and dashes.
var placeholderRegex = regexp.MustCompile(`\{\{([\w.-]+)\}\}`)

// Render substitutes {{placeholder}} tokens in text with values from vars.
// Unknown placeholders are left verbatim so authors can spot them in output,
// and substitution is single-pass: a value containing placeholder syntax is
// never expanded again.
func Render(text string, vars map[string]string) string {
	return placeholderRegex.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Placeholders returns the distinct placeholder names referenced by text, in
// order of first appearance.
func Placeholders(text string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, match := range placeholderRegex.FindAllStringSubmatch(text, -1) {
		name := match[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
