package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		vars     map[string]string
		expected string
	}{
		{
			name:     "substitutes known placeholders",
			text:     "Hello {{name}}, welcome to {{place}}.",
			vars:     map[string]string{"name": "Ada", "place": "newsmill"},
			expected: "Hello Ada, welcome to newsmill.",
		},
		{
			name:     "unknown placeholder left verbatim",
			text:     "Value: {{missing}}",
			vars:     map[string]string{"other": "x"},
			expected: "Value: {{missing}}",
		},
		{
			name:     "empty value substitutes to empty string",
			text:     "[{{gone}}]",
			vars:     map[string]string{"gone": ""},
			expected: "[]",
		},
		{
			name:     "no recursive expansion",
			text:     "{{a}}",
			vars:     map[string]string{"a": "{{b}}", "b": "nested"},
			expected: "{{b}}",
		},
		{
			name:     "dotted names",
			text:     "{{article.title}}",
			vars:     map[string]string{"article.title": "Headline"},
			expected: "Headline",
		},
		{
			name:     "repeated placeholder",
			text:     "{{x}} and {{x}}",
			vars:     map[string]string{"x": "twice"},
			expected: "twice and twice",
		},
		{
			name:     "nil vars",
			text:     "keep {{this}}",
			vars:     nil,
			expected: "keep {{this}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Render(tt.text, tt.vars))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders("{{title}} by {{author}} — {{title}} again, not {single}")
	assert.Equal(t, []string{"title", "author"}, names)

	assert.Empty(t, Placeholders("no tokens here"))
}

func TestBuiltinPrompts(t *testing.T) {
	for _, name := range BuiltinNames() {
		prompt, ok := builtinPrompt(name)
		assert.True(t, ok)
		assert.Equal(t, "builtin", prompt.Origin)
		assert.NotEmpty(t, prompt.PromptText)
	}

	_, ok := builtinPrompt("no.such.template")
	assert.False(t, ok)
}
