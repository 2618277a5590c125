package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garethmul/newsmill/pkg/models"
)

func TestParsePost(t *testing.T) {
	t.Run("H1 title and body", func(t *testing.T) {
		post, err := parsePost("# Big News Today\n\nFirst paragraph of the post.\n\nSecond paragraph.")
		require.NoError(t, err)
		assert.Equal(t, "Big News Today", post.Title)
		assert.Equal(t, "First paragraph of the post.\n\nSecond paragraph.", post.Body)
		assert.Equal(t, 7, post.WordCount)
	})

	t.Run("no H1 falls back to first non-empty line", func(t *testing.T) {
		post, err := parsePost("\n\nPlain Title Line\nThe body follows here.")
		require.NoError(t, err)
		assert.Equal(t, "Plain Title Line", post.Title)
		assert.Equal(t, "The body follows here.", post.Body)
	})

	t.Run("empty body is an error", func(t *testing.T) {
		_, err := parsePost("# Title Only")
		require.Error(t, err)
	})

	t.Run("empty response is an error", func(t *testing.T) {
		_, err := parsePost("   \n\n  ")
		require.Error(t, err)
	})

	t.Run("overlong title truncates to 255 runes", func(t *testing.T) {
		long := strings.Repeat("é", 300)
		post, err := parsePost("# " + long + "\nBody.")
		require.NoError(t, err)
		assert.Equal(t, 255, len([]rune(post.Title)))
	})

	t.Run("word count ignores blank lines", func(t *testing.T) {
		post, err := parsePost("# T\none two\n\nthree")
		require.NoError(t, err)
		assert.Equal(t, 3, post.WordCount)
	})
}

func TestParseContent(t *testing.T) {
	t.Run("generic text wraps verbatim", func(t *testing.T) {
		content, warning := parseContent(models.ParseGenericText, "  plain response  ")
		assert.Empty(t, warning)
		assert.JSONEq(t, `{"text":"plain response"}`, string(content))
	})

	t.Run("empty method behaves like generic text", func(t *testing.T) {
		content, warning := parseContent("", "hello")
		assert.Empty(t, warning)
		assert.JSONEq(t, `{"text":"hello"}`, string(content))
	})

	t.Run("social json passes through", func(t *testing.T) {
		content, warning := parseContent(models.ParseSocialMediaJSON, `{"posts":[{"platform":"x","text":"hi"}]}`)
		assert.Empty(t, warning)
		assert.JSONEq(t, `{"posts":[{"platform":"x","text":"hi"}]}`, string(content))
	})

	t.Run("json inside a code fence is extracted", func(t *testing.T) {
		text := "Here you go:\n```json\n{\"posts\":[]}\n```\nEnjoy."
		content, warning := parseContent(models.ParseSocialMediaJSON, text)
		assert.Empty(t, warning)
		assert.JSONEq(t, `{"posts":[]}`, string(content))
	})

	t.Run("invalid json keeps raw text with a warning", func(t *testing.T) {
		content, warning := parseContent(models.ParseSocialMediaJSON, "not json at all")
		assert.Contains(t, warning, "not valid JSON")
		assert.JSONEq(t, `{"text":"not json at all"}`, string(content))
	})

	t.Run("video script json array", func(t *testing.T) {
		content, warning := parseContent(models.ParseVideoScriptJSON, `[{"scene":1,"line":"opening"}]`)
		assert.Empty(t, warning)
		assert.JSONEq(t, `[{"scene":1,"line":"opening"}]`, string(content))
	})

	t.Run("prayer points numbered list", func(t *testing.T) {
		content, warning := parseContent(models.ParsePrayerPoints, "1. For peace\n2) For wisdom\n- For rest")
		assert.Empty(t, warning)
		assert.JSONEq(t, `{"points":["For peace","For wisdom","For rest"]}`, string(content))
	})

	t.Run("prayer points with no list lines warns", func(t *testing.T) {
		content, warning := parseContent(models.ParsePrayerPoints, "no list here")
		assert.Equal(t, "no numbered points found", warning)
		assert.JSONEq(t, `{"text":"no list here"}`, string(content))
	})

	t.Run("image prompt list", func(t *testing.T) {
		content, warning := parseContent(models.ParseImagePromptList, "* sunrise over a city\n* close-up of hands")
		assert.Empty(t, warning)
		assert.JSONEq(t, `{"prompts":["sunrise over a city","close-up of hands"]}`, string(content))
	})

	t.Run("unknown method keeps raw text with a warning", func(t *testing.T) {
		content, warning := parseContent("haiku", "five seven five")
		assert.Contains(t, warning, `unknown parsing method "haiku"`)
		assert.JSONEq(t, `{"text":"five seven five"}`, string(content))
	})
}
