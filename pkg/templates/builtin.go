package templates

import "github.com/garethmul/newsmill/pkg/models"

// Built-in prompts used when neither the account nor the global account has
// a stored template of the requested name. Stored templates always win.
var builtinPrompts = map[string]models.ResolvedPrompt{
	models.TemplateArticleSummary: {
		TemplateName: models.TemplateArticleSummary,
		Origin:       "builtin",
		SystemInstruction: "You are an editorial assistant analysing news articles. " +
			"Respond with only what is asked for, no preamble.",
		PromptText: `Summarise the following article in at most two sentences.

Title: {{title}}
URL: {{url}}

{{full_text}}`,
	},
	models.TemplateArticleKeywords: {
		TemplateName: models.TemplateArticleKeywords,
		Origin:       "builtin",
		SystemInstruction: "You are an editorial assistant analysing news articles. " +
			"Respond with only what is asked for, no preamble.",
		PromptText: `List up to 10 keywords for the following article as a single
comma-separated line.

Title: {{title}}

{{full_text}}`,
	},
	models.TemplateArticleRelevance: {
		TemplateName: models.TemplateArticleRelevance,
		Origin:       "builtin",
		SystemInstruction: "You are an editorial assistant analysing news articles. " +
			"Respond with only what is asked for, no preamble.",
		PromptText: `Rate how relevant the following article is for a general news
audience. Respond with a single number between 0.0 and 1.0.

Title: {{title}}

{{full_text}}`,
	},
	models.TemplateBlogPost: {
		TemplateName:  models.TemplateBlogPost,
		Category:      models.CategoryBlog,
		MediaType:     models.MediaTypeText,
		ParsingMethod: models.ParseGenericText,
		Origin:        "builtin",
		SystemInstruction: "You are a professional content writer. Write original, engaging " +
			"copy grounded in the source material. Never fabricate quotes or facts.",
		PromptText: `Write a blog post based on this source article.

Source title: {{title}}
Source summary: {{analysis_output}}
Keywords: {{keywords}}
Tone: {{tone}}

Source text:
{{article_content}}

Structure your response exactly as follows:
- First line: a single markdown H1 with the post title.
- Then the full post body in markdown.`,
	},
	models.TemplateSocialMedia: {
		TemplateName:  models.TemplateSocialMedia,
		Category:      models.CategorySocialMedia,
		MediaType:     models.MediaTypeText,
		ParsingMethod: models.ParseSocialMediaJSON,
		Origin:        "builtin",
		SystemInstruction: "You are a social media editor. Respond with JSON only, " +
			"no surrounding commentary.",
		PromptText: `Write social media posts promoting this blog post.

Blog post:
{{blog_output}}

Tone: {{tone}}

Respond with a JSON object of the form
{"posts": [{"platform": "twitter", "text": "..."}, {"platform": "linkedin", "text": "..."}]}.`,
	},
}

// builtinPrompt returns a copy of the named built-in prompt.
func builtinPrompt(name string) (*models.ResolvedPrompt, bool) {
	prompt, ok := builtinPrompts[name]
	if !ok {
		return nil, false
	}
	return &prompt, true
}

// builtinGenerationSet returns the built-in generation templates in run
// order: the blog post first, then the social posts derived from it.
func builtinGenerationSet() []*models.ResolvedPrompt {
	blog := builtinPrompts[models.TemplateBlogPost]
	social := builtinPrompts[models.TemplateSocialMedia]
	return []*models.ResolvedPrompt{&blog, &social}
}

// BuiltinNames lists the compiled-in template names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinPrompts))
	for name := range builtinPrompts {
		names = append(names, name)
	}
	return names
}
