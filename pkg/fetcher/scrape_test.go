package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/models"
)

func articlePage(title, body string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head>
<body><nav>site nav</nav><article><h1>%s</h1><p>%s</p></article><footer>footer text</footer></body></html>`,
		title, title, body)
}

func TestFetchScrape(t *testing.T) {
	longBody := strings.Repeat("body text ", 20)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<html><body>
<article><a href="/story-1">Story one</a></article>
<article><a href="/story-2">Story two</a></article>
<article><a href="/story-1#comments">Duplicate of one</a></article>
<article><a href="javascript:void(0)">Not a story</a></article>
<article><a href="/thin">Thin story</a></article>
</body></html>`)
	})
	mux.HandleFunc("/story-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, articlePage("Story one", longBody))
	})
	mux.HandleFunc("/story-2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, articlePage("Story two", longBody))
	})
	mux.HandleFunc("/thin", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, articlePage("Thin", "too short"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := newTestFetcher(nil)
	source := &models.NewsSource{ID: 7, AccountID: "acct", URL: server.URL + "/", Type: models.SourceTypeScrape}

	candidates, skipped, err := f.FetchSource(context.Background(), source)
	require.NoError(t, err)

	// story-1 and story-2 extracted; the fragment variant de-dupes to
	// story-1, the javascript link is filtered, and the thin page is skipped.
	require.Len(t, candidates, 2)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, "Story one", candidates[0].Title)
	assert.Equal(t, server.URL+"/story-1", candidates[0].URL)
	assert.Contains(t, candidates[0].Text, "body text")
	assert.NotContains(t, candidates[0].Text, "site nav", "chrome excluded when article element present")
	assert.Equal(t, server.URL+"/story-2", candidates[1].URL)
}

func TestFetchScrapeCustomSelectors(t *testing.T) {
	longBody := strings.Repeat("content ", 30)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<html><body>
<div class="news-item"><a href="/a">A</a></div>
<div class="news-item"><a href="/b">B</a></div>
<article><a href="/ignored">Ignored by custom selector</a></article>
</body></html>`)
	})
	for _, path := range []string{"/a", "/b"} {
		p := path
		mux.HandleFunc(p, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, articlePage("Title"+p, longBody))
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	f := newTestFetcher(nil)
	source := &models.NewsSource{
		URL:       server.URL + "/",
		Type:      models.SourceTypeScrape,
		Selectors: models.SourceSelectors{Article: ".news-item"},
	}

	candidates, _, err := f.FetchSource(context.Background(), source)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, server.URL+"/a", candidates[0].URL)
	assert.Equal(t, server.URL+"/b", candidates[1].URL)
}

func TestFetchScrapeLinkCap(t *testing.T) {
	longBody := strings.Repeat("words ", 30)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := 0; i < 20; i++ {
			fmt.Fprintf(&b, `<article><a href="/s%d">Story %d</a></article>`, i, i)
		}
		b.WriteString("</body></html>")
		_, _ = fmt.Fprint(w, b.String())
	})
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("/s%d", i)
		mux.HandleFunc(p, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, articlePage("t", longBody))
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := config.DefaultFetcherConfig()
	cfg.MaxScrapeLinks = 4
	f := newTestFetcher(cfg)
	source := &models.NewsSource{URL: server.URL + "/", Type: models.SourceTypeScrape}

	candidates, _, err := f.FetchSource(context.Background(), source)
	require.NoError(t, err)
	assert.Len(t, candidates, 4)
}

func TestFetchPage(t *testing.T) {
	longBody := strings.Repeat("paragraph text ", 10)

	t.Run("og title preferred", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `<html><head>
<meta property="og:title" content="OG Title"/><title>Doc Title</title>
</head><body><article>%s</article></body></html>`, longBody)
		}))
		defer server.Close()

		f := newTestFetcher(nil)
		candidate, err := f.FetchPage(context.Background(), server.URL)
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.Equal(t, "OG Title", candidate.Title)
	})

	t.Run("body fallback strips chrome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `<html><head><title>Plain</title></head>
<body><script>evil()</script><nav>menu</nav><div>%s</div><footer>foot</footer></body></html>`, longBody)
		}))
		defer server.Close()

		f := newTestFetcher(nil)
		candidate, err := f.FetchPage(context.Background(), server.URL)
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.Contains(t, candidate.Text, "paragraph text")
		assert.NotContains(t, candidate.Text, "evil")
		assert.NotContains(t, candidate.Text, "menu")
		assert.NotContains(t, candidate.Text, "foot")
	})

	t.Run("short body yields nil", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, articlePage("Tiny", "short"))
		}))
		defer server.Close()

		f := newTestFetcher(nil)
		candidate, err := f.FetchPage(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Nil(t, candidate)
	})
}
