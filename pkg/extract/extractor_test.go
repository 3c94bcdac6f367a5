package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsite/hknews/pkg/domain"
	"github.com/feedsite/hknews/pkg/fetch"
)

type stubFetcher struct {
	body []byte
	err  error
}

func (s *stubFetcher) Fetch(_ context.Context, _ string, _ fetch.Options) (*fetch.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &fetch.Result{Status: fetch.StatusFresh, Body: s.body}, nil
}

var (
	genericSource    = domain.FeedSource{Name: "paper", Strategy: domain.StrategyGenericHTML}
	structuredSource = domain.FeedSource{Name: "portal", Strategy: domain.StrategyStructuredJSON}
	testItem         = domain.FeedItem{ID: "abc123", Link: "https://news.example.com/story/1"}
)

const genericPage = `<!DOCTYPE html>
<html><head>
	<meta property="article:published_time" content="2026-01-14T09:30:00+08:00">
	<meta property="og:image" content="/img/og.jpg">
</head><body>
	<nav>site navigation</nav>
	<article>
		<p>First paragraph of the story with enough words to count as content.</p>
		<img src="/img/one.jpg">
		<p>Second paragraph continuing the story in reasonable depth.</p>
		<img data-src="https://cdn.example.com/two.jpg">
		<div class="share-buttons"><img src="/img/share-icon.png"></div>
		<div class="related-articles"><p>You may also like this other story</p></div>
	</article>
	<footer>footer junk</footer>
</body></html>`

func TestExtractor_Generic(t *testing.T) {
	e := New(&stubFetcher{body: []byte(genericPage)}, 20)

	res, err := e.Extract(context.Background(), testItem, genericSource)
	require.NoError(t, err)

	require.NotEmpty(t, res.Blocks)
	joined := ""
	for _, b := range res.Blocks {
		joined += b + "\n"
	}
	assert.Contains(t, joined, "First paragraph")
	assert.Contains(t, joined, "Second paragraph")
	assert.NotContains(t, joined, "You may also like", "related block is boilerplate")
	assert.NotContains(t, joined, "site navigation")

	assert.Equal(t, []string{
		"https://news.example.com/img/one.jpg",
		"https://cdn.example.com/two.jpg",
	}, res.Images, "body order, share icon filtered")

	want := time.Date(2026, 1, 14, 1, 30, 0, 0, time.UTC)
	assert.True(t, res.Published.Equal(want), "got %v", res.Published)
}

func TestExtractor_Generic_NoImages(t *testing.T) {
	page := `<html><body><article>
		<p>A story that has plenty of text but not a single picture in it.</p>
		<p>It keeps going for another paragraph to pass the length check.</p>
	</article></body></html>`
	e := New(&stubFetcher{body: []byte(page)}, 20)

	res, err := e.Extract(context.Background(), testItem, genericSource)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Blocks)
	assert.Empty(t, res.Images, "missing images degrade, not fail")
}

func TestExtractor_Generic_EmptyBody(t *testing.T) {
	e := New(&stubFetcher{body: []byte(`<html><body><nav>only chrome</nav></body></html>`)}, 20)

	_, err := e.Extract(context.Background(), testItem, genericSource)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractor_Generic_FetchError(t *testing.T) {
	e := New(&stubFetcher{err: errors.New("connection refused")}, 20)

	_, err := e.Extract(context.Background(), testItem, genericSource)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

const structuredPage = `<!DOCTYPE html>
<html><body>
<div id="app">rendered shell</div>
<script id="__NEXT_DATA__" type="application/json">
{
	"props": {
		"initialProps": {
			"pageProps": {
				"article": {
					"title": "結構化文章",
					"publishTime": 1768379400,
					"blocks": [
						{"type": "paragraph", "content": "第一段內容，直接由結構化資料而來。"},
						{"type": "image", "image": {"variants": [
							{"url": "https://cdn.example.com/img/small.jpg", "width": 320},
							{"url": "https://cdn.example.com/img/large.jpg", "width": 1920},
							{"url": "https://cdn.example.com/img/medium.jpg", "width": 800}
						]}},
						{"type": "paragraph", "content": "第二段內容，同樣足夠長以通過檢查。"}
					],
					"mainImage": {"cdnUrl": "https://cdn.example.com/img/hero.jpg"}
				}
			}
		}
	}
}
</script>
</body></html>`

func TestExtractor_Structured(t *testing.T) {
	e := New(&stubFetcher{body: []byte(structuredPage)}, 20)

	res, err := e.Extract(context.Background(), testItem, structuredSource)
	require.NoError(t, err)

	require.Len(t, res.Blocks, 2)
	assert.Equal(t, "第一段內容，直接由結構化資料而來。", res.Blocks[0])

	require.NotEmpty(t, res.Images)
	assert.Contains(t, res.Images, "https://cdn.example.com/img/large.jpg",
		"widest variant wins")
	assert.NotContains(t, res.Images, "https://cdn.example.com/img/small.jpg")
	assert.Contains(t, res.Images, "https://cdn.example.com/img/hero.jpg")

	assert.Equal(t, time.Unix(1768379400, 0).UTC(), res.Published)
}

func TestExtractor_Structured_MismatchFallsBack(t *testing.T) {
	// page renders a normal article but carries no JSON payload
	e := New(&stubFetcher{body: []byte(genericPage)}, 20)

	res, err := e.Extract(context.Background(), testItem, structuredSource)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Blocks, "generic fallback recovers the body")
}

func TestExtractor_Structured_MismatchNoFallbackContent(t *testing.T) {
	e := New(&stubFetcher{body: []byte(`<html><body><div>nothing here</div></body></html>`)}, 20)

	_, err := e.Extract(context.Background(), testItem, structuredSource)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractor_Structured_MalformedPayload(t *testing.T) {
	page := `<html><body>
	<script id="__NEXT_DATA__" type="application/json">{not json at all</script>
	<article><p>But the rendered page still has a full paragraph of text.</p>
	<p>And one more to make the fallback extraction worthwhile.</p></article>
	</body></html>`
	e := New(&stubFetcher{body: []byte(page)}, 20)

	res, err := e.Extract(context.Background(), testItem, structuredSource)
	require.NoError(t, err, "malformed payload falls back to generic")
	assert.NotEmpty(t, res.Blocks)
}

func TestExtractor_UnknownStrategy(t *testing.T) {
	e := New(&stubFetcher{body: []byte(genericPage)}, 20)

	_, err := e.Extract(context.Background(), testItem, domain.FeedSource{Name: "odd", Strategy: "regex-magic"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}
