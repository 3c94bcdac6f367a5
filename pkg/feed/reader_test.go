package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsite/hknews/pkg/domain"
)

var testSource = domain.FeedSource{Name: "test", Strategy: domain.StrategyGenericHTML}

func TestReader_Parse(t *testing.T) {
	t.Run("rss document order preserved", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
	<channel>
		<title>Test Feed</title>
		<item>
			<title>Second published, listed first</title>
			<link>https://example.com/b</link>
			<description>summary b</description>
			<pubDate>Tue, 03 Jan 2006 15:04:05 -0700</pubDate>
		</item>
		<item>
			<title>First published, listed second</title>
			<link>https://example.com/a</link>
			<description>summary a</description>
			<pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
		</item>
	</channel>
</rss>`)

		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "https://example.com/b", items[0].Link)
		assert.Equal(t, "https://example.com/a", items[1].Link)
		assert.Equal(t, "test", items[0].Source)
		assert.Equal(t, "summary b", items[0].Summary)
		assert.False(t, items[0].Published.IsZero())
	})

	t.Run("atom feed", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Atom Feed</title>
	<entry>
		<title>Entry 1</title>
		<link href="https://example.com/entry1"/>
		<id>entry1</id>
		<updated>2006-01-02T15:04:05Z</updated>
		<summary>entry summary</summary>
	</entry>
</feed>`)

		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "https://example.com/entry1", items[0].Link)
		assert.Equal(t, "entry summary", items[0].Summary)
		assert.False(t, items[0].Published.IsZero())
	})

	t.Run("duplicate ids keep first occurrence", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
	<item><title>first</title><link>https://example.com/x?utm_source=rss</link></item>
	<item><title>second copy</title><link>https://example.com/x?utm_source=tw</link></item>
</channel></rss>`)

		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "first", items[0].Title)
	})

	t.Run("missing optional fields degrade", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
	<item><title>bare</title><link>https://example.com/bare</link></item>
</channel></rss>`)

		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Empty(t, items[0].Summary)
		assert.True(t, items[0].Published.IsZero())
	})

	t.Run("item without link or guid skipped", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
	<item><title>floating</title></item>
	<item><title>anchored</title><link>https://example.com/ok</link></item>
</channel></rss>`)

		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "anchored", items[0].Title)
	})

	t.Run("malformed xml fails with parse error", func(t *testing.T) {
		_, err := NewReader().Parse([]byte("<rss><channel><item>"), testSource)
		require.Error(t, err)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "test", perr.Source)
	})

	t.Run("control characters stripped before parse", func(t *testing.T) {
		raw := []byte("<?xml version=\"1.0\"?>\n<rss version=\"2.0\"><channel><title>t</title><item><title>dirty\x08</title><link>https://example.com/d</link></item></channel></rss>")
		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "dirty", items[0].Title)
	})

	t.Run("image hint from description", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
	<item>
		<title>pictured</title>
		<link>https://example.com/pictured</link>
		<description><![CDATA[<img src="/img/photo.jpg"> text here]]></description>
	</item>
</channel></rss>`)

		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "https://example.com/img/photo.jpg", items[0].FeedImage)
	})

	t.Run("generic placeholder image ignored", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
	<item>
		<title>furnished</title>
		<link>https://example.com/furnished</link>
		<description><![CDATA[<img src="https://cdn.example.com/site-logo.png">]]></description>
	</item>
</channel></rss>`)

		items, err := NewReader().Parse(raw, testSource)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Empty(t, items[0].FeedImage)
	})
}

func TestItemID(t *testing.T) {
	t.Run("stable across query params", func(t *testing.T) {
		a := ItemID("https://example.com/article?utm_source=rss")
		b := ItemID("https://example.com/article#section")
		c := ItemID("https://example.com/article")
		assert.Equal(t, a, b)
		assert.Equal(t, b, c)
		assert.Len(t, a, 16)
	})

	t.Run("distinct links distinct ids", func(t *testing.T) {
		assert.NotEqual(t, ItemID("https://example.com/a"), ItemID("https://example.com/b"))
	})
}
