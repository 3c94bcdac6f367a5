package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := New()

	t.Run("strips residual markup", func(t *testing.T) {
		got := n.Normalize(`<p>Hello <b>world</b></p><script>alert(1)</script>`, false)
		assert.Equal(t, "Hello world", got)
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		got := n.Normalize("line   one\t\ttabbed\n\n\n  line two  ", false)
		assert.Equal(t, "line one tabbed\nline two", got)
	})

	t.Run("drops read-more sentinel lines", func(t *testing.T) {
		in := "真正內容第一段\n延伸閱讀：更多報道\n真正內容第二段\nRead More »"
		got := n.Normalize(in, false)
		assert.Equal(t, "真正內容第一段\n真正內容第二段", got)
	})

	t.Run("unescapes safe entities", func(t *testing.T) {
		got := n.Normalize("fish &amp; chips, &quot;fresh&quot; &amp; hot", false)
		assert.Equal(t, `fish & chips, "fresh" & hot`, got)
	})

	t.Run("keeps angle-bracket entities escaped", func(t *testing.T) {
		// unescaping these would yield markup a later pass strips
		got := n.Normalize("install the &lt;plugin&gt; tag to enable it", false)
		assert.Equal(t, "install the &lt;plugin&gt; tag to enable it", got)
	})

	t.Run("simplified converted to traditional", func(t *testing.T) {
		got := n.Normalize("简体中文内容", true)
		assert.Equal(t, "簡體中文內容", got)
	})

	t.Run("traditional text unchanged by conversion", func(t *testing.T) {
		in := "繁體中文內容"
		assert.Equal(t, in, n.Normalize(in, true))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, n.Normalize("", true))
		assert.Empty(t, n.Normalize("   \n  ", false))
	})
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := New()

	inputs := []string{
		"<p>简体段落一</p>\n<p>段落二 &amp; 更多</p>",
		"mixed 简体 and English   text",
		"already clean traditional 繁體",
		"相關文章\n actual content",
		"install the &lt;plugin&gt; tag to enable it",
		`quotes &quot;here&quot; and an &apos;apostrophe&apos;`,
		"a &gt; b and b &lt; c",
	}
	for _, in := range inputs {
		once := n.Normalize(in, true)
		twice := n.Normalize(once, true)
		assert.Equal(t, once, twice, "normalize must be idempotent for %q", in)
		assert.NotEmpty(t, twice, "re-normalizing must not lose content for %q", in)
	}
}

func TestNormalizer_Blocks(t *testing.T) {
	n := New()

	t.Run("splits into ordered blocks", func(t *testing.T) {
		got := n.Blocks("<p>first</p>\n<p>second</p>\n\n<p>third</p>", false)
		assert.Equal(t, []string{"first", "second", "third"}, got)
	})

	t.Run("empty result is nil", func(t *testing.T) {
		assert.Nil(t, n.Blocks("<div></div>", false))
	})
}
