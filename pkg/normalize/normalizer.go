// Package normalize cleans extracted article text: markup residue, feed
// boilerplate lines and whitespace are removed, and Simplified-script
// sources are converted to Traditional. The whole pass is a pure function
// and idempotent, so re-normalizing cached text is harmless.
package normalize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/siongui/gojianfan"
)

// sentinel phrases that mark "read more" / related-content boilerplate
// left behind by extraction; a line containing one is dropped
var sentinels = []string{
	"相關文章", "相關新聞", "相關閱讀", "相關閲讀", "相关文章", "相关新闻",
	"延伸閱讀", "延伸阅读", "編輯推介", "來源網址", "继续阅读", "繼續閱讀",
	"閱讀更多", "阅读更多", "read more", "continue reading",
	"分享到：", "分享到:", "訪問：", "访问：", "話題：", "话题：",
}

var spaceRe = regexp.MustCompile(`[ \t\x{00a0}]+`)

// safeEntities undoes the escaping the sanitizer applies, except for
// &lt;/&gt;: unescaping those would create live markup that a second
// sanitize pass strips, losing text that legitimately mentions tags
var safeEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&#160;", " ",
	"&quot;", `"`,
	"&#34;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&amp;", "&",
)

// Normalizer strips residual markup and boilerplate from article text
type Normalizer struct {
	policy *bluemonday.Policy
}

// New creates a normalizer with a strict strip-everything HTML policy
func New() *Normalizer {
	return &Normalizer{policy: bluemonday.StrictPolicy()}
}

// Normalize cleans one text block. With simplified set, characters are
// converted from Simplified to Traditional; the conversion is deterministic and a
// no-op on already-Traditional text.
func (n *Normalizer) Normalize(text string, simplified bool) string {
	if text == "" {
		return ""
	}

	text = safeEntities.Replace(n.policy.Sanitize(text))

	var kept []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
		if line == "" || boilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	if simplified {
		text = gojianfan.S2T(text)
	}
	return text
}

// Blocks splits article markup or text into normalized paragraph blocks,
// preserving order and dropping blocks that normalize to nothing
func (n *Normalizer) Blocks(text string, simplified bool) []string {
	normalized := n.Normalize(text, simplified)
	if normalized == "" {
		return nil
	}
	lines := strings.Split(normalized, "\n")
	blocks := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			blocks = append(blocks, line)
		}
	}
	return blocks
}

func boilerplate(line string) bool {
	lowered := strings.ToLower(line)
	for _, s := range sentinels {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}
