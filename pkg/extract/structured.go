package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/feedsite/hknews/pkg/images"
)

// extractStructured reads the JSON payload the site embeds in its article
// pages (Next.js __NEXT_DATA__ convention): paragraph blocks, gallery
// images and the authoritative publish time all live under
// props.initialProps.pageProps.article. A page without the payload, or a
// payload without an article object, is a structure mismatch.
func (e *Extractor) extractStructured(page []byte, baseURL string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %w", ErrStructureMismatch, err)
	}

	payload := doc.Find(`script#__NEXT_DATA__[type="application/json"]`).First().Text()
	if payload == "" {
		return nil, fmt.Errorf("%w: no embedded payload", ErrStructureMismatch)
	}

	var data struct {
		Props struct {
			InitialProps struct {
				PageProps struct {
					Article json.RawMessage `json:"article"`
				} `json:"pageProps"`
			} `json:"initialProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", ErrStructureMismatch, err)
	}

	var article map[string]any
	if err := json.Unmarshal(data.Props.InitialProps.PageProps.Article, &article); err != nil || len(article) == 0 {
		return nil, fmt.Errorf("%w: payload has no article object", ErrStructureMismatch)
	}

	result := &Result{
		Blocks:    articleBlocks(article),
		Published: articleTime(article),
	}
	if textLen(result.Blocks) < e.minText {
		return nil, fmt.Errorf("%w: article body below %d chars", ErrExtractionFailed, e.minText)
	}

	// image failures degrade to an empty list, never fail the article
	for _, u := range articleImages(article) {
		if resolved := images.ResolveURL(baseURL, u); resolved != "" && !images.IsGeneric(resolved) {
			result.Images = append(result.Images, resolved)
		}
	}
	return result, nil
}

// articleBlocks pulls paragraph text out of the article's block list,
// tolerating both {"blocks":[{"content":...}]} and a flat "content" string
func articleBlocks(article map[string]any) []string {
	var blocks []string

	if list, ok := article["blocks"].([]any); ok {
		for _, entry := range list {
			block, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"content", "text", "body"} {
				if s, ok := block[key].(string); ok && strings.TrimSpace(s) != "" {
					blocks = append(blocks, strings.TrimSpace(s))
					break
				}
			}
		}
	}

	if len(blocks) == 0 {
		if s, ok := article["content"].(string); ok {
			for _, para := range strings.Split(s, "\n") {
				if p := strings.TrimSpace(para); p != "" {
					blocks = append(blocks, p)
				}
			}
		}
	}
	return blocks
}

// articleTime reads the authoritative publish time: epoch seconds in
// publishTime, or a parseable string in publishedAt/firstPublishedAt
func articleTime(article map[string]any) time.Time {
	if v, ok := article["publishTime"].(float64); ok && v > 0 {
		return time.Unix(int64(v), 0).UTC()
	}
	for _, key := range []string{"publishedAt", "firstPublishedAt", "publishDate"} {
		if s, ok := article[key].(string); ok && s != "" {
			if ts, err := dateparse.ParseAny(s); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}

// imageKeys are the field names image URLs hide under in the payload,
// most specific first
var imageKeys = []string{"cdnUrl", "url", "src", "image", "mainImage", "originalImage", "cover", "thumbnail"}

// articleImages collects gallery images in body order: the ordered block
// list first, the named main-image fields after. When an image object
// lists multiple size variants it keeps the widest one.
func articleImages(article map[string]any) []string {
	var urls []string
	seen := make(map[string]struct{})

	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	if blocks, ok := article["blocks"].([]any); ok {
		for _, entry := range blocks {
			add(blockImage(entry))
		}
	}
	for _, key := range []string{"mainImage", "originalImage", "image", "cover"} {
		add(blockImage(article[key]))
	}
	return urls
}

// blockImage digs the image URL out of one payload node
func blockImage(v any) string {
	switch node := v.(type) {
	case string:
		if looksLikeImage(node) {
			return node
		}
	case map[string]any:
		// variant lists carry width-annotated alternatives of one image
		if variants, ok := node["variants"].([]any); ok {
			return widestVariant(variants)
		}
		for _, k := range imageKeys {
			child, ok := node[k]
			if !ok {
				continue
			}
			if u := blockImage(child); u != "" {
				return u
			}
		}
	}
	return ""
}

// widestVariant picks the highest-resolution variant by width
func widestVariant(variants []any) string {
	best, bestWidth := "", -1
	for _, entry := range variants {
		v, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		u, _ := v["url"].(string)
		if u == "" {
			u, _ = v["cdnUrl"].(string)
		}
		if u == "" || !looksLikeImage(u) {
			continue
		}
		width := 0
		if w, ok := v["width"].(float64); ok {
			width = int(w)
		}
		if width > bestWidth {
			best, bestWidth = u, width
		}
	}
	return best
}

func looksLikeImage(u string) bool {
	lowered := strings.ToLower(u)
	if !strings.HasPrefix(lowered, "http") && !strings.HasPrefix(lowered, "//") && !strings.HasPrefix(lowered, "/") {
		return false
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif"} {
		if strings.Contains(lowered, ext) {
			return true
		}
	}
	return strings.Contains(lowered, "/image")
}
