package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/markusmobius/go-trafilatura"

	"github.com/feedsite/hknews/pkg/images"
)

// boilerplateSelectors match site furniture structurally, by class/id
// substring rather than exact markup
var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe", "button", "nav", "header", "footer", "aside",
	`[class*="share"]`, `[class*="social"]`, `[class*="related"]`,
	`[class*="recommend"]`, `[class*="breadcrumb"]`, `[class*="comment"]`,
	`[class*="advert"]`, `[id*="advert"]`, `[class*="sidebar"]`,
}

// containerSelectors locate the article body, most specific first
var containerSelectors = []string{
	"article",
	`div[class*="article-content"]`,
	`div[class*="entry-content"]`,
	`div[class*="post-content"]`,
	`div[id="article_content"]`,
	`div[class*="content"]`,
}

// extractGeneric recovers content from rendered article HTML: trafilatura
// for the body text, a structural goquery pass for in-order image refs and
// the publish time. Image or timestamp failures degrade; only missing text
// fails the extraction.
func (e *Extractor) extractGeneric(page []byte, baseURL string) (*Result, error) {
	result := &Result{}

	blocks, err := e.genericText(page, baseURL)
	if err != nil {
		return nil, err
	}
	result.Blocks = blocks

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		// text succeeded, degrade to no images and no page timestamp
		return result, nil
	}

	result.Published = pageTime(doc)

	doc.Find(strings.Join(boilerplateSelectors, ", ")).Remove()
	result.Images = bodyImages(doc, baseURL)

	return result, nil
}

// genericText runs trafilatura and falls back to a paragraph sweep when it
// comes back empty
func (e *Extractor) genericText(page []byte, baseURL string) ([]string, error) {
	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		Deduplicate:     true,
	}
	if u, err := url.Parse(baseURL); err == nil {
		opts.OriginalURL = u
	}

	var blocks []string
	if res, err := trafilatura.Extract(bytes.NewReader(page), opts); err == nil && res != nil {
		for _, para := range strings.Split(res.ContentText, "\n") {
			if p := strings.TrimSpace(para); p != "" {
				blocks = append(blocks, p)
			}
		}
	}

	if textLen(blocks) < e.minText {
		blocks = paragraphSweep(page)
	}
	if textLen(blocks) < e.minText {
		return nil, fmt.Errorf("%w: article body below %d chars", ErrExtractionFailed, e.minText)
	}
	return blocks, nil
}

// paragraphSweep collects paragraph text from the first matching article
// container, the fallback when trafilatura finds nothing
func paragraphSweep(page []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	doc.Find(strings.Join(boilerplateSelectors, ", ")).Remove()

	for _, sel := range containerSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		var blocks []string
		container.Find("p").Each(func(_ int, p *goquery.Selection) {
			if text := strings.TrimSpace(p.Text()); text != "" {
				blocks = append(blocks, text)
			}
		})
		if len(blocks) > 0 {
			return blocks
		}
	}
	return nil
}

// bodyImages collects image refs in body order from the article container,
// checking lazy-load attributes before src
func bodyImages(doc *goquery.Document, baseURL string) []string {
	var urls []string
	seen := make(map[string]struct{})

	collect := func(container *goquery.Selection) {
		container.Find("img").Each(func(_ int, img *goquery.Selection) {
			src := ""
			for _, attr := range []string{"data-src", "data-original", "src"} {
				if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
					src = v
					break
				}
			}
			if src == "" {
				if srcset, ok := img.Attr("srcset"); ok {
					src = strings.TrimSpace(strings.Split(strings.Split(srcset, ",")[0], " ")[0])
				}
			}
			resolved := images.ResolveURL(baseURL, src)
			if resolved == "" || images.IsGeneric(resolved) {
				return
			}
			if _, dup := seen[resolved]; dup {
				return
			}
			seen[resolved] = struct{}{}
			urls = append(urls, resolved)
		})
	}

	for _, sel := range containerSelectors {
		if container := doc.Find(sel).First(); container.Length() > 0 {
			collect(container)
			break
		}
	}

	// og:image leads when the body itself shows nothing
	if len(urls) == 0 {
		if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
			if resolved := images.ResolveURL(baseURL, og); resolved != "" && !images.IsGeneric(resolved) {
				urls = append(urls, resolved)
			}
		}
	}
	return urls
}

// pageTime infers the publish time from page metadata
func pageTime(doc *goquery.Document) time.Time {
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="pubdate"]`,
		`meta[name="date"]`,
	} {
		if v, ok := doc.Find(sel).Attr("content"); ok && v != "" {
			if ts, err := dateparse.ParseAny(v); err == nil {
				return ts.UTC()
			}
		}
	}

	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && v != "" {
		if ts, err := dateparse.ParseAny(v); err == nil {
			return ts.UTC()
		}
	}

	// last resort: ld+json NewsArticle datePublished
	var found time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var ld struct {
			DatePublished string `json:"datePublished"`
		}
		if err := json.Unmarshal([]byte(s.Text()), &ld); err != nil || ld.DatePublished == "" {
			return true
		}
		if ts, err := dateparse.ParseAny(ld.DatePublished); err == nil {
			found = ts.UTC()
			return false
		}
		return true
	})
	return found
}
