package feed

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // content addressing, not crypto
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/feedsite/hknews/pkg/domain"
	"github.com/feedsite/hknews/pkg/images"
)

// ParseError indicates a malformed feed document. The whole source fails,
// not the run.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader parses raw RSS/Atom documents into feed items
type Reader struct {
	parser *gofeed.Parser
}

// NewReader creates a feed reader
func NewReader() *Reader {
	return &Reader{parser: gofeed.NewParser()}
}

// Parse converts a raw feed document into items in document order,
// dropping later duplicates of the same derived ID. Missing optional
// fields degrade to zero values instead of failing the parse.
func (r *Reader) Parse(raw []byte, src domain.FeedSource) ([]domain.FeedItem, error) {
	parsed, err := r.parser.Parse(bytes.NewReader(sanitizeXML(raw)))
	if err != nil {
		return nil, &ParseError{Source: src.Name, Err: err}
	}

	items := make([]domain.FeedItem, 0, len(parsed.Items))
	seen := make(map[string]struct{}, len(parsed.Items))

	for _, it := range parsed.Items {
		link := normalizeLink(it.Link)
		if link == "" && it.GUID != "" {
			link = normalizeLink(it.GUID)
		}
		if link == "" {
			continue // nothing stable to address the item by
		}

		id := ItemID(link)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		item := domain.FeedItem{
			ID:        id,
			Source:    src.Name,
			Title:     strings.TrimSpace(it.Title),
			Link:      link,
			Summary:   strings.TrimSpace(it.Description),
			FeedImage: feedImage(it, link),
		}
		if item.Summary == "" && it.Content != "" {
			item.Summary = strings.TrimSpace(it.Content)
		}
		if it.PublishedParsed != nil {
			item.Published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			item.Published = *it.UpdatedParsed
		}

		items = append(items, item)
	}

	return items, nil
}

// ItemID derives the stable identifier for a link: sha1 of the canonical
// form (query and fragment stripped), first 16 hex chars. Matches the
// image filename scheme so cache keys stay greppable.
func ItemID(link string) string {
	h := sha1.Sum([]byte(CanonicalLink(link))) //nolint:gosec // stable key, not crypto
	return hex.EncodeToString(h[:])[:16]
}

// CanonicalLink strips query and fragment so tracking params don't split
// one article into many cache entries
func CanonicalLink(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}
	return link
}

// control chars some feeds leak into CDATA, rejected by XML parsers
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

func sanitizeXML(raw []byte) []byte {
	return controlChars.ReplaceAll(raw, nil)
}

func normalizeLink(link string) string {
	link = strings.TrimSpace(link)
	// some feeds wrap the link in markup or append junk after whitespace
	if i := strings.IndexAny(link, " \n\t"); i >= 0 {
		link = link[:i]
	}
	return link
}

var imgSrcRe = regexp.MustCompile(`<img[^>]+(?:src|data-src)=["']([^"']+)["']`)

// feedImage picks the image the feed itself hints at: enclosure or
// media:content first, then the first <img> in the summary markup
func feedImage(it *gofeed.Item, baseLink string) string {
	if it.Image != nil && it.Image.URL != "" {
		if u := images.ResolveURL(baseLink, it.Image.URL); !images.IsGeneric(u) {
			return u
		}
	}
	for _, enc := range it.Enclosures {
		if !strings.HasPrefix(enc.Type, "image/") && enc.Type != "" {
			continue
		}
		if u := images.ResolveURL(baseLink, enc.URL); u != "" && !images.IsGeneric(u) {
			return u
		}
	}
	if m := imgSrcRe.FindStringSubmatch(it.Description); m != nil {
		if u := images.ResolveURL(baseLink, m[1]); !images.IsGeneric(u) {
			return u
		}
	}
	return ""
}
