// Package extract recovers full article content from article pages. Two
// strategies exist: a structured variant reading the JSON payload some
// sites embed in their pages, and a generic variant working off the
// rendered HTML. The set is closed; dispatch is a switch over the source's
// strategy tag so fallback behavior stays explicit.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feedsite/hknews/pkg/domain"
	"github.com/feedsite/hknews/pkg/fetch"
)

// ErrStructureMismatch means the expected embedded payload shape is absent;
// the structured variant falls back to generic HTML extraction.
var ErrStructureMismatch = errors.New("structure mismatch")

// ErrExtractionFailed means no usable content came out of the page; the
// caller substitutes the feed summary.
var ErrExtractionFailed = errors.New("extraction failed")

// Fetcher is the slice of the HTTP client extraction needs
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Result, error)
}

// Result of one article extraction. Blocks are raw text paragraphs in
// document order; normalization happens downstream. Images are absolute
// URLs in body order. Published is zero when the page gives no time.
type Result struct {
	Blocks    []string
	Images    []string
	Published time.Time
}

// Extractor recovers article content for feed items
type Extractor struct {
	fetcher Fetcher
	minText int
}

// New creates an extractor. minText is the threshold below which extracted
// text counts as empty.
func New(fetcher Fetcher, minText int) *Extractor {
	return &Extractor{fetcher: fetcher, minText: minText}
}

// Extract fetches the article page and runs the strategy the source is
// configured with. A structured-payload miss falls back to generic HTML on
// the same page before giving up. Image failures never fail the article:
// text with an empty image list is a valid result.
func (e *Extractor) Extract(ctx context.Context, item domain.FeedItem, src domain.FeedSource) (*Result, error) {
	res, err := e.fetcher.Fetch(ctx, item.Link, fetch.Options{
		Accept:  "text/html,application/xhtml+xml",
		Referer: src.Referer,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch article: %w", ErrExtractionFailed, err)
	}

	switch src.Strategy {
	case domain.StrategyStructuredJSON:
		result, err := e.extractStructured(res.Body, item.Link)
		if errors.Is(err, ErrStructureMismatch) {
			return e.extractGeneric(res.Body, item.Link)
		}
		return result, err
	case domain.StrategyGenericHTML:
		return e.extractGeneric(res.Body, item.Link)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrExtractionFailed, src.Strategy)
	}
}

// textLen measures total extracted text across blocks
func textLen(blocks []string) int {
	n := 0
	for _, b := range blocks {
		n += len(b)
	}
	return n
}
