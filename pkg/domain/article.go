package domain

import "time"

// FeedItem is a single candidate article listed by a feed document.
// Identity is the derived ID, content-addressed from the canonical link.
type FeedItem struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
	Summary   string    `json:"summary"`
	FeedImage string    `json:"feed_image,omitempty"` // image hinted by the feed itself, if any
}

// ExtractedArticle holds the recovered full content of one item for the
// lifetime of a processing pass. Body is never empty on a processed item:
// when extraction fails it falls back to the feed summary and Extracted
// is false.
type ExtractedArticle struct {
	Body      []string     `json:"body"`                // ordered paragraph blocks, normalized
	Images    []ImageAsset `json:"images,omitempty"`    // body order
	Published time.Time    `json:"published,omitempty"` // authoritative time when the page provides one
	Extracted bool         `json:"extracted"`           // false means summary fallback
}

// ImageAsset is a content-addressed localized image. Two source URLs that
// resolve to identical bytes collapse to a single asset.
type ImageAsset struct {
	Hash      string `json:"hash"` // sha256 of the downloaded bytes
	SourceURL string `json:"source_url"`
	LocalPath string `json:"local_path"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// CacheEntry is the persisted union of an item, its extraction result and
// fetch metadata. Created on first successful fetch, updated in place on
// re-fetch, never deleted automatically.
type CacheEntry struct {
	Item        FeedItem         `json:"item"`
	Article     ExtractedArticle `json:"article"`
	LastSuccess time.Time        `json:"last_success"`
}

// Article is the fully-resolved view handed to the rendering collaborator.
type Article struct {
	FeedItem
	Category string
	Body     []string
	Images   []ImageAsset
}
