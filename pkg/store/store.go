// Package store persists pipeline state as pretty-printed JSON files so
// runs can be diffed and the cache inspected or hand-edited. Writes are
// atomic: a temp file in the same directory is renamed over the target.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/feedsite/hknews/pkg/domain"
	"github.com/feedsite/hknews/pkg/fetch"
)

const (
	feedsFile    = "feeds.json"
	articlesFile = "articles.json"
)

// FeedState is the per-feed fetch memory, keyed by feed URL. Fingerprint
// catches servers that ignore conditional headers but serve unchanged
// documents anyway.
type FeedState struct {
	Token       fetch.Token `json:"token"`
	Fingerprint string      `json:"fingerprint,omitempty"` // sha256 of the last document
	FetchedAt   time.Time   `json:"fetched_at"`            // when the document last changed
}

// Store holds feed tokens and article entries, loaded once on Open and
// flushed with Save. Accessors are safe for concurrent use, but the
// pipeline funnels all writes through a single merge goroutine anyway.
type Store struct {
	dir        string
	articleTTL time.Duration

	mu       sync.RWMutex
	feeds    map[string]FeedState
	articles map[string]domain.CacheEntry
}

// Open loads the cache from dir, creating it when missing. A missing
// file means an empty cache, a corrupt one is an error: silently
// starting over would re-download everything.
func Open(dir string, articleTTL time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &Store{
		dir:        dir,
		articleTTL: articleTTL,
		feeds:      make(map[string]FeedState),
		articles:   make(map[string]domain.CacheEntry),
	}
	if err := loadJSON(filepath.Join(dir, feedsFile), &s.feeds); err != nil {
		return nil, fmt.Errorf("load %s: %w", feedsFile, err)
	}
	if err := loadJSON(filepath.Join(dir, articlesFile), &s.articles); err != nil {
		return nil, fmt.Errorf("load %s: %w", articlesFile, err)
	}
	return s, nil
}

// FeedState returns the stored fetch memory for a feed URL
func (s *Store) FeedState(url string) (FeedState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.feeds[url]
	return st, ok
}

// SetFeedState records the validation token for a feed URL
func (s *Store) SetFeedState(url string, st FeedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[url] = st
}

// Article returns the cached entry for an item ID
func (s *Store) Article(id string) (domain.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.articles[id]
	return e, ok
}

// SetArticle stores or replaces the entry for an item ID
func (s *Store) SetArticle(id string, e domain.CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[id] = e
}

// Fresh reports whether a cached entry is recent enough to reuse without
// re-extracting. Entries that only carry the summary fallback are never
// fresh, a later pass may still recover the full text.
func (s *Store) Fresh(e domain.CacheEntry, now time.Time) bool {
	if !e.Article.Extracted {
		return false
	}
	return now.Sub(e.LastSuccess) < s.articleTTL
}

// Articles returns all cached entries in unspecified order
func (s *Store) Articles() []domain.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.CacheEntry, 0, len(s.articles))
	for _, e := range s.articles {
		res = append(res, e)
	}
	return res
}

// ImageAssets returns every localized image referenced by the cache,
// used to seed the localizer so prior downloads are reused
func (s *Store) ImageAssets() []domain.ImageAsset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.ImageAsset
	for _, e := range s.articles {
		res = append(res, e.Article.Images...)
	}
	return res
}

// Save flushes both files atomically. Content is deterministic for a
// given state: keys are sorted and timestamps round-trip unchanged, so
// an unchanged cache produces a byte-identical file.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := saveJSON(filepath.Join(s.dir, feedsFile), s.feeds); err != nil {
		return fmt.Errorf("save %s: %w", feedsFile, err)
	}
	if err := saveJSON(filepath.Join(s.dir, articlesFile), s.articles); err != nil {
		return fmt.Errorf("save %s: %w", articlesFile, err)
	}
	return nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the configured cache dir
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
