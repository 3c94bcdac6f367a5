// Package pipeline orchestrates one aggregation pass: fetch every
// configured feed, extract full content for new items, localize images
// and merge the results into the persistent cache. Failures are
// contained at the smallest useful scope: a bad image degrades its
// article, a bad article degrades its source tally, a bad source never
// stops the run.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/feedsite/hknews/pkg/config"
	"github.com/feedsite/hknews/pkg/domain"
	"github.com/feedsite/hknews/pkg/extract"
	"github.com/feedsite/hknews/pkg/feed"
	"github.com/feedsite/hknews/pkg/fetch"
	"github.com/feedsite/hknews/pkg/images"
	"github.com/feedsite/hknews/pkg/normalize"
	"github.com/feedsite/hknews/pkg/store"
)

// Pipeline wires the fetch client, feed reader, extractor, normalizer,
// image localizer and cache store into a single runnable pass
type Pipeline struct {
	// DryRun disables the final cache flush, everything else still runs
	DryRun bool

	cfg       *config.Config
	client    *fetch.Client
	reader    *feed.Reader
	extractor *extract.Extractor
	norm      *normalize.Normalizer
	localizer *images.Localizer
	store     *store.Store

	categories map[string]string // category label per source name
}

// New builds a pipeline from config and an opened store. The localizer
// is seeded from the store so images survive across runs.
func New(cfg *config.Config, st *store.Store) *Pipeline {
	client := fetch.NewClient(fetch.Params{
		Timeout:       cfg.Fetch.Timeout,
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		PerHost:       cfg.Fetch.PerHost,
		MaxRetries:    cfg.Fetch.MaxRetries,
		UserAgent:     cfg.Fetch.UserAgent,
	})

	localizer := images.NewLocalizer(client, images.Params{
		Dir:      cfg.Images.Dir,
		MaxWidth: cfg.Images.MaxWidth,
		Quality:  cfg.Images.Quality,
	})
	localizer.Seed(st.ImageAssets())

	categories := make(map[string]string, len(cfg.Sources))
	for _, src := range cfg.Sources {
		categories[src.Name] = src.Category
	}

	return &Pipeline{
		cfg:        cfg,
		client:     client,
		reader:     feed.NewReader(),
		extractor:  extract.New(client, cfg.Extract.MinTextLength),
		norm:       normalize.New(),
		localizer:  localizer,
		store:      st,
		categories: categories,
	}
}

// Run executes one pass over all sources and flushes the store. The
// returned report always covers every source; an error means the pass
// itself could not complete its bookkeeping, not that a source failed.
func (p *Pipeline) Run(ctx context.Context) (*domain.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Run.Timeout)
	defer cancel()

	started := time.Now()
	tallies := make([]domain.SourceTally, len(p.cfg.Sources))

	var g errgroup.Group
	g.SetLimit(p.cfg.Fetch.MaxConcurrent)
	for i, src := range p.cfg.Sources {
		i, src := i, src
		g.Go(func() error {
			tallies[i] = p.processSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures live in tallies

	report := &domain.Report{Tallies: tallies}
	for _, t := range tallies {
		switch {
		case t.Failed:
			lgr.Printf("[WARN] source %s failed: %s", t.Source, t.Err)
		case t.Unchanged:
			lgr.Printf("[DEBUG] source %s unchanged", t.Source)
		default:
			lgr.Printf("[INFO] source %s: %d items, %d extracted, %d cached, %d fallback",
				t.Source, t.Items, t.Extracted, t.Cached, t.Fallback)
		}
	}

	// completed items are already merged, persist them even when the
	// run deadline cut the pass short
	if !p.DryRun {
		if err := p.store.Save(); err != nil {
			return report, fmt.Errorf("save cache: %w", err)
		}
	}

	lgr.Printf("[INFO] pass done in %v, %d sources, %d failed, %d fallbacks",
		time.Since(started).Round(time.Millisecond), len(tallies), report.Failed(), report.Fallbacks())
	return report, nil
}

// processSource runs the per-source state machine: fetch, then either
// short-circuit on an unchanged document or parse, diff against the
// cache, extract new items and merge
func (p *Pipeline) processSource(ctx context.Context, src domain.FeedSource) domain.SourceTally {
	tally := domain.SourceTally{Source: src.Name}

	prior, _ := p.store.FeedState(src.URL)

	res, err := p.client.Fetch(ctx, src.URL, fetch.Options{Token: prior.Token})
	if err != nil {
		tally.Failed = true
		tally.Err = fmt.Sprintf("fetch feed: %v", err)
		return tally
	}

	now := time.Now()

	// unchanged sources leave their stored state alone, so a run against
	// an unchanged world rewrites the cache byte-identically
	if res.Status == fetch.StatusNotModified {
		tally.Unchanged = true
		return tally
	}

	// some servers ignore conditional headers; an unchanged document is
	// still an unchanged source
	sum := sha256.Sum256(res.Body)
	fingerprint := hex.EncodeToString(sum[:])
	if fingerprint == prior.Fingerprint {
		tally.Unchanged = true
		return tally
	}
	p.store.SetFeedState(src.URL, store.FeedState{Token: res.Token, Fingerprint: fingerprint, FetchedAt: now})

	items, err := p.reader.Parse(res.Body, src)
	if err != nil {
		tally.Failed = true
		tally.Err = fmt.Sprintf("parse feed: %v", err)
		return tally
	}
	tally.Items = len(items)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.Fetch.PerHost)
	for _, item := range items {
		item := item
		if entry, ok := p.store.Article(item.ID); ok && p.store.Fresh(entry, now) {
			tally.Cached++
			continue
		}
		g.Go(func() error {
			extracted := p.processItem(ctx, item, src)
			mu.Lock()
			if extracted {
				tally.Extracted++
			} else {
				tally.Fallback++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return tally
}

// processItem extracts one article and merges it into the store.
// Returns false when the item degraded to the feed summary.
func (p *Pipeline) processItem(ctx context.Context, item domain.FeedItem, src domain.FeedSource) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Extract.Timeout)
	defer cancel()

	entry := domain.CacheEntry{Item: item, LastSuccess: time.Now()}

	res, err := p.extractor.Extract(ctx, item, src)
	if err != nil {
		lgr.Printf("[WARN] extract %s (%s): %v", item.ID, item.Link, err)
		entry.Article = p.summaryFallback(item, src)
		p.store.SetArticle(item.ID, entry)
		return false
	}

	body := p.norm.Blocks(strings.Join(res.Blocks, "\n"), src.Simplified)
	if len(body) == 0 {
		entry.Article = p.summaryFallback(item, src)
		p.store.SetArticle(item.ID, entry)
		return false
	}

	urls := res.Images
	if len(urls) == 0 && item.FeedImage != "" {
		urls = []string{item.FeedImage}
	}

	entry.Article = domain.ExtractedArticle{
		Body:      body,
		Images:    p.localizer.Localize(ctx, urls, item.Link, src.Referer),
		Published: res.Published,
		Extracted: true,
	}
	p.store.SetArticle(item.ID, entry)
	return true
}

// summaryFallback keeps the item visible when the page gives nothing:
// the feed summary becomes the body, the title when even that is empty
func (p *Pipeline) summaryFallback(item domain.FeedItem, src domain.FeedSource) domain.ExtractedArticle {
	body := p.norm.Blocks(item.Summary, src.Simplified)
	if len(body) == 0 {
		body = []string{item.Title}
	}
	return domain.ExtractedArticle{Body: body, Extracted: false}
}

// Articles returns the renderable view of the cache: newest first,
// bounded by the lookback window and the configured item cap
func (p *Pipeline) Articles(now time.Time) []domain.Article {
	cutoff := now.Add(-time.Duration(p.cfg.Run.LookbackHours * float64(time.Hour)))

	var res []domain.Article
	for _, e := range p.store.Articles() {
		published := e.Article.Published
		if published.IsZero() {
			published = e.Item.Published
		}
		if published.Before(cutoff) {
			continue
		}
		a := domain.Article{
			FeedItem: e.Item,
			Category: p.categories[e.Item.Source],
			Body:     e.Article.Body,
			Images:   e.Article.Images,
		}
		a.Published = published
		res = append(res, a)
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].Published.Equal(res[j].Published) {
			return res[i].Published.After(res[j].Published)
		}
		return res[i].ID < res[j].ID // stable order for equal timestamps
	})
	if len(res) > p.cfg.Run.MaxItems {
		res = res[:p.cfg.Run.MaxItems]
	}
	return res
}
