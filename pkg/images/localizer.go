// Package images localizes article images: downloads, dedups by content
// hash, optionally re-encodes, and maps source URLs to local files the
// rendered page can reference.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/singleflight"

	"github.com/feedsite/hknews/pkg/domain"
	"github.com/feedsite/hknews/pkg/fetch"
)

// Fetcher is the slice of the HTTP client the localizer needs
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Result, error)
}

// Localizer downloads and stores article images, content-addressed.
// Dedup state is single-owner within a pass; Seed preloads mappings from
// prior passes so unchanged images are never re-downloaded.
type Localizer struct {
	fetcher  Fetcher
	dir      string
	maxWidth int
	quality  int

	flight singleflight.Group

	mu     sync.Mutex
	byURL  map[string]string            // source URL to content hash
	byHash map[string]domain.ImageAsset // content hash to stored asset
}

// Params for NewLocalizer
type Params struct {
	Dir      string
	MaxWidth int // 0 disables re-encode, originals are stored as-is
	Quality  int
}

// NewLocalizer creates a localizer storing assets under p.Dir
func NewLocalizer(fetcher Fetcher, p Params) *Localizer {
	return &Localizer{
		fetcher:  fetcher,
		dir:      p.Dir,
		maxWidth: p.MaxWidth,
		quality:  p.Quality,
		byURL:    make(map[string]string),
		byHash:   make(map[string]domain.ImageAsset),
	}
}

// Seed registers assets from prior passes. URLs mapping to a seeded asset
// whose file still exists skip the download entirely.
func (l *Localizer) Seed(assets []domain.ImageAsset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range assets {
		if a.Hash == "" || a.SourceURL == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.dir, filepath.Base(a.LocalPath))); err != nil {
			continue
		}
		l.byURL[a.SourceURL] = a.Hash
		l.byHash[a.Hash] = a
	}
}

// Localize downloads the given image URLs (resolved against baseURL) and
// returns assets in input order. Each unique URL is fetched at most once
// per pass; identical bytes behind different URLs collapse to one stored
// file. A failing image is omitted, never fails the caller.
func (l *Localizer) Localize(ctx context.Context, urls []string, baseURL, referer string) []domain.ImageAsset {
	assets := make([]domain.ImageAsset, 0, len(urls))
	for _, raw := range urls {
		u := ResolveURL(baseURL, raw)
		if u == "" || IsGeneric(u) {
			continue
		}
		asset, err := l.localizeOne(ctx, u, referer)
		if err != nil {
			lgr.Printf("[WARN] image %s skipped: %v", u, err)
			continue
		}
		assets = append(assets, asset)
	}
	return assets
}

// localizeOne resolves one URL to an asset, downloading at most once per
// URL even when extraction goroutines race on a shared image
func (l *Localizer) localizeOne(ctx context.Context, u, referer string) (domain.ImageAsset, error) {
	if asset, ok := l.cached(u); ok {
		return asset, nil
	}
	v, err, _ := l.flight.Do(u, func() (any, error) {
		if asset, ok := l.cached(u); ok {
			return asset, nil
		}
		return l.download(ctx, u, referer)
	})
	if err != nil {
		return domain.ImageAsset{}, err
	}
	return v.(domain.ImageAsset), nil
}

func (l *Localizer) cached(u string) (domain.ImageAsset, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hash, ok := l.byURL[u]; ok {
		if asset, ok := l.byHash[hash]; ok {
			return asset, true
		}
	}
	return domain.ImageAsset{}, false
}

func (l *Localizer) download(ctx context.Context, u, referer string) (domain.ImageAsset, error) {
	res, err := l.fetcher.Fetch(ctx, u, fetch.Options{Accept: "image/*", Referer: referer})
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("fetch image: %w", err)
	}
	if len(res.Body) == 0 {
		return domain.ImageAsset{}, fmt.Errorf("empty image body")
	}

	sum := sha256.Sum256(res.Body)
	hash := hex.EncodeToString(sum[:])

	l.mu.Lock()
	if asset, ok := l.byHash[hash]; ok {
		// same bytes under a different URL, reuse the stored file
		l.byURL[u] = hash
		l.mu.Unlock()
		return asset, nil
	}
	l.mu.Unlock()

	asset, err := l.store(hash, u, res.Body)
	if err != nil {
		return domain.ImageAsset{}, err
	}

	l.mu.Lock()
	l.byURL[u] = hash
	l.byHash[hash] = asset
	l.mu.Unlock()
	return asset, nil
}

// store writes the image to disk, re-encoding to bounded JPEG when
// possible; re-encode failure degrades to storing the original bytes
func (l *Localizer) store(hash, sourceURL string, data []byte) (domain.ImageAsset, error) {
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return domain.ImageAsset{}, fmt.Errorf("create image dir: %w", err)
	}

	asset := domain.ImageAsset{Hash: hash, SourceURL: sourceURL}

	encoded, width, height, err := l.reencode(data)
	if err != nil {
		// keep originals when re-encoding is impossible
		name := hash[:16] + sniffExt(data)
		if werr := os.WriteFile(filepath.Join(l.dir, name), data, 0o600); werr != nil {
			return domain.ImageAsset{}, fmt.Errorf("write image: %w", werr)
		}
		asset.LocalPath = filepath.ToSlash(filepath.Join(filepath.Base(l.dir), name))
		return asset, nil
	}

	name := hash[:16] + ".jpg"
	if err := os.WriteFile(filepath.Join(l.dir, name), encoded, 0o600); err != nil {
		return domain.ImageAsset{}, fmt.Errorf("write image: %w", err)
	}
	asset.LocalPath = filepath.ToSlash(filepath.Join(filepath.Base(l.dir), name))
	asset.Width, asset.Height = width, height
	return asset, nil
}

func (l *Localizer) reencode(data []byte) (encoded []byte, width, height int, err error) {
	if l.maxWidth <= 0 {
		return nil, 0, 0, fmt.Errorf("re-encode disabled")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > l.maxWidth {
		img = imaging.Resize(img, l.maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(l.quality)); err != nil {
		return nil, 0, 0, fmt.Errorf("encode image: %w", err)
	}
	bounds := img.Bounds()
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// sniffExt picks a file extension from magic bytes, jpg when unsure
func sniffExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return ".png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return ".gif"
	case len(data) > 12 && bytes.Equal(data[8:12], []byte("WEBP")):
		return ".webp"
	default:
		return ".jpg"
	}
}
