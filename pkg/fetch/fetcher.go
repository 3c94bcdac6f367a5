package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"golang.org/x/sync/semaphore"
)

// Token carries the server's validation markers from a prior response.
// Empty token means no conditional headers are sent.
type Token struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Zero reports whether the token carries no validation markers
func (t Token) Zero() bool { return t.ETag == "" && t.LastModified == "" }

// Status of a completed fetch
type Status int

// fetch outcomes
const (
	StatusFresh Status = iota
	StatusNotModified
)

// Result of a successful Fetch call. Body and Token are only meaningful
// for StatusFresh.
type Result struct {
	Status Status
	Body   []byte
	Token  Token
}

// Options tune a single request
type Options struct {
	Token   Token  // prior validation token for conditional fetch
	Referer string // some image hosts reject requests without one
	Accept  string
}

// Client is a concurrency-capped HTTP fetcher with conditional-request
// support and bounded retry on transient failures. It never touches the
// cache; callers decide what a result means.
type Client struct {
	http       *http.Client
	userAgent  string
	maxRetries int

	global  *semaphore.Weighted
	perHost int64
	mu      sync.Mutex
	hosts   map[string]*semaphore.Weighted
}

// Params for NewClient
type Params struct {
	Timeout       time.Duration
	MaxConcurrent int
	PerHost       int
	MaxRetries    int
	UserAgent     string
}

// NewClient creates a fetcher enforcing a global in-flight cap and a
// per-host cap, so one slow origin cannot starve the others
func NewClient(p Params) *Client {
	return &Client{
		http: &http.Client{
			Timeout: p.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:  p.UserAgent,
		maxRetries: p.MaxRetries,
		global:     semaphore.NewWeighted(int64(p.MaxConcurrent)),
		perHost:    int64(p.PerHost),
		hosts:      make(map[string]*semaphore.Weighted),
	}
}

// Fetch retrieves a URL. With a prior token it issues a conditional GET and
// returns StatusNotModified on 304 without re-downloading the body. An
// ambiguous server response (token sent, 200 with body anyway) is treated
// as a fresh fetch. Transient failures are retried with backoff.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, permanent(fmt.Errorf("invalid URL %q", rawURL))
	}

	if err := c.global.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire global slot: %w", err)
	}
	defer c.global.Release(1)

	host := c.hostSem(u.Host)
	if err := host.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire host slot for %s: %w", u.Host, err)
	}
	defer host.Release(1)

	var res *Result
	retrier := repeater.NewBackoff(c.maxRetries, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))
	err = retrier.Do(ctx, func() error {
		var doErr error
		res, doErr = c.do(ctx, rawURL, opts)
		return doErr
	}, ErrPermanent)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", c.userAgent)
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	if opts.Token.ETag != "" {
		req.Header.Set("If-None-Match", opts.Token.ETag)
	}
	if opts.Token.LastModified != "" {
		req.Header.Set("If-Modified-Since", opts.Token.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err) // transport errors retry
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Result{Status: StatusNotModified, Token: opts.Token}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("server status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, permanent(fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		Status: StatusFresh,
		Body:   body,
		Token: Token{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}

func (c *Client) hostSem(host string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.hosts[host]
	if !ok {
		sem = semaphore.NewWeighted(c.perHost)
		c.hosts[host] = sem
	}
	return sem
}
