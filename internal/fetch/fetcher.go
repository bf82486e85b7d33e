package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/log"
)

// RetryBackoffFactor multiplies the base delay before the single retry of a
// rate-limited request.
const RetryBackoffFactor = 3

const (
	acceptPage  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptImage = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// Renderer returns fully rendered markup for a page. Callers must check
// Available before calling Render.
type Renderer interface {
	Available() bool
	Render(ctx context.Context, pageURL string) (string, error)
}

// Fetcher performs page and image requests.
type Fetcher struct {
	client       *http.Client
	baseDelay    time.Duration
	maxBodySize  int64
	maxImageSize int64
	renderer     Renderer
	limiter      *rate.Limiter
	logger       *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseDelay sets the delay the 429 backoff is derived from.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithMaxBodySize limits page bodies.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithMaxImageSize limits image bodies.
func WithMaxImageSize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxImageSize = n
		}
	}
}

// WithRenderer sets the render collaborator. A nil renderer disables it.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) {
		f.renderer = r
	}
}

// WithRateLimit caps requests per second across the whole run.
// rps <= 0 removes the cap.
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = log.Category(l, log.CategoryFetch)
	}
}

// New returns a Fetcher using client.
func New(client *http.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       client,
		baseDelay:    config.DefaultBaseDelay,
		maxBodySize:  config.DefaultMaxBodySize,
		maxImageSize: config.DefaultMaxImageSize,
		logger:       log.Category(nil, log.CategoryFetch),
		sleep:        Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromConfig returns a Fetcher configured from a run configuration.
func NewFromConfig(client *http.Client, cfg *config.Config, opts ...Option) *Fetcher {
	base := []Option{
		WithBaseDelay(cfg.BaseDelay),
		WithMaxBodySize(cfg.MaxBodySize),
		WithMaxImageSize(cfg.MaxImageSize),
		WithRateLimit(cfg.RequestsPerSecond),
	}
	return New(client, append(base, opts...)...)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Jitter returns a random duration in [base/2, 3*base/2), the politeness
// delay used in stealth mode.
func Jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return base/2 + rand.N(base)
}

// FetchPage returns the page markup decoded to UTF-8. When a renderer is
// available and succeeds, its markup replaces the static one; render
// failures fall back to the static markup.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	resp, err := f.get(ctx, pageURL, acceptPage)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	limited := &io.LimitedReader{R: resp.Body, N: f.maxBodySize + 1}
	body, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", pageURL, err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	if limited.N == 0 {
		f.logger.Warn("page body truncated", "url", pageURL, "limit", f.maxBodySize)
		if int64(len(raw)) > f.maxBodySize {
			raw = raw[:f.maxBodySize]
		}
	}
	markup := string(raw)

	if f.renderer == nil || !f.renderer.Available() {
		return markup, nil
	}
	rendered, err := f.renderer.Render(ctx, pageURL)
	if err != nil {
		f.logger.Warn("render failed, using static markup", "url", pageURL, "error", err)
		return markup, nil
	}
	if strings.TrimSpace(rendered) == "" {
		return markup, nil
	}
	return rendered, nil
}

// FetchBytes returns the raw body of an image URL. Bodies over the image
// size limit fail with ErrBodyTooLarge instead of being truncated.
func (f *Fetcher) FetchBytes(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := f.get(ctx, imageURL, acceptImage)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > f.maxImageSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", imageURL, resp.ContentLength, ErrBodyTooLarge)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", imageURL, err)
	}
	if int64(len(data)) > f.maxImageSize {
		return nil, fmt.Errorf("%s: over %d bytes: %w", imageURL, f.maxImageSize, ErrBodyTooLarge)
	}
	return data, nil
}

// get issues the request and retries once after RetryBackoffFactor times
// the base delay when the server answers 429.
func (f *Fetcher) get(ctx context.Context, target, accept string) (*http.Response, error) {
	resp, err := f.do(ctx, target, accept)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, ErrRateLimited) {
		return nil, err
	}

	wait := RetryBackoffFactor * f.baseDelay
	f.logger.Info("rate limited, backing off", "url", target, "wait", wait)
	if err := f.sleep(ctx, wait); err != nil {
		return nil, err
	}
	return f.do(ctx, target, accept)
}

func (f *Fetcher) do(ctx context.Context, target, accept string) (*http.Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", target, err)
	}
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
