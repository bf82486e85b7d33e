package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/log"
)

// ErrUnavailable is returned by Render when no browser is running.
var ErrUnavailable = errors.New("renderer unavailable")

const (
	scrollInterval = 500 * time.Millisecond
	maxScrolls     = 30

	// scrollScript scrolls to the bottom and reports the document height.
	scrollScript = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`
)

// ChromeRenderer renders pages in tabs of one shared headless browser.
type ChromeRenderer struct {
	browserCtx    context.Context //nolint:containedctx // browser lifetime
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	timeout   time.Duration
	userAgent string
	execPath  string
	logger    *slog.Logger

	mu        sync.Mutex
	available bool
}

// Option configures a ChromeRenderer.
type Option func(*ChromeRenderer)

// WithTimeout bounds one render.
func WithTimeout(d time.Duration) Option {
	return func(r *ChromeRenderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithUserAgent overrides the browser User-Agent.
func WithUserAgent(ua string) Option {
	return func(r *ChromeRenderer) {
		r.userAgent = ua
	}
}

// WithExecPath sets the Chrome binary. Empty lets chromedp search for one.
func WithExecPath(path string) Option {
	return func(r *ChromeRenderer) {
		r.execPath = path
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *ChromeRenderer) {
		r.logger = log.Category(l, log.CategoryRender)
	}
}

// NewChromeRenderer starts a headless browser. Start-up failure is not an
// error: the returned renderer reports Available() == false.
func NewChromeRenderer(ctx context.Context, opts ...Option) *ChromeRenderer {
	r := &ChromeRenderer{
		timeout: config.DefaultRenderTimeout,
		logger:  log.Category(nil, log.CategoryRender),
	}
	for _, opt := range opts {
		opt(r)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("mute-audio", true),
	)
	if r.userAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(r.userAgent))
	}
	if r.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	r.browserCtx = browserCtx
	r.cancelBrowser = cancelBrowser
	r.cancelAlloc = cancelAlloc

	// Running no actions launches the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		r.logger.Warn("headless browser unavailable, rendering disabled", "error", err)
		cancelBrowser()
		cancelAlloc()
		return r
	}
	r.available = true
	return r
}

// Available reports whether the browser is running.
func (r *ChromeRenderer) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// Render navigates a new tab to pageURL, scrolls until the document height
// stops growing, and returns the outer HTML.
func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	if !r.Available() {
		return "", ErrUnavailable
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	if err := r.scrollToBottom(tabCtx); err != nil {
		return "", fmt.Errorf("scroll %s: %w", pageURL, err)
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read markup of %s: %w", pageURL, err)
	}
	return html, nil
}

// scrollToBottom polls the document height on a fixed interval, scrolling
// each time, until two consecutive readings agree.
func (r *ChromeRenderer) scrollToBottom(ctx context.Context) error {
	var prev float64 = -1
	for range maxScrolls {
		var height float64
		if err := chromedp.Run(ctx, chromedp.Evaluate(scrollScript, &height)); err != nil {
			return err
		}
		if height == prev {
			return nil
		}
		prev = height

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(scrollInterval):
		}
	}
	r.logger.Debug("scroll limit reached", "scrolls", maxScrolls)
	return nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	r.available = false
	r.mu.Unlock()
	if r.cancelBrowser != nil {
		r.cancelBrowser()
	}
	if r.cancelAlloc != nil {
		r.cancelAlloc()
	}
	return nil
}
