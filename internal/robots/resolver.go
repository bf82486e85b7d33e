package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"

	"github.com/nao1215/imgscrape/internal/log"
)

// ErrNoHost is returned when the root URL has no host to resolve against.
var ErrNoHost = errors.New("root URL has no host")

const (
	maxRobotsSize  = 512 * 1024
	maxSitemapSize = 10 * 1024 * 1024

	// maxChildSitemaps bounds how many sitemaps of a sitemap index are read.
	maxChildSitemaps = 10
)

// Resolver serves robots.txt decisions and sitemap seeds for one root host.
type Resolver struct {
	client  *http.Client
	root    *url.URL
	enabled bool
	logger  *slog.Logger

	once  sync.Once
	rules *Rules
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEnabled toggles robots.txt compliance. When disabled every URL is
// allowed and robots.txt is never fetched.
func WithEnabled(enabled bool) Option {
	return func(r *Resolver) {
		r.enabled = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = log.Category(l, log.CategoryRobots)
	}
}

// NewResolver returns a Resolver for the host of rootURL.
func NewResolver(client *http.Client, rootURL string, opts ...Option) (*Resolver, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("parse root URL: %w", err)
	}
	if u.Host == "" {
		return nil, ErrNoHost
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	r := &Resolver{
		client:  client,
		root:    u,
		enabled: true,
		logger:  log.Category(nil, log.CategoryRobots),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Allowed reports whether target may be fetched. robots.txt is fetched
// lazily on the first call; any fetch failure allows everything.
func (r *Resolver) Allowed(ctx context.Context, target string) bool {
	if !r.enabled {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return r.loadRules(ctx).Allowed(path)
}

func (r *Resolver) loadRules(ctx context.Context) *Rules {
	r.once.Do(func() {
		r.rules = &Rules{}
		robotsURL := r.origin() + "/robots.txt"

		// the rules outlive the first caller's context
		body, err := r.get(context.WithoutCancel(ctx), robotsURL, maxRobotsSize)
		if err != nil {
			r.logger.Info("robots.txt unavailable, allowing all", "url", robotsURL, "error", err)
			return
		}
		defer body.Close()
		r.rules = ParseRules(body)
		r.logger.Debug("robots.txt loaded", "disallow", r.rules.Disallowed())
	})
	return r.rules
}

// SeedURLs returns the same-host page URLs listed in /sitemap.xml and in
// any same-host Sitemap directive of robots.txt. Failures yield what could
// be read, possibly nothing.
func (r *Resolver) SeedURLs(ctx context.Context) []string {
	sources := []string{r.origin() + "/sitemap.xml"}
	if r.enabled {
		for _, sm := range r.loadRules(ctx).Sitemaps() {
			if r.sameHost(sm) && !containsFold(sources, sm) {
				sources = append(sources, sm)
			}
		}
	}

	seen := make(map[string]bool)
	var seeds []string
	children := 0
	for i := 0; i < len(sources); i++ {
		locs, nested, err := r.readSitemap(ctx, sources[i])
		if err != nil {
			r.logger.Info("sitemap unavailable", "url", sources[i], "error", err)
			continue
		}
		for _, loc := range nested {
			if children < maxChildSitemaps && r.sameHost(loc) && !containsFold(sources, loc) {
				sources = append(sources, loc)
				children++
			}
		}
		for _, loc := range locs {
			if r.sameHost(loc) && !seen[loc] {
				seen[loc] = true
				seeds = append(seeds, loc)
			}
		}
	}
	return seeds
}

// readSitemap returns page locations and, for sitemap indexes, the nested
// sitemap locations.
func (r *Resolver) readSitemap(ctx context.Context, sitemapURL string) ([]string, []string, error) {
	body, err := r.get(ctx, sitemapURL, maxSitemapSize)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()

	doc, err := xmlquery.Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse sitemap: %w", err)
	}

	locs := queryText(doc, "//urlset/url/loc")
	if len(locs) == 0 {
		locs = queryText(doc, "//*[local-name()='url']/*[local-name()='loc']")
	}
	nested := queryText(doc, "//sitemapindex/sitemap/loc")
	if len(nested) == 0 {
		nested = queryText(doc, "//*[local-name()='sitemap']/*[local-name()='loc']")
	}
	return locs, nested, nil
}

func queryText(doc *xmlquery.Node, expr string) []string {
	nodes, err := xmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if v := strings.TrimSpace(n.InnerText()); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (r *Resolver) get(ctx context.Context, target string, limit int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, limit), resp.Body}, nil
}

func (r *Resolver) origin() string {
	return r.root.Scheme + "://" + r.root.Host
}

func (r *Resolver) sameHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.root.Host)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
