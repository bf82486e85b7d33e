package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/imgscrape/internal/checkpoint"
	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/download"
	"github.com/nao1215/imgscrape/internal/extract"
	"github.com/nao1215/imgscrape/internal/fetch"
	"github.com/nao1215/imgscrape/internal/log"
	"github.com/nao1215/imgscrape/internal/model"
	"github.com/nao1215/imgscrape/internal/robots"
	"github.com/nao1215/imgscrape/internal/stats"
	"github.com/nao1215/imgscrape/internal/transport"
)

// CheckpointInterval is the number of processed pages between checkpoint
// writes.
const CheckpointInterval = 10

// PageFetcher returns the markup of a page.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// Policy answers robots.txt queries and supplies sitemap seeds.
type Policy interface {
	Allowed(ctx context.Context, target string) bool
	SeedURLs(ctx context.Context) []string
}

// Downloader processes the image candidates of one page.
type Downloader interface {
	ProcessBatch(ctx context.Context, candidates []model.ImageCandidate) download.BatchResult
	Restore(urls, hashes []string)
	Downloaded() []string
	Hashes() []string
}

// RunRecorder stores run summaries.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *model.RunSummary) error
}

// Dependencies are the collaborators of a Crawler. Nil fields are built
// from the configuration.
type Dependencies struct {
	// Client is the HTTP client for pages, images, robots.txt and sitemaps.
	Client *http.Client

	// Fetcher fetches page markup.
	Fetcher PageFetcher

	// Renderer renders pages when the default Fetcher is built.
	Renderer fetch.Renderer

	// Policy overrides the robots resolver built during seeding.
	Policy Policy

	// Downloader overrides the download manager.
	Downloader Downloader

	// Recorder receives saved images when the default download manager is built.
	Recorder download.Recorder

	// Store persists checkpoints. Nil disables checkpointing.
	Store checkpoint.Store

	// History stores the run summary at start and end.
	History RunRecorder

	// Stats collects progress counters.
	Stats *stats.Collector
}

// Result describes a finished run.
type Result struct {
	RunID      string
	RootURL    string
	Mode       config.CrawlMode
	State      State
	Resumed    bool
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      stats.Snapshot

	// Checkpoint is the checkpoint file left on disk, if any.
	Checkpoint string

	// Err is the fatal error of a failed run.
	Err error
}

// Duration returns the run time.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary converts the result to the stored run summary.
func (r *Result) Summary() *model.RunSummary {
	s := &model.RunSummary{
		ID:               r.RunID,
		RootURL:          r.RootURL,
		Mode:             string(r.Mode),
		State:            r.State.String(),
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Resumed:          r.Resumed,
		PagesFound:       r.Stats.PagesFound,
		PagesCrawled:     r.Stats.PagesCrawled,
		ImagesFound:      r.Stats.ImagesFound,
		ImagesDownloaded: r.Stats.ImagesDownloaded,
		ImagesSkipped:    r.Stats.ImagesSkipped,
		ImagesFailed:     r.Stats.ImagesFailed,
		BytesDownloaded:  r.Stats.BytesDownloaded,
		Duration:         r.Duration(),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// Crawler runs one crawl. It is not reusable.
type Crawler struct {
	cfg       *config.Config
	deps      Dependencies
	extractor *extract.Extractor
	stats     *stats.Collector
	base      *slog.Logger
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func(base time.Duration) time.Duration
	runID     string

	state atomic.Int32

	// run state, owned by the Run goroutine
	root      *url.URL
	site      config.SiteConfig
	maxDepth  int
	policy    Policy
	frontier  *frontier
	visited   *model.URLSet
	processed int64
	cp        *model.Checkpoint
	resumed   bool
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		c.base = l
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		c.now = now
	}
}

// WithRunID sets the run ID instead of a random UUID.
func WithRunID(id string) Option {
	return func(c *Crawler) {
		c.runID = id
	}
}

// New returns a Crawler for cfg. Missing dependencies are built from cfg.
func New(cfg *config.Config, deps Dependencies, opts ...Option) (*Crawler, error) {
	c := &Crawler{
		cfg:    cfg,
		now:    time.Now,
		sleep:  fetch.Sleep,
		jitter: fetch.Jitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	if c.base == nil {
		c.base = slog.Default()
	}
	c.logger = log.Category(c.base, log.CategoryCrawl)

	if deps.Stats == nil {
		deps.Stats = stats.NewCollector()
	}
	c.stats = deps.Stats

	if deps.Client == nil {
		client, err := transport.NewHTTPClient(transport.OptionsFromConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("create HTTP client: %w", err)
		}
		deps.Client = client
	}

	var fetcher *fetch.Fetcher
	if deps.Fetcher == nil || deps.Downloader == nil {
		fopts := []fetch.Option{fetch.WithLogger(c.base)}
		if deps.Renderer != nil {
			fopts = append(fopts, fetch.WithRenderer(deps.Renderer))
		}
		fetcher = fetch.NewFromConfig(deps.Client, cfg, fopts...)
	}
	if deps.Fetcher == nil {
		deps.Fetcher = fetcher
	}

	if deps.Downloader == nil {
		dcfg := cfg
		if site := cfg.SiteConfigs.GetSiteConfig(hostOf(cfg.RootURL)); site.URLFilter != "" {
			clone := *cfg
			clone.URLFilter = site.URLFilter
			dcfg = &clone
		}
		dopts := []download.Option{
			download.WithRunID(c.runID),
			download.WithLogger(c.base),
			download.WithClock(c.now),
		}
		if deps.Recorder != nil {
			dopts = append(dopts, download.WithRecorder(deps.Recorder))
		}
		m, err := download.NewManager(dcfg, fetcher, c.stats, dopts...)
		if err != nil {
			return nil, err
		}
		deps.Downloader = m
	}

	c.deps = deps
	c.extractor = extract.New(extract.WithGIF(cfg.IncludeAnimatedGIF))
	return c, nil
}

// RunID returns the ID of the run.
func (c *Crawler) RunID() string {
	return c.runID
}

// State returns the current state. It is safe to call from any goroutine.
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// Stats returns the current counters. It is safe to call from any goroutine.
func (c *Crawler) Stats() stats.Snapshot {
	return c.stats.Snapshot()
}

func (c *Crawler) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	c.logger.Debug("state changed", "from", prev, "to", s)
}

// Run crawls from rootURL until the frontier is empty, the page budget is
// spent, ctx is cancelled or a fatal error occurs. Page and image errors are
// logged and never end the run. The returned error is non-nil only for
// Failed runs; an Interrupted run returns ctx.Err().
func (c *Crawler) Run(ctx context.Context, rootURL string) (*Result, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateSeeding)) {
		return nil, ErrAlreadyRun
	}
	res := &Result{
		RunID:     c.runID,
		RootURL:   strings.TrimSpace(rootURL),
		Mode:      c.cfg.Mode,
		StartedAt: c.now(),
	}

	if err := c.seed(ctx, rootURL, res); err != nil {
		return c.finish(ctx, res, StateFailed, err)
	}

	c.setState(StateCrawling)
	c.saveHistory(ctx, res, StateCrawling)

	if err := c.crawl(ctx); err != nil {
		return c.finish(ctx, res, StateInterrupted, err)
	}
	return c.finish(ctx, res, StateCompleted, nil)
}

// seed validates the root URL, builds the resolver, restores the checkpoint
// and fills the frontier.
func (c *Crawler) seed(ctx context.Context, rootURL string, res *Result) error {
	raw := strings.TrimSpace(rootURL)
	if raw == "" {
		return ErrNoRootURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRootURL, raw)
	}
	normalized := model.NormalizeURL(raw)
	c.root, _ = url.Parse(normalized) //nolint:errcheck // normalized from a parsed URL
	res.RootURL = normalized

	c.site = c.cfg.SiteConfigs.GetSiteConfig(c.root.Host)
	c.maxDepth = c.cfg.MaxDepth
	if c.site.Depth != 0 {
		c.maxDepth = c.site.Depth
	}

	c.policy = c.deps.Policy
	if c.policy == nil {
		r, err := robots.NewResolver(c.deps.Client, normalized,
			robots.WithEnabled(c.cfg.RespectRobots),
			robots.WithLogger(c.base))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrResolver, err)
		}
		c.policy = r
	}

	c.visited = model.NewURLSet()
	c.frontier = newFrontier()

	if err := c.restore(normalized); err != nil {
		return err
	}
	res.Resumed = c.resumed

	if c.frontier.len() == 0 {
		c.enqueue(model.CrawlTask{URL: normalized, Depth: 0})
		if c.cfg.Mode == config.ModeDomain && c.cfg.UseSitemap {
			seeds := c.policy.SeedURLs(ctx)
			for _, s := range seeds {
				c.enqueue(model.CrawlTask{URL: s, Depth: 1})
			}
			c.logger.Info("sitemap seeds", "count", len(seeds))
		}
	}
	if c.deps.Store != nil {
		if p, ok := c.deps.Store.(interface{ Path(string) string }); ok {
			res.Checkpoint = p.Path(normalized)
		}
	}
	return nil
}

// restore merges a stored checkpoint for rootURL into the run.
func (c *Crawler) restore(rootURL string) error {
	c.cp = model.NewCheckpoint(rootURL, c.now())
	c.cp.RunID = c.runID
	if c.deps.Store == nil || !c.cfg.Resume {
		return nil
	}

	cp, err := c.deps.Store.Load(rootURL)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return nil
	case errors.Is(err, checkpoint.ErrRootMismatch):
		c.logger.Warn("ignoring checkpoint of another root URL", "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}

	c.resumed = true
	c.cp.CreatedAt = cp.CreatedAt
	c.visited.Merge(cp.VisitedURLs...)
	c.frontier.seen.Merge(cp.VisitedURLs...)
	c.deps.Downloader.Restore(cp.DownloadedURLs, cp.DownloadedHashes)
	c.processed = cp.PagesProcessed
	c.stats.Seed(stats.Snapshot{
		PagesFound:       int64(len(cp.VisitedURLs) + len(cp.PendingTasks)),
		PagesCrawled:     cp.PagesProcessed,
		ImagesFound:      cp.ImagesFound,
		ImagesDownloaded: cp.ImagesDownloaded,
		ImagesSkipped:    cp.ImagesSkipped,
		ImagesFailed:     cp.ImagesFailed,
		BytesDownloaded:  cp.BytesDownloaded,
	})
	for _, t := range cp.PendingTasks {
		c.frontier.push(t)
	}
	c.logger.Info("resuming from checkpoint",
		"visited", len(cp.VisitedURLs),
		"pending", len(cp.PendingTasks),
		"downloaded", len(cp.DownloadedURLs))
	c.stats.Activity(fmt.Sprintf("resumed: %d pages visited, %d pending", len(cp.VisitedURLs), len(cp.PendingTasks)))
	return nil
}

// enqueue adds task to the frontier when it is within the depth bound, on
// the root host and allowed by the site patterns.
func (c *Crawler) enqueue(task model.CrawlTask) {
	if !c.withinDepth(task.Depth) || !c.sameHost(task.URL) || !c.site.ShouldFollow(task.URL) {
		return
	}
	if c.frontier.push(task) {
		c.stats.AddPagesFound(1)
	}
}

func (c *Crawler) withinDepth(depth int) bool {
	return c.maxDepth == config.UnlimitedDepth || depth <= c.maxDepth
}

func (c *Crawler) sameHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.EqualFold(u.Host, c.root.Host)
}

func (c *Crawler) pageBudgetSpent() bool {
	if c.cfg.Mode == config.ModeSinglePage {
		return c.processed >= 1
	}
	return c.cfg.MaxPages > 0 && c.processed >= int64(c.cfg.MaxPages)
}

// crawl runs the breadth-first loop. It returns ctx.Err() when cancelled.
func (c *Crawler) crawl(ctx context.Context) error {
	firstPage := true
	for !c.pageBudgetSpent() {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, ok := c.frontier.pop()
		if !ok {
			return nil
		}

		key := model.NormalizeURL(task.URL)
		if c.visited.Contains(key) || !c.withinDepth(task.Depth) {
			continue
		}
		if !c.policy.Allowed(ctx, task.URL) {
			c.logger.Info("disallowed by robots.txt", "url", task.URL)
			c.stats.Activity("robots: skipped " + task.URL)
			continue
		}
		if !c.visited.Claim(key) {
			continue
		}

		if !firstPage && c.cfg.DelayEnabled() {
			if err := c.sleep(ctx, c.jitter(c.cfg.BaseDelay)); err != nil {
				c.requeue(task, key)
				return err
			}
		}
		firstPage = false

		c.processPage(ctx, task)
		if err := ctx.Err(); err != nil {
			// the page's batch was cut short; the next run repeats it
			c.requeue(task, key)
			return err
		}

		c.processed++
		c.stats.AddPagesCrawled(1)
		if c.processed%CheckpointInterval == 0 {
			c.saveCheckpoint()
		}
	}
	return nil
}

func (c *Crawler) requeue(task model.CrawlTask, key string) {
	c.visited.Release(key)
	c.frontier.pushFront(task)
}

// processPage fetches one page, downloads its images and enqueues its links.
// Errors are logged and absorbed.
func (c *Crawler) processPage(ctx context.Context, task model.CrawlTask) {
	c.logger.Info("crawling page", "url", task.URL, "depth", task.Depth)
	c.stats.Activity("page " + task.URL)

	markup, err := c.deps.Fetcher.FetchPage(ctx, task.URL)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("page fetch failed", "url", task.URL, "error", err)
			c.stats.Activity("page failed " + task.URL)
		}
		return
	}

	candidates := c.extractor.Candidates(markup, task.URL)
	c.stats.AddImagesFound(int64(len(candidates)))
	if len(candidates) > 0 {
		res := c.deps.Downloader.ProcessBatch(ctx, candidates)
		c.logger.Debug("page images processed", "url", task.URL,
			"candidates", len(candidates),
			"downloaded", res.Downloaded,
			"skipped", res.Skipped,
			"failed", res.Failed)
	}

	if c.cfg.Mode != config.ModeDomain || ctx.Err() != nil {
		return
	}
	if !c.withinDepth(task.Depth + 1) {
		return
	}
	parser, err := extract.NewLinkParser(task.URL)
	if err != nil {
		c.logger.Warn("link extraction failed", "url", task.URL, "error", err)
		return
	}
	links, err := parser.Parse(strings.NewReader(markup))
	if err != nil {
		c.logger.Warn("link extraction failed", "url", task.URL, "error", err)
		return
	}
	for _, link := range links.Internal {
		c.enqueue(model.CrawlTask{URL: link, Depth: task.Depth + 1})
	}
}

// snapshot projects the run state into the checkpoint.
func (c *Crawler) snapshot() *model.Checkpoint {
	s := c.stats.Snapshot()
	cp := c.cp
	cp.UpdatedAt = c.now()
	cp.RunID = c.runID
	cp.VisitedURLs = c.visited.Sorted()
	cp.DownloadedURLs = c.deps.Downloader.Downloaded()
	cp.DownloadedHashes = c.deps.Downloader.Hashes()
	cp.PendingTasks = c.frontier.pending()
	cp.PagesProcessed = c.processed
	cp.ImagesFound = s.ImagesFound
	cp.ImagesDownloaded = s.ImagesDownloaded
	cp.ImagesSkipped = s.ImagesSkipped
	cp.ImagesFailed = s.ImagesFailed
	cp.BytesDownloaded = s.BytesDownloaded
	return cp
}

func (c *Crawler) saveCheckpoint() {
	if c.deps.Store == nil {
		return
	}
	if err := c.deps.Store.Save(c.snapshot()); err != nil {
		c.logger.Warn("checkpoint save failed", "error", err)
		return
	}
	c.stats.Activity(fmt.Sprintf("checkpoint saved after %d pages", c.processed))
}

// finish moves to the terminal state, settles the checkpoint and records
// the run.
func (c *Crawler) finish(ctx context.Context, res *Result, state State, err error) (*Result, error) {
	switch state {
	case StateCompleted:
		if c.deps.Store != nil {
			if derr := c.deps.Store.Delete(res.RootURL); derr != nil {
				c.logger.Warn("checkpoint delete failed", "error", derr)
			}
		}
		res.Checkpoint = ""
	case StateInterrupted:
		c.saveCheckpoint()
		c.logger.Warn("crawl interrupted", "pages", c.processed, "reason", err)
	case StateFailed:
		res.Err = err
		res.Checkpoint = ""
		c.logger.Error("crawl failed", "error", err)
	}

	c.setState(state)
	res.State = state
	res.FinishedAt = c.now()
	res.Stats = c.stats.Snapshot()
	c.saveHistory(ctx, res, state)

	if state == StateCompleted {
		c.logger.Info("crawl completed",
			"pages", res.Stats.PagesCrawled,
			"downloaded", res.Stats.ImagesDownloaded,
			"skipped", res.Stats.ImagesSkipped,
			"failed", res.Stats.ImagesFailed)
	}
	return res, err
}

func (c *Crawler) saveHistory(ctx context.Context, res *Result, state State) {
	if c.deps.History == nil || c.root == nil {
		return
	}
	snapshot := *res
	snapshot.State = state
	if !state.Terminal() {
		snapshot.Stats = c.stats.Snapshot()
		snapshot.FinishedAt = time.Time{}
	}
	if err := c.deps.History.SaveRun(context.WithoutCancel(ctx), snapshot.Summary()); err != nil {
		c.logger.Warn("failed to record run", "error", err)
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Host
}
