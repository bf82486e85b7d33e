package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/imgscrape/internal/checkpoint"
	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/download"
	"github.com/nao1215/imgscrape/internal/log"
	"github.com/nao1215/imgscrape/internal/model"
)

// site serves a small linked set of pages. Each page links to the pages in
// links and embeds one image named after itself.
type site struct {
	pages  map[string][]string
	robots string
	mu     sync.Mutex
	hits   []string
}

func (s *site) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits = append(s.hits, r.URL.Path)
		s.mu.Unlock()

		if r.URL.Path == "/robots.txt" {
			if s.robots == "" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(s.robots))
			return
		}
		if strings.HasPrefix(r.URL.Path, "/img/") {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(testPNG(shadeOf(r.URL.Path)))
			return
		}
		links, ok := s.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var b strings.Builder
		b.WriteString("<html><body>")
		name := strings.Trim(r.URL.Path, "/")
		if name == "" {
			name = "index"
		}
		fmt.Fprintf(&b, `<img src="/img/%s.png">`, name)
		for _, l := range links {
			fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
		}
		b.WriteString("</body></html>")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(b.String()))
	})
}

// shadeOf varies the image color by path so that every image has distinct
// content.
func shadeOf(path string) uint8 {
	var sum uint8
	for i := range len(path) {
		sum += path[i]
	}
	return sum
}

func testPNG(shade uint8) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 300, 300))
	for y := range 300 {
		for x := range 300 {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// chain is / -> /a -> /b -> /c.
func chain() *site {
	return &site{pages: map[string][]string{
		"/":  {"/a"},
		"/a": {"/b"},
		"/b": {"/c"},
		"/c": nil,
	}}
}

// longChain is / -> /p1 -> ... -> /p<n-1>.
func longChain(n int) *site {
	pages := map[string][]string{"/": {"/p1"}}
	for i := 1; i < n; i++ {
		var next []string
		if i+1 < n {
			next = []string{fmt.Sprintf("/p%d", i+1)}
		}
		pages[fmt.Sprintf("/p%d", i)] = next
	}
	return &site{pages: pages}
}

// countingStore records the processed-page count of every saved checkpoint.
type countingStore struct {
	checkpoint.Store
	mu      sync.Mutex
	saves   []int64
	deletes int
}

func (s *countingStore) Save(cp *model.Checkpoint) error {
	s.mu.Lock()
	s.saves = append(s.saves, cp.PagesProcessed)
	s.mu.Unlock()
	return s.Store.Save(cp)
}

func (s *countingStore) Delete(rootURL string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.Store.Delete(rootURL)
}

type fakeDownloader struct {
	mu       sync.Mutex
	pages    []string
	images   []string
	restored []string
}

func (d *fakeDownloader) ProcessBatch(_ context.Context, candidates []model.ImageCandidate) download.BatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = append(d.pages, candidates[0].SourcePageURL)
	for _, c := range candidates {
		d.images = append(d.images, c.URL)
	}
	return download.BatchResult{Downloaded: len(candidates)}
}

func (d *fakeDownloader) Restore(urls, _ []string) {
	d.restored = append(d.restored, urls...)
}

func (d *fakeDownloader) Downloaded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.images)
}

func (d *fakeDownloader) Hashes() []string { return nil }

func (d *fakeDownloader) paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.pages))
	for _, p := range d.pages {
		out = append(out, p[strings.Index(p[len("http://"):], "/")+len("http://"):])
	}
	return out
}

type stubPolicy struct {
	deny  map[string]bool
	seeds []string
}

func (p stubPolicy) Allowed(_ context.Context, target string) bool {
	for path := range p.deny {
		if strings.HasSuffix(target, path) {
			return false
		}
	}
	return true
}

func (p stubPolicy) SeedURLs(context.Context) []string { return p.seeds }

type memHistory struct {
	mu   sync.Mutex
	runs []model.RunSummary
}

func (h *memHistory) SaveRun(_ context.Context, run *model.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, *run)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.OutputDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.MaxPages = 0
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestCrawler(t *testing.T, cfg *config.Config, deps Dependencies) *Crawler {
	t.Helper()
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	c, err := New(cfg, deps, WithLogger(log.Discard()), WithRunID("run-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestRun_DomainMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		maxDepth int
		maxPages int
		want     []string
	}{
		{"depth zero stops at root", 0, 0, []string{"/"}},
		{"depth two", 2, 0, []string{"/", "/a", "/b"}},
		{"unlimited depth", config.UnlimitedDepth, 0, []string{"/", "/a", "/b", "/c"}},
		{"page budget", config.UnlimitedDepth, 2, []string{"/", "/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(chain().handler())
			defer srv.Close()

			cfg := testConfig(t)
			cfg.MaxDepth = tt.maxDepth
			cfg.MaxPages = tt.maxPages
			dl := &fakeDownloader{}
			c := newTestCrawler(t, cfg, Dependencies{Downloader: dl, Policy: stubPolicy{}})

			res, err := c.Run(t.Context(), srv.URL)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.State != StateCompleted || c.State() != StateCompleted {
				t.Errorf("expected completed, got %v", res.State)
			}
			if got := dl.paths(); !slices.Equal(got, tt.want) {
				t.Errorf("pages = %v, want %v", got, tt.want)
			}
			if res.Stats.PagesCrawled != int64(len(tt.want)) {
				t.Errorf("PagesCrawled = %d, want %d", res.Stats.PagesCrawled, len(tt.want))
			}
		})
	}
}

func TestRun_PeriodicCheckpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(longChain(26).handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxDepth = config.UnlimitedDepth
	store := &countingStore{Store: checkpoint.NewFileStore(t.TempDir())}
	dl := &fakeDownloader{}
	c := newTestCrawler(t, cfg, Dependencies{Downloader: dl, Policy: stubPolicy{}, Store: store})

	res, err := c.Run(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted || len(dl.paths()) != 26 {
		t.Fatalf("expected 26 pages crawled to completion, got %d (%v)", len(dl.paths()), res.State)
	}
	if want := []int64{10, 20}; !slices.Equal(store.saves, want) {
		t.Errorf("checkpoint saves at %v, want %v", store.saves, want)
	}
	if store.deletes != 1 {
		t.Errorf("expected one delete on completion, got %d", store.deletes)
	}
}

func TestRun_SinglePageMode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Mode = config.ModeSinglePage
	dl := &fakeDownloader{}
	c := newTestCrawler(t, cfg, Dependencies{Downloader: dl, Policy: stubPolicy{seeds: []string{srv.URL + "/c"}}})

	if _, err := c.Run(t.Context(), srv.URL+"/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := dl.paths(); !slices.Equal(got, []string{"/a"}) {
		t.Errorf("expected only the root page, got %v", got)
	}
	if len(dl.images) != 1 || !strings.HasSuffix(dl.images[0], "/img/a.png") {
		t.Errorf("unexpected images %v", dl.images)
	}
}

func TestRun_RobotsCompliance(t *testing.T) {
	t.Parallel()

	s := chain()
	s.robots = "User-agent: *\nDisallow: /b\n"
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxDepth = config.UnlimitedDepth
	cfg.UseSitemap = false
	dl := &fakeDownloader{}
	c := newTestCrawler(t, cfg, Dependencies{Downloader: dl})

	if _, err := c.Run(t.Context(), srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := dl.paths(); !slices.Equal(got, []string{"/", "/a"}) {
		t.Errorf("pages = %v, want [/ /a]", got)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.hits, "/b") {
		t.Error("disallowed page was fetched")
	}
}

func TestRun_SitemapSeeds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxDepth = 1
	dl := &fakeDownloader{}
	policy := stubPolicy{seeds: []string{srv.URL + "/c", "https://other.example/x"}}
	c := newTestCrawler(t, cfg, Dependencies{Downloader: dl, Policy: policy})

	if _, err := c.Run(t.Context(), srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := dl.paths(); !slices.Equal(got, []string{"/", "/c", "/a"}) {
		t.Errorf("pages = %v, want [/ /c /a]", got)
	}
}

func TestRun_InvalidRoot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		root string
		want error
	}{
		{"empty", "  ", ErrNoRootURL},
		{"unsupported scheme", "ftp://example.com", ErrInvalidRootURL},
		{"no host", "http://", ErrInvalidRootURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hist := &memHistory{}
			c := newTestCrawler(t, testConfig(t), Dependencies{Downloader: &fakeDownloader{}, History: hist})
			res, err := c.Run(t.Context(), tt.root)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if res.State != StateFailed || res.Err == nil {
				t.Errorf("expected failed result, got %v (%v)", res.State, res.Err)
			}
			if len(hist.runs) != 0 {
				t.Errorf("runs without a root URL must not be recorded, got %d", len(hist.runs))
			}
		})
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Mode = config.ModeSinglePage
	c := newTestCrawler(t, cfg, Dependencies{Downloader: &fakeDownloader{}, Policy: stubPolicy{}})
	if _, err := c.Run(t.Context(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(t.Context(), srv.URL); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("expected ErrAlreadyRun, got %v", err)
	}
}

// cancellingFetcher cancels the run when it reaches stopAt.
type cancellingFetcher struct {
	client *http.Client
	stopAt string
	cancel context.CancelFunc
}

func (f *cancellingFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if strings.HasSuffix(pageURL, f.stopAt) {
		f.cancel()
		return "", ctx.Err()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	return buf.String(), err
}

func TestRun_InterruptAndResume(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxDepth = config.UnlimitedDepth
	store := checkpoint.NewFileStore(cfg.CheckpointDir())
	hist := &memHistory{}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	first := &fakeDownloader{}
	c1 := newTestCrawler(t, cfg, Dependencies{
		Downloader: first,
		Policy:     stubPolicy{},
		Store:      store,
		History:    hist,
		Fetcher:    &cancellingFetcher{client: srv.Client(), stopAt: "/b", cancel: cancel},
	})

	res, err := c1.Run(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.State != StateInterrupted {
		t.Fatalf("expected interrupted, got %v", res.State)
	}
	if res.Checkpoint == "" {
		t.Fatal("expected checkpoint path")
	}
	if _, err := os.Stat(res.Checkpoint); err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}

	cp, err := store.Load(res.RootURL)
	if err != nil {
		t.Fatal(err)
	}
	if len(cp.VisitedURLs) != 2 {
		t.Errorf("expected 2 visited pages, got %v", cp.VisitedURLs)
	}
	if len(cp.PendingTasks) != 1 || !strings.HasSuffix(cp.PendingTasks[0].URL, "/b") || cp.PendingTasks[0].Depth != 2 {
		t.Errorf("expected /b at depth 2 pending, got %v", cp.PendingTasks)
	}
	if cp.PagesProcessed != 2 {
		t.Errorf("PagesProcessed = %d, want 2", cp.PagesProcessed)
	}

	second := &fakeDownloader{}
	c2 := newTestCrawler(t, cfg, Dependencies{
		Downloader: second,
		Policy:     stubPolicy{},
		Store:      store,
		History:    hist,
	})
	res2, err := c2.Run(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res2.Resumed {
		t.Error("expected resumed run")
	}
	if got := second.paths(); !slices.Equal(got, []string{"/b", "/c"}) {
		t.Errorf("resumed pages = %v, want [/b /c]", got)
	}
	if len(second.restored) != 2 {
		t.Errorf("expected 2 restored image URLs, got %v", second.restored)
	}
	if res2.Stats.PagesCrawled != 4 {
		t.Errorf("PagesCrawled = %d, want 4", res2.Stats.PagesCrawled)
	}
	if _, err := store.Load(res.RootURL); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("expected checkpoint deleted on completion, got %v", err)
	}

	hist.mu.Lock()
	defer hist.mu.Unlock()
	var states []string
	for _, r := range hist.runs {
		states = append(states, r.State)
	}
	want := []string{"crawling", "interrupted", "crawling", "completed"}
	if !slices.Equal(states, want) {
		t.Errorf("history states = %v, want %v", states, want)
	}
}

func TestRun_ResumeDisabled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Resume = false
	cfg.MaxDepth = 0
	store := checkpoint.NewFileStore(cfg.CheckpointDir())
	root := model.NormalizeURL(srv.URL)
	stale := model.NewCheckpoint(root, time.Now())
	stale.VisitedURLs = []string{root}
	if err := store.Save(stale); err != nil {
		t.Fatal(err)
	}

	dl := &fakeDownloader{}
	c := newTestCrawler(t, cfg, Dependencies{Downloader: dl, Policy: stubPolicy{}, Store: store})
	res, err := c.Run(t.Context(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resumed {
		t.Error("run must not resume when disabled")
	}
	if got := dl.paths(); !slices.Equal(got, []string{"/"}) {
		t.Errorf("pages = %v, want [/]", got)
	}
}

func TestRun_CorruptCheckpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	store := checkpoint.NewFileStore(cfg.CheckpointDir())
	path := store.Path(model.NormalizeURL(srv.URL))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := newTestCrawler(t, cfg, Dependencies{Downloader: &fakeDownloader{}, Policy: stubPolicy{}, Store: store})
	res, err := c.Run(t.Context(), srv.URL)
	if !errors.Is(err, ErrCheckpoint) {
		t.Fatalf("expected ErrCheckpoint, got %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("expected failed, got %v", res.State)
	}
}

func TestRun_PolitenessDelay(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Stealth = true
	cfg.BaseDelay = time.Second
	cfg.MaxDepth = 2
	c := newTestCrawler(t, cfg, Dependencies{Downloader: &fakeDownloader{}, Policy: stubPolicy{}})
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	c.jitter = func(base time.Duration) time.Duration { return base }

	if _, err := c.Run(t.Context(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if len(waits) != 2 {
		t.Fatalf("expected a wait before every page but the first, got %v", waits)
	}
	for _, w := range waits {
		if w != time.Second {
			t.Errorf("unexpected wait %v", w)
		}
	}
}

func TestRun_DownloadsImages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chain().handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxDepth = 1
	hist := &memHistory{}
	c := newTestCrawler(t, cfg, Dependencies{Client: srv.Client(), Policy: stubPolicy{}, History: hist})

	res, err := c.Run(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stats.ImagesDownloaded != 2 || res.Stats.ImagesFound != 2 {
		t.Errorf("expected 2 of 2 images downloaded, got %+v", res.Stats)
	}
	entries, err := os.ReadDir(cfg.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 files, got %d", len(entries))
	}
	summary := res.Summary()
	if summary.ID != "run-test" || summary.State != "completed" || summary.ImagesDownloaded != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestSiteConfigPatterns(t *testing.T) {
	t.Parallel()

	s := &site{pages: map[string][]string{
		"/":        {"/blog/1", "/admin/x", "/blog/2"},
		"/blog/1":  nil,
		"/blog/2":  nil,
		"/admin/x": nil,
	}}
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxDepth = 0
	host := strings.TrimPrefix(srv.URL, "http://")
	cfg.SiteConfigs = &config.File{Sites: map[string]config.SiteConfig{
		host: {Depth: 1, IgnorePatterns: []string{"/admin/*"}},
	}}
	dl := &fakeDownloader{}
	c := newTestCrawler(t, cfg, Dependencies{Downloader: dl, Policy: stubPolicy{}})

	if _, err := c.Run(t.Context(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if got := dl.paths(); !slices.Equal(got, []string{"/", "/blog/1", "/blog/2"}) {
		t.Errorf("pages = %v", got)
	}
}
