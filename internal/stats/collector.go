package stats

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultActivitySize is the number of activity lines a Collector keeps.
const DefaultActivitySize = 10

// Sink receives progress from the crawl. Implementations must be safe for
// concurrent use and must not block.
type Sink interface {
	AddPagesFound(n int64)
	AddPagesCrawled(n int64)
	AddImagesFound(n int64)
	AddImageDownloaded(bytes int64)
	AddImageSkipped()
	AddImageFailed()
	Activity(msg string)
	StartDownload(url string)
	FinishDownload(url string)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PagesFound       int64     `json:"pagesFound"`
	PagesCrawled     int64     `json:"pagesCrawled"`
	ImagesFound      int64     `json:"imagesFound"`
	ImagesDownloaded int64     `json:"imagesDownloaded"`
	ImagesSkipped    int64     `json:"imagesSkipped"`
	ImagesFailed     int64     `json:"imagesFailed"`
	BytesDownloaded  int64     `json:"bytesDownloaded"`
	InFlight         []string  `json:"inFlight,omitempty"`
	Activity         []string  `json:"activity,omitempty"`
	TakenAt          time.Time `json:"takenAt"`
}

// Collector is the Sink used in production. Counters only grow.
type Collector struct {
	pagesFound       atomic.Int64
	pagesCrawled     atomic.Int64
	imagesFound      atomic.Int64
	imagesDownloaded atomic.Int64
	imagesSkipped    atomic.Int64
	imagesFailed     atomic.Int64
	bytesDownloaded  atomic.Int64

	mu       sync.Mutex
	inFlight map[string]struct{}
	activity []string
	size     int
	now      func() time.Time
}

// NewCollector returns a Collector keeping the last DefaultActivitySize
// activity lines.
func NewCollector() *Collector {
	return &Collector{
		inFlight: make(map[string]struct{}),
		size:     DefaultActivitySize,
		now:      time.Now,
	}
}

// Seed adds previously recorded counters, e.g. from a resumed checkpoint.
// Negative values are ignored.
func (c *Collector) Seed(s Snapshot) {
	add := func(v *atomic.Int64, n int64) {
		if n > 0 {
			v.Add(n)
		}
	}
	add(&c.pagesFound, s.PagesFound)
	add(&c.pagesCrawled, s.PagesCrawled)
	add(&c.imagesFound, s.ImagesFound)
	add(&c.imagesDownloaded, s.ImagesDownloaded)
	add(&c.imagesSkipped, s.ImagesSkipped)
	add(&c.imagesFailed, s.ImagesFailed)
	add(&c.bytesDownloaded, s.BytesDownloaded)
}

// AddPagesFound implements Sink.
func (c *Collector) AddPagesFound(n int64) { c.pagesFound.Add(max(n, 0)) }

// AddPagesCrawled implements Sink.
func (c *Collector) AddPagesCrawled(n int64) { c.pagesCrawled.Add(max(n, 0)) }

// AddImagesFound implements Sink.
func (c *Collector) AddImagesFound(n int64) { c.imagesFound.Add(max(n, 0)) }

// AddImageDownloaded implements Sink.
func (c *Collector) AddImageDownloaded(bytes int64) {
	c.imagesDownloaded.Add(1)
	c.bytesDownloaded.Add(max(bytes, 0))
}

// AddImageSkipped implements Sink.
func (c *Collector) AddImageSkipped() { c.imagesSkipped.Add(1) }

// AddImageFailed implements Sink.
func (c *Collector) AddImageFailed() { c.imagesFailed.Add(1) }

// Activity implements Sink. Only the most recent lines are kept.
func (c *Collector) Activity(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activity = append(c.activity, msg)
	if over := len(c.activity) - c.size; over > 0 {
		c.activity = slices.Delete(c.activity, 0, over)
	}
}

// StartDownload implements Sink.
func (c *Collector) StartDownload(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[url] = struct{}{}
}

// FinishDownload implements Sink.
func (c *Collector) FinishDownload(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, url)
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	inFlight := make([]string, 0, len(c.inFlight))
	for u := range c.inFlight {
		inFlight = append(inFlight, u)
	}
	activity := slices.Clone(c.activity)
	c.mu.Unlock()
	slices.Sort(inFlight)

	return Snapshot{
		PagesFound:       c.pagesFound.Load(),
		PagesCrawled:     c.pagesCrawled.Load(),
		ImagesFound:      c.imagesFound.Load(),
		ImagesDownloaded: c.imagesDownloaded.Load(),
		ImagesSkipped:    c.imagesSkipped.Load(),
		ImagesFailed:     c.imagesFailed.Load(),
		BytesDownloaded:  c.bytesDownloaded.Load(),
		InFlight:         inFlight,
		Activity:         activity,
		TakenAt:          c.now(),
	}
}

// Nop is a Sink that discards everything.
type Nop struct{}

func (Nop) AddPagesFound(int64)      {}
func (Nop) AddPagesCrawled(int64)    {}
func (Nop) AddImagesFound(int64)     {}
func (Nop) AddImageDownloaded(int64) {}
func (Nop) AddImageSkipped()         {}
func (Nop) AddImageFailed()          {}
func (Nop) Activity(string)          {}
func (Nop) StartDownload(string)     {}
func (Nop) FinishDownload(string)    {}

var (
	_ Sink = (*Collector)(nil)
	_ Sink = Nop{}
)
