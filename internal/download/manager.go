package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/fetch"
	"github.com/nao1215/imgscrape/internal/log"
	"github.com/nao1215/imgscrape/internal/model"
	"github.com/nao1215/imgscrape/internal/pipeline"
	"github.com/nao1215/imgscrape/internal/stats"
)

// Fetcher returns the raw bytes of an image URL.
type Fetcher interface {
	FetchBytes(ctx context.Context, imageURL string) ([]byte, error)
}

// Recorder receives one record per saved image.
type Recorder interface {
	RecordImage(ctx context.Context, rec model.ImageRecord) error
}

// Outcome is the result of processing one candidate.
type Outcome int

const (
	// OutcomeAlreadyClaimed means another task owns the URL. Nothing is counted.
	OutcomeAlreadyClaimed Outcome = iota
	// OutcomeDownloaded means the image was saved.
	OutcomeDownloaded
	// OutcomeSkipped means a filter or the duplicate check rejected the image.
	OutcomeSkipped
	// OutcomeFailed means the fetch, conversion or write failed.
	OutcomeFailed
	// OutcomeCancelled means the run was cancelled before the image was
	// saved. The URL claim is released so a resumed run retries it.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyClaimed:
		return "claimed"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Stage is one step of the per-image pipeline.
type Stage = pipeline.Step[*Item]

// Item carries one candidate through the stages.
type Item struct {
	URL     string
	PageURL string

	data     []byte
	hash     string
	width    int
	height   int
	format   string
	path     string
	file     *os.File
	written  int64
	acquired bool
	convert  bool
}

// BatchResult counts the outcomes of one ProcessBatch call.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Failed     int
	Claimed    int
	Cancelled  int
}

func (r *BatchResult) add(o Outcome) {
	switch o {
	case OutcomeDownloaded:
		r.Downloaded++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	case OutcomeCancelled:
		r.Cancelled++
	default:
		r.Claimed++
	}
}

// Manager downloads image candidates.
type Manager struct {
	cfg        *config.Config
	fetcher    Fetcher
	sink       stats.Sink
	sem        *semaphore.Weighted
	downloaded *model.URLSet
	hashes     *model.URLSet
	urlFilter  *regexp.Regexp
	convertTo  string
	recorder   Recorder
	runID      string
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func(base time.Duration) time.Duration
	pipeline   *pipeline.Pipeline[*Item]
	batch      *pipeline.BatchProcessor[*batchEntry]
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder sets the recorder notified of saved images.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithRunID stamps records with the run ID.
func WithRunID(id string) Option {
	return func(m *Manager) {
		m.runID = id
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock sets the time source used for by-date folders and records.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a Manager whose semaphore allows cfg.Concurrency
// downloads at once across every batch.
func NewManager(cfg *config.Config, fetcher Fetcher, sink stats.Sink, opts ...Option) (*Manager, error) {
	var filter *regexp.Regexp
	if cfg.URLFilter != "" {
		re, err := regexp.Compile(cfg.URLFilter)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalidURLFilter, err)
		}
		filter = re
	}
	if sink == nil {
		sink = stats.Nop{}
	}

	m := &Manager{
		cfg:        cfg,
		fetcher:    fetcher,
		sink:       sink,
		sem:        semaphore.NewWeighted(int64(max(cfg.Concurrency, config.MinConcurrency))),
		downloaded: model.NewURLSet(),
		hashes:     model.NewURLSet(),
		urlFilter:  filter,
		convertTo:  cfg.NormalizedConvertFormat(),
		now:        time.Now,
		sleep:      fetch.Sleep,
		jitter:     fetch.Jitter,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.Category(m.logger, log.CategoryDownload)

	m.pipeline = pipeline.New[*Item](pipeline.WithLogger(m.logger))
	m.pipeline.AddSteps(m.stages()...)
	m.batch = pipeline.NewBatchProcessor[*batchEntry](
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithBatchLogger(m.logger))
	return m, nil
}

// Stages returns the stage names in execution order.
func (m *Manager) Stages() []string {
	return m.pipeline.StepNames()
}

// Process runs one candidate through the stages and updates the stats sink.
func (m *Manager) Process(ctx context.Context, candidateURL, sourcePageURL string) Outcome {
	it := &Item{URL: candidateURL, PageURL: sourcePageURL}
	defer m.release(it)

	err := m.pipeline.Execute(ctx, it)
	switch {
	case err == nil:
		m.sink.AddImageDownloaded(it.written)
		m.sink.Activity("saved " + it.path)
		m.logger.Info("image saved", "url", it.URL, "path", it.path, "bytes", it.written)
		m.record(ctx, it)
		return OutcomeDownloaded
	case errors.Is(err, ErrAlreadyClaimed):
		return OutcomeAlreadyClaimed
	case errors.Is(err, ErrSkip):
		m.sink.AddImageSkipped()
		m.logger.Debug("image skipped", "url", it.URL, "reason", err)
		return OutcomeSkipped
	case ctx.Err() != nil && !errors.Is(err, ErrConversion):
		m.downloaded.Release(it.URL)
		if it.hash != "" {
			m.hashes.Release(it.hash)
		}
		return OutcomeCancelled
	default:
		m.sink.AddImageFailed()
		m.sink.Activity("failed " + it.URL)
		m.logger.Warn("image failed", "url", it.URL, "error", err)
		return OutcomeFailed
	}
}

type batchEntry struct {
	candidate model.ImageCandidate
	outcome   Outcome
}

// ProcessBatch processes the candidates of one page and waits for all of
// them. Goroutines are capped at the configured concurrency and fetches are
// bounded by the shared semaphore.
func (m *Manager) ProcessBatch(ctx context.Context, candidates []model.ImageCandidate) BatchResult {
	entries := make([]*batchEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = &batchEntry{candidate: c}
	}

	errs := m.batch.Process(ctx, entries, func(ctx context.Context, e *batchEntry) error {
		e.outcome = m.Process(ctx, e.candidate.URL, e.candidate.SourcePageURL)
		return nil
	})

	var res BatchResult
	for i, e := range entries {
		if errs[i] != nil {
			e.outcome = OutcomeCancelled
		}
		res.add(e.outcome)
	}
	return res
}

// Restore merges URLs and content hashes recorded by an earlier run.
func (m *Manager) Restore(urls, hashes []string) {
	m.downloaded.Merge(urls...)
	m.hashes.Merge(hashes...)
}

// Downloaded returns the claimed image URLs in sorted order.
func (m *Manager) Downloaded() []string {
	return m.downloaded.Sorted()
}

// Hashes returns the registered content hashes in sorted order.
func (m *Manager) Hashes() []string {
	return m.hashes.Sorted()
}

func (m *Manager) release(it *Item) {
	if it.file != nil {
		// allocated but never written
		_ = it.file.Close()    //nolint:errcheck // file is removed
		_ = os.Remove(it.path) //nolint:errcheck // best effort
		it.file = nil
	}
	if it.acquired {
		m.sem.Release(1)
		m.sink.FinishDownload(it.URL)
		it.acquired = false
	}
}

func (m *Manager) record(ctx context.Context, it *Item) {
	if m.recorder == nil {
		return
	}
	meta := readEXIF(it.data)
	rec := model.ImageRecord{
		RunID:        m.runID,
		URL:          it.URL,
		PageURL:      it.PageURL,
		Hash:         it.hash,
		Path:         it.path,
		Bytes:        it.written,
		Width:        it.width,
		Height:       it.height,
		Format:       it.format,
		Converted:    it.convert,
		CameraMake:   meta.Make,
		CameraModel:  meta.Model,
		TakenAt:      meta.TakenAt,
		DownloadedAt: m.now(),
	}
	if err := m.recorder.RecordImage(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Warn("failed to record image", "url", it.URL, "error", err)
	}
}
