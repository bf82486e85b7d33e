package download

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/fetch"
	"github.com/nao1215/imgscrape/internal/pipeline"
)

// Stage names.
const (
	StageClaim      = "claim"
	StageURLFilter  = "url-filter"
	StageAcquire    = "acquire"
	StagePoliteness = "politeness"
	StageFetch      = "fetch"
	StageHash       = "hash"
	StageSize       = "size"
	StageDimensions = "dimensions"
	StageTarget     = "target"
	StagePersist    = "persist"
)

func (m *Manager) stages() []Stage {
	return []Stage{
		pipeline.NewStep(StageClaim, m.claim),
		pipeline.NewStep(StageURLFilter, m.filterURL),
		pipeline.NewStep(StageAcquire, m.acquire),
		pipeline.NewStep(StagePoliteness, m.politeness),
		pipeline.NewStep(StageFetch, m.fetch),
		pipeline.NewStep(StageHash, m.hash),
		pipeline.NewStep(StageSize, m.checkSize),
		pipeline.NewStep(StageDimensions, m.checkDimensions),
		pipeline.NewStep(StageTarget, m.target),
		pipeline.NewStep(StagePersist, m.persist),
	}
}

func (m *Manager) claim(_ context.Context, it *Item) error {
	if !m.downloaded.Claim(it.URL) {
		return ErrAlreadyClaimed
	}
	return nil
}

func (m *Manager) filterURL(_ context.Context, it *Item) error {
	if m.urlFilter != nil && !m.urlFilter.MatchString(it.URL) {
		return ErrFilteredURL
	}
	return nil
}

func (m *Manager) acquire(ctx context.Context, it *Item) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	it.acquired = true
	m.sink.StartDownload(it.URL)
	return nil
}

// politeness waits half of a page delay in stealth mode.
func (m *Manager) politeness(ctx context.Context, _ *Item) error {
	if !m.cfg.DelayEnabled() {
		return nil
	}
	return m.sleep(ctx, m.jitter(m.cfg.BaseDelay)/2)
}

func (m *Manager) fetch(ctx context.Context, it *Item) error {
	data, err := m.fetcher.FetchBytes(ctx, it.URL)
	if errors.Is(err, fetch.ErrBodyTooLarge) {
		return fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if len(data) == 0 {
		return ErrEmptyBody
	}
	it.data = data
	return nil
}

// hash registers the content hash. A hash seen before, in this run or a
// restored one, makes the image a duplicate.
func (m *Manager) hash(_ context.Context, it *Item) error {
	sum := blake2b.Sum256(it.data)
	it.hash = hex.EncodeToString(sum[:])
	if !m.hashes.Claim(it.hash) {
		return ErrDuplicateContent
	}
	return nil
}

func (m *Manager) checkSize(_ context.Context, it *Item) error {
	n := int64(len(it.data))
	if m.cfg.MinFileSizeKB > 0 && n < int64(m.cfg.MinFileSizeKB)*1024 {
		return ErrTooSmall
	}
	if m.cfg.MaxFileSizeKB > 0 && n > int64(m.cfg.MaxFileSizeKB)*1024 {
		return ErrTooLarge
	}
	return nil
}

// checkDimensions applies the thumbnail and dimension bounds. Images that
// cannot be decoded pass.
func (m *Manager) checkDimensions(_ context.Context, it *Item) error {
	cfg, format, err := probe(it.data)
	if err != nil {
		m.logger.Debug("cannot read image dimensions", "url", it.URL, "error", err)
		return nil
	}
	it.width, it.height, it.format = cfg.Width, cfg.Height, format

	c := m.cfg
	if c.SkipThumbnails && it.width < config.ThumbnailSize && it.height < config.ThumbnailSize {
		return ErrThumbnail
	}
	if (c.MinWidth > 0 && it.width < c.MinWidth) ||
		(c.MinHeight > 0 && it.height < c.MinHeight) ||
		(c.MaxWidth > 0 && it.width > c.MaxWidth) ||
		(c.MaxHeight > 0 && it.height > c.MaxHeight) {
		return fmt.Errorf("%w: %dx%d", ErrDimensions, it.width, it.height)
	}
	return nil
}

func (m *Manager) target(_ context.Context, it *Item) error {
	name := fileNameFromURL(it.URL)
	if m.convertTo != "" {
		name = withExtension(name, extensionFor(m.convertTo))
		it.convert = true
	}
	dir := targetDir(m.cfg.OutputDir, m.cfg.Organize, it.PageURL, m.now())

	f, p, err := allocateFile(dir, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	it.file, it.path = f, p
	return nil
}

// persist writes the image. A failed conversion still writes the original
// bytes to the target path and reports ErrConversion.
func (m *Manager) persist(_ context.Context, it *Item) error {
	out := it.data
	var convErr error
	if it.convert {
		converted, err := convert(it.data, m.convertTo, m.cfg.Quality)
		if err != nil {
			convErr = err
		} else {
			out = converted
		}
	}

	f := it.file
	it.file = nil
	n, err := f.Write(out)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(it.path) //nolint:errcheck // best effort
		return fmt.Errorf("%w: %s: %w", ErrWrite, it.path, err)
	}
	it.written = int64(n)

	if convErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrConversion, it.path, convErr)
	}
	return nil
}
