package log

import (
	"io"
	"log/slog"
)

// CategoryKey is the attribute key that carries a log category.
const CategoryKey = "category"

// Categories used across the crawler.
const (
	CategoryCrawl    = "crawl"
	CategoryFetch    = "fetch"
	CategoryDownload = "download"
	CategoryRobots   = "robots"
	CategoryRender   = "render"
	CategoryStore    = "checkpoint"
)

// Options configure NewLogger.
type Options struct {
	// Verbose lowers the level from Warn to Debug.
	Verbose bool
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
	// Async routes records through an AsyncHandler.
	Async bool
	// QueueSize is the AsyncHandler queue capacity.
	QueueSize int
}

// NewLogger builds a redacting logger writing to w. The returned close
// function flushes an async sink and is a no-op otherwise.
func NewLogger(w io.Writer, opts Options) (*slog.Logger, func() error) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}

	if !opts.Async {
		return slog.New(NewSecureHandler(h)), func() error { return nil }
	}
	async := NewAsyncHandler(h, opts.QueueSize)
	return slog.New(NewSecureHandler(async)), async.Close
}

// NewSecureLogger returns a synchronous redacting text logger.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	logger, _ := NewLogger(w, Options{Verbose: verbose})
	return logger
}

// Category returns logger with the category attribute set.
// A nil logger falls back to slog.Default().
func Category(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(CategoryKey, name))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
